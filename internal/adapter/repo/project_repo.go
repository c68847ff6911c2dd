package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sitesmith/internal/domain"
)

// ProjectRepositoryPG implements domain.ProjectRepository on PostgreSQL.
// The file set is one JSONB document replaced atomically as a whole.
type ProjectRepositoryPG struct {
	pool DB
}

// NewProjectRepository creates a project repository backed by PostgreSQL.
func NewProjectRepository(pool *pgxpool.Pool) *ProjectRepositoryPG {
	return &ProjectRepositoryPG{pool: pool}
}

// Create inserts a new project with an empty file set.
func (r *ProjectRepositoryPG) Create(ctx context.Context, project *domain.Project) error {
	files := project.Files
	if files == nil {
		files = domain.FileSet{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}
	query := `
INSERT INTO projects (id, user_id, name, files)
VALUES ($1, $2, $3, $4);
`
	_, err = r.pool.Exec(ctx, query, project.ID, project.UserID, project.Name, filesJSON)
	return err
}

// GetByID fetches a project, enforcing ownership.
func (r *ProjectRepositoryPG) GetByID(ctx context.Context, projectID, userID string) (*domain.Project, error) {
	query := `
SELECT id, user_id, name, files, created_at, updated_at
FROM projects
WHERE id = $1 AND user_id = $2;
`
	row := r.pool.QueryRow(ctx, query, projectID, userID)
	return scanProject(row)
}

// ListByUser returns the user's projects, newest first, without file bodies.
func (r *ProjectRepositoryPG) ListByUser(ctx context.Context, userID string) ([]domain.Project, error) {
	query := `
SELECT id, user_id, name, '{}'::jsonb, created_at, updated_at
FROM projects
WHERE user_id = $1
ORDER BY created_at DESC;
`
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var projects []domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// ReplaceFiles atomically replaces the project's whole file mapping.
func (r *ProjectRepositoryPG) ReplaceFiles(ctx context.Context, projectID, userID string, files domain.FileSet) error {
	filesJSON, err := json.Marshal(files.WithoutReserved())
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}
	query := `
UPDATE projects
SET files = $3, updated_at = NOW()
WHERE id = $1 AND user_id = $2;
`
	tag, err := r.pool.Exec(ctx, query, projectID, userID, filesJSON)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanProject(row pgx.Row) (*domain.Project, error) {
	var p domain.Project
	var files []byte
	if err := row.Scan(&p.ID, &p.UserID, &p.Name, &files, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(files) > 0 {
		if err := json.Unmarshal(files, &p.Files); err != nil {
			return nil, fmt.Errorf("decode files: %w", err)
		}
	}
	if p.Files == nil {
		p.Files = domain.FileSet{}
	}
	return &p, nil
}

var _ domain.ProjectRepository = (*ProjectRepositoryPG)(nil)
