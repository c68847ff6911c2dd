package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sitesmith/internal/domain"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL. Files and
// tasks are stored as JSONB documents on the job row.
type JobRepositoryPG struct {
	pool DB
	now  func() time.Time
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(pool *pgxpool.Pool) *JobRepositoryPG {
	return &JobRepositoryPG{pool: pool, now: time.Now}
}

const jobColumns = `id, project_id, user_id, status, progress, current_step, prompt, locale, files, tasks, error_message, created_at, updated_at`

// Create inserts a new job record in its initial state.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob) error {
	files, tasks, err := encodeJobDocs(job.Files, job.Tasks)
	if err != nil {
		return err
	}
	query := `
INSERT INTO generation_jobs (id, project_id, user_id, status, progress, current_step, prompt, locale, files, tasks, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
`
	_, err = r.pool.Exec(ctx, query,
		job.ID,
		job.ProjectID,
		job.UserID,
		job.Status,
		job.Progress,
		job.CurrentStep,
		job.Prompt,
		job.Locale,
		files,
		tasks,
		job.Error,
	)
	return err
}

// Update applies a partial-field update; nil fields are left untouched.
func (r *JobRepositoryPG) Update(ctx context.Context, jobID string, upd domain.JobUpdate) error {
	var files, tasks []byte
	var err error
	if upd.Files != nil {
		files, err = json.Marshal(upd.Files)
		if err != nil {
			return fmt.Errorf("encode files: %w", err)
		}
	}
	if upd.Tasks != nil {
		tasks, err = json.Marshal(upd.Tasks)
		if err != nil {
			return fmt.Errorf("encode tasks: %w", err)
		}
	}
	query := `
UPDATE generation_jobs
SET status        = COALESCE($2, status),
    progress      = COALESCE($3, progress),
    current_step  = COALESCE($4, current_step),
    files         = COALESCE($5, files),
    tasks         = COALESCE($6, tasks),
    error_message = COALESCE($7, error_message),
    updated_at    = NOW()
WHERE id = $1;
`
	_, err = r.pool.Exec(ctx, query, jobID,
		(*string)(upd.Status), upd.Progress, upd.CurrentStep,
		nullableBytes(files), nullableBytes(tasks), upd.Error)
	return err
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM generation_jobs WHERE id = $1;`, jobColumns)
	return r.scanJob(r.pool.QueryRow(ctx, query, jobID))
}

// GetActiveForProject returns the live job for a project. A non-terminal
// job past the staleness threshold is rewritten to error and reported as
// absent, so an abandoned background task cannot spin the poller forever.
func (r *JobRepositoryPG) GetActiveForProject(ctx context.Context, projectID string) (*domain.GenerationJob, error) {
	query := fmt.Sprintf(`
SELECT %s FROM generation_jobs
WHERE project_id = $1 AND status IN ('pending', 'processing')
ORDER BY created_at DESC
LIMIT 1;
`, jobColumns)
	job, err := r.scanJob(r.pool.QueryRow(ctx, query, projectID))
	if err != nil {
		return nil, err
	}
	if job.Stale(r.now()) {
		if err := r.expire(ctx, job.ID); err != nil {
			return nil, err
		}
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (r *JobRepositoryPG) expire(ctx context.Context, jobID string) error {
	query := `
UPDATE generation_jobs
SET status = 'error', error_message = 'Job timed out', updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, jobID)
	return err
}

// Claim atomically takes the oldest pending job and marks it processing.
func (r *JobRepositoryPG) Claim(ctx context.Context) (*domain.GenerationJob, error) {
	query := fmt.Sprintf(`
UPDATE generation_jobs
SET status = 'processing', updated_at = NOW()
WHERE id = (
    SELECT id FROM generation_jobs
    WHERE status = 'pending'
    ORDER BY created_at
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
RETURNING %s;
`, jobColumns)
	return r.scanJob(r.pool.QueryRow(ctx, query))
}

func (r *JobRepositoryPG) scanJob(row pgx.Row) (*domain.GenerationJob, error) {
	var job domain.GenerationJob
	var files, tasks []byte
	if err := row.Scan(
		&job.ID,
		&job.ProjectID,
		&job.UserID,
		&job.Status,
		&job.Progress,
		&job.CurrentStep,
		&job.Prompt,
		&job.Locale,
		&files,
		&tasks,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if len(files) > 0 {
		if err := json.Unmarshal(files, &job.Files); err != nil {
			return nil, fmt.Errorf("decode files: %w", err)
		}
	}
	if len(tasks) > 0 {
		if err := json.Unmarshal(tasks, &job.Tasks); err != nil {
			return nil, fmt.Errorf("decode tasks: %w", err)
		}
	}
	return &job, nil
}

func encodeJobDocs(files domain.FileSet, tasks []domain.GenerationTask) ([]byte, []byte, error) {
	if files == nil {
		files = domain.FileSet{}
	}
	if tasks == nil {
		tasks = []domain.GenerationTask{}
	}
	filesJSON, err := json.Marshal(files)
	if err != nil {
		return nil, nil, fmt.Errorf("encode files: %w", err)
	}
	tasksJSON, err := json.Marshal(tasks)
	if err != nil {
		return nil, nil, fmt.Errorf("encode tasks: %w", err)
	}
	return filesJSON, tasksJSON, nil
}

func nullableBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
