package repo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"sitesmith/internal/domain"
)

// ChatRepositoryPG implements the append-only transcript log on PostgreSQL.
type ChatRepositoryPG struct {
	pool DB
}

// NewChatRepository creates a chat repository backed by PostgreSQL.
func NewChatRepository(pool *pgxpool.Pool) *ChatRepositoryPG {
	return &ChatRepositoryPG{pool: pool}
}

// Append writes one transcript entry. An empty ID is assigned.
func (r *ChatRepositoryPG) Append(ctx context.Context, msg *domain.ChatMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	query := `
INSERT INTO chat_messages (id, project_id, role, content)
VALUES ($1, $2, $3, $4);
`
	_, err := r.pool.Exec(ctx, query, msg.ID, msg.ProjectID, msg.Role, msg.Content)
	return err
}

// ListRecent returns the last limit messages for a project in
// chronological order.
func (r *ChatRepositoryPG) ListRecent(ctx context.Context, projectID string, limit int) ([]domain.ChatMessage, error) {
	query := `
SELECT id, project_id, role, content, created_at
FROM (
    SELECT id, project_id, role, content, created_at
    FROM chat_messages
    WHERE project_id = $1
    ORDER BY created_at DESC
    LIMIT $2
) recent
ORDER BY created_at;
`
	rows, err := r.pool.Query(ctx, query, projectID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var messages []domain.ChatMessage
	for rows.Next() {
		var m domain.ChatMessage
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

var _ domain.ChatRepository = (*ChatRepositoryPG)(nil)
