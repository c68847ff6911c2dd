package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"sitesmith/internal/domain"
)

// UsageRepositoryPG accounts billed generations in a usage_events table and
// gates new jobs against a per-user daily cap.
type UsageRepositoryPG struct {
	pool     DB
	dailyCap int
}

// NewUsageRepository creates a usage repository with the given daily cap.
func NewUsageRepository(pool *pgxpool.Pool, dailyCap int) *UsageRepositoryPG {
	return &UsageRepositoryPG{pool: pool, dailyCap: dailyCap}
}

// CanGenerate reports whether the user is under today's generation cap.
func (r *UsageRepositoryPG) CanGenerate(ctx context.Context, userID string) (bool, error) {
	query := `
SELECT COUNT(*)
FROM usage_events
WHERE user_id = $1
  AND event_type = 'generation'
  AND created_at >= date_trunc('day', NOW());
`
	var used int
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&used); err != nil {
		return false, err
	}
	return used < r.dailyCap, nil
}

// IncrementGenerationCount records one billed generation.
func (r *UsageRepositoryPG) IncrementGenerationCount(ctx context.Context, userID, jobID string) error {
	query := `
INSERT INTO usage_events (id, user_id, job_id, event_type)
VALUES (gen_random_uuid(), $1, $2, 'generation');
`
	_, err := r.pool.Exec(ctx, query, userID, jobID)
	return err
}

var _ domain.UsageRepository = (*UsageRepositoryPG)(nil)
