package domain

import "context"

// JobUpdate carries a partial-field update for a job row. Nil fields are
// left untouched (last-write-wins per field, no transactional guarantee
// beyond that).
type JobUpdate struct {
	Status      *JobStatus
	Progress    *int
	CurrentStep *string
	Files       FileSet
	Tasks       []GenerationTask
	Error       *string
}

// JobRepository is the durable status store consumed by the client poller.
type JobRepository interface {
	Create(ctx context.Context, job *GenerationJob) error
	Update(ctx context.Context, jobID string, upd JobUpdate) error
	GetByID(ctx context.Context, jobID string) (*GenerationJob, error)
	// GetActiveForProject returns the live (pending/processing) job for a
	// project. A non-terminal job older than StaleJobThreshold is rewritten
	// to error and ErrNotFound is returned instead.
	GetActiveForProject(ctx context.Context, projectID string) (*GenerationJob, error)
	// Claim atomically takes the oldest pending job and marks it processing.
	// ErrNotFound when no job is available.
	Claim(ctx context.Context) (*GenerationJob, error)
}

// ProjectRepository persists project file sets. Ownership checks are the
// store's responsibility.
type ProjectRepository interface {
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, projectID, userID string) (*Project, error)
	ListByUser(ctx context.Context, userID string) ([]Project, error)
	// ReplaceFiles atomically replaces the project's whole file mapping.
	ReplaceFiles(ctx context.Context, projectID, userID string, files FileSet) error
}

// ChatRepository is the append-only per-project transcript log.
type ChatRepository interface {
	Append(ctx context.Context, msg *ChatMessage) error
	ListRecent(ctx context.Context, projectID string, limit int) ([]ChatMessage, error)
}

// UsageRepository gates and accounts billed generations.
type UsageRepository interface {
	CanGenerate(ctx context.Context, userID string) (bool, error)
	IncrementGenerationCount(ctx context.Context, userID, jobID string) error
}
