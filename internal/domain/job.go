package domain

import "time"

// JobStatus enumerates generation job lifecycle states.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
)

// Terminal reports whether the status allows no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// TaskType enumerates the stages of the multi-page workflow.
type TaskType string

const (
	TaskTypePlan     TaskType = "plan"
	TaskTypeDesign   TaskType = "design"
	TaskTypePage     TaskType = "page"
	TaskTypeFinalize TaskType = "finalize"
)

// TaskStatus enumerates per-task states. Transitions only move forward:
// pending -> in_progress -> completed|error.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusError      TaskStatus = "error"
)

// GenerationTask is one stage of the multi-page workflow, created in bulk
// before page generation starts and mutated as each stage completes.
type GenerationTask struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Type   TaskType   `json:"type"`
	Status TaskStatus `json:"status"`
	File   string     `json:"file,omitempty"`
}

// SetStatus advances the task status. Terminal states are sticky.
func (t *GenerationTask) SetStatus(status TaskStatus) {
	if t.Status == TaskStatusCompleted || t.Status == TaskStatusError {
		return
	}
	t.Status = status
}

// StaleJobThreshold is the age after which a non-terminal job is treated as
// abandoned and force-transitioned to error on the next status read.
const StaleJobThreshold = 10 * time.Minute

// GenerationJob tracks one asynchronous generation request. It has a single
// writer (the worker processing it); clients only poll.
type GenerationJob struct {
	ID          string
	ProjectID   string
	UserID      string
	Status      JobStatus
	Progress    int
	CurrentStep string
	Prompt      string
	Locale      string
	Files       FileSet
	Tasks       []GenerationTask
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Stale reports whether a non-terminal job is older than the abandonment
// threshold at the given instant.
func (j *GenerationJob) Stale(now time.Time) bool {
	if j.Status.Terminal() {
		return false
	}
	return now.Sub(j.CreatedAt) > StaleJobThreshold
}

// CurrentTaskIndex returns the index of the first task still pending or in
// progress, or the task count when everything is settled.
func (j *GenerationJob) CurrentTaskIndex() int {
	for i, t := range j.Tasks {
		if t.Status == TaskStatusPending || t.Status == TaskStatusInProgress {
			return i
		}
	}
	return len(j.Tasks)
}

// QuickEdit is a transient literal find-and-replace request detected from a
// prompt. It is never persisted.
type QuickEdit struct {
	OldText string
	NewText string
}
