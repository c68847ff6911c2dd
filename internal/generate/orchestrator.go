package generate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"sitesmith/internal/domain"
	"sitesmith/internal/providers/chat"
)

// ChatClient is the provider surface the pipeline needs.
type ChatClient interface {
	chat.Completer
	chat.Streamer
}

// Models selects which provider model serves each path: a higher-capability
// model for new builds, a faster one for modifications.
type Models struct {
	Builder  string
	Modifier string
}

// Orchestrator owns the job lifecycle: it chooses a generation strategy,
// drives it to completion or error, and writes every status update the
// client poller sees. It is the job row's single writer.
type Orchestrator struct {
	jobs     domain.JobRepository
	projects domain.ProjectRepository
	chats    domain.ChatRepository
	usage    domain.UsageRepository
	client   ChatClient
	models   Models
	logger   zerolog.Logger
}

// New wires an Orchestrator with its collaborators.
func New(
	jobs domain.JobRepository,
	projects domain.ProjectRepository,
	chats domain.ChatRepository,
	usage domain.UsageRepository,
	client ChatClient,
	models Models,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		jobs:     jobs,
		projects: projects,
		chats:    chats,
		usage:    usage,
		client:   client,
		models:   models,
		logger:   logger,
	}
}

// Run processes one claimed job to a terminal state. Any strategy error is
// caught here, written to the job as error, and mirrored into the chat
// transcript. This is the single fatal-error funnel; there are no retries.
func (o *Orchestrator) Run(ctx context.Context, job *domain.GenerationJob) {
	o.logger.Info().Str("job_id", job.ID).Str("project_id", job.ProjectID).Msg("generate: job started")

	if err := o.run(ctx, job); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("generate: job failed")
		o.fail(ctx, job, err)
		return
	}
	o.logger.Info().Str("job_id", job.ID).Msg("generate: job completed")
}

func (o *Orchestrator) run(ctx context.Context, job *domain.GenerationJob) error {
	project, err := o.projects.GetByID(ctx, job.ProjectID, job.UserID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}

	o.setStep(ctx, job, 5, "Analyzing your request")

	if project.Files.HasSubstantialContent() {
		if edit := DetectQuickEdit(job.Prompt); edit != nil {
			return o.runQuickEdit(ctx, job, project, *edit)
		}
		return o.runModification(ctx, job, project)
	}
	return o.runAgentWorkflow(ctx, job, project)
}

// runQuickEdit performs the literal find-and-replace fast path. It never
// calls the model and has no error path other than zero matches, which
// still completes.
func (o *Orchestrator) runQuickEdit(ctx context.Context, job *domain.GenerationJob, project *domain.Project, edit domain.QuickEdit) error {
	o.setStep(ctx, job, 30, fmt.Sprintf("Replacing %q with %q", edit.OldText, edit.NewText))

	updated, occurrences, touched := ApplyQuickEdit(project.Files, edit)
	if err := o.projects.ReplaceFiles(ctx, project.ID, project.UserID, updated); err != nil {
		return fmt.Errorf("persist quick edit: %w", err)
	}

	summary := fmt.Sprintf("Replaced %d occurrence(s) of %q with %q across %d file(s).",
		occurrences, edit.OldText, edit.NewText, touched)
	o.appendChat(ctx, project.ID, summary)

	done := domain.JobStatusCompleted
	progress := 100
	step := "Done"
	if err := o.jobs.Update(ctx, job.ID, domain.JobUpdate{
		Status:      &done,
		Progress:    &progress,
		CurrentStep: &step,
		Files:       updated,
	}); err != nil {
		return fmt.Errorf("finalize quick edit: %w", err)
	}

	// Quick edits consume a billed generation like every other path.
	if err := o.usage.IncrementGenerationCount(ctx, job.UserID, job.ID); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("generate: usage increment failed")
	}
	return nil
}

// fail writes the terminal error state and a user-visible apology.
func (o *Orchestrator) fail(ctx context.Context, job *domain.GenerationJob, cause error) {
	status := domain.JobStatusError
	msg := cause.Error()
	if err := o.jobs.Update(ctx, job.ID, domain.JobUpdate{Status: &status, Error: &msg}); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("generate: write error status failed")
	}
	o.appendChat(ctx, job.ProjectID,
		fmt.Sprintf("Sorry, something went wrong while generating your site: %s. Please try again.", msg))
}

// setStep pushes a progress/step update, flipping the job to processing on
// the first write. Update failures are logged, never fatal.
func (o *Orchestrator) setStep(ctx context.Context, job *domain.GenerationJob, progress int, step string) {
	status := domain.JobStatusProcessing
	if err := o.jobs.Update(ctx, job.ID, domain.JobUpdate{
		Status:      &status,
		Progress:    &progress,
		CurrentStep: &step,
	}); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("generate: status update failed")
	}
}

func (o *Orchestrator) appendChat(ctx context.Context, projectID, content string) {
	msg := &domain.ChatMessage{ProjectID: projectID, Role: domain.ChatRoleAI, Content: content}
	if err := o.chats.Append(ctx, msg); err != nil {
		o.logger.Warn().Err(err).Str("project_id", projectID).Msg("generate: chat append failed")
	}
}
