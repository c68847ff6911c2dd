package generate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sitesmith/internal/domain"
	"sitesmith/internal/providers/chat"
)

const (
	// streamUpdateInterval throttles status pushes while streaming so write
	// volume against the status store stays bounded.
	streamUpdateInterval = 2 * time.Second
	// streamProgressCap keeps streamed progress below the finalize range.
	streamProgressCap = 85
	// historyTurns is how many recent chat turns are replayed to the model.
	historyTurns = 6
)

func chatRequest(model, system, user string, temperature float64, maxTokens int, jsonObject bool) chat.Request {
	return chat.Request{
		Model: model,
		Messages: []chat.Message{
			{Role: chat.RoleSystem, Content: system},
			{Role: chat.RoleUser, Content: user},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
		JSONObject:  jsonObject,
	}
}

// runModification edits an existing substantial file set through a single
// streamed completion.
func (o *Orchestrator) runModification(ctx context.Context, job *domain.GenerationJob, project *domain.Project) error {
	locale := job.Locale
	req := chat.Request{
		Model: o.models.Modifier,
		Messages: append(
			o.historyMessages(ctx, project.ID),
			chat.Message{Role: chat.RoleSystem, Content: ModificationSystemPrompt(project.Files, locale)},
			chat.Message{Role: chat.RoleUser, Content: ModificationUserMessage(job.Prompt, project.Files)},
		),
		Temperature: 0.4,
		MaxTokens:   16000,
		JSONObject:  true,
	}

	updates, err := o.streamFileMap(ctx, job, req, false)
	if err != nil {
		return err
	}

	merged := project.Files.Merge(updates)
	return o.finishStreamed(ctx, job, project, merged)
}

// runNewSiteStream generates a brand-new site with one streamed call, used
// when the multi-page workflow is not applicable.
func (o *Orchestrator) runNewSiteStream(ctx context.Context, job *domain.GenerationJob, project *domain.Project) error {
	locale := job.Locale
	req := chat.Request{
		Model: o.models.Builder,
		Messages: append(
			o.historyMessages(ctx, project.ID),
			chat.Message{Role: chat.RoleSystem, Content: NewSiteSystemPrompt(locale)},
			chat.Message{Role: chat.RoleUser, Content: job.Prompt},
		),
		Temperature: 0.7,
		MaxTokens:   16000,
		JSONObject:  true,
	}

	files, err := o.streamFileMap(ctx, job, req, true)
	if err != nil {
		return err
	}
	return o.finishStreamed(ctx, job, project, files)
}

// streamFileMap runs one streamed completion, accumulating content and
// reasoning deltas separately and pushing a throttled status update carrying
// reasoning-so-far. The full content is then handed to the repair engine.
func (o *Orchestrator) streamFileMap(ctx context.Context, job *domain.GenerationJob, req chat.Request, firstGeneration bool) (domain.FileSet, error) {
	o.setStep(ctx, job, 20, "Generating")

	events, err := o.client.Stream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, err)
	}

	var content, reasoning strings.Builder
	lastPush := time.Now()
	for ev := range events {
		if ev.Err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrProviderFailure, ev.Err)
		}
		if ev.Done {
			break
		}
		content.WriteString(ev.ContentDelta)
		reasoning.WriteString(ev.ReasoningDelta)

		if time.Since(lastPush) >= streamUpdateInterval {
			lastPush = time.Now()
			o.pushThinking(ctx, job.ID, content.Len(), reasoning.String())
		}
	}

	files, err := RepairFileMap(content.String())
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, domain.ErrEmptyOutput
	}
	if firstGeneration {
		if index, ok := files["index.html"]; ok && !looksLikeHTMLDocument(index) {
			return nil, fmt.Errorf("%w: index.html is not an HTML document", domain.ErrUnsalvageable)
		}
	}
	return files, nil
}

// pushThinking surfaces reasoning-so-far via the reserved file key so the
// poller can show it before the stream completes.
func (o *Orchestrator) pushThinking(ctx context.Context, jobID string, contentLen int, reasoning string) {
	progress := 20 + contentLen/500
	if progress > streamProgressCap {
		progress = streamProgressCap
	}
	step := "Generating"
	status := domain.JobStatusProcessing
	upd := domain.JobUpdate{Status: &status, Progress: &progress, CurrentStep: &step}
	if reasoning != "" {
		upd.Files = domain.FileSet{domain.ReservedReasoningKey: reasoning}
	}
	if err := o.jobs.Update(ctx, jobID, upd); err != nil {
		o.logger.Warn().Err(err).Str("job_id", jobID).Msg("generate: stream update failed")
	}
}

func (o *Orchestrator) finishStreamed(ctx context.Context, job *domain.GenerationJob, project *domain.Project, files domain.FileSet) error {
	o.setStep(ctx, job, 90, "Saving your site")

	final := files.WithoutReserved()
	if err := o.projects.ReplaceFiles(ctx, project.ID, project.UserID, final); err != nil {
		return fmt.Errorf("persist site files: %w", err)
	}

	o.appendChat(ctx, project.ID, fmt.Sprintf("Done! I updated %d file(s).", len(final)))

	done := domain.JobStatusCompleted
	progress := 100
	step := "Done"
	if err := o.jobs.Update(ctx, job.ID, domain.JobUpdate{
		Status:      &done,
		Progress:    &progress,
		CurrentStep: &step,
		Files:       final,
	}); err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}

	if err := o.usage.IncrementGenerationCount(ctx, job.UserID, job.ID); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("generate: usage increment failed")
	}
	return nil
}

// historyMessages replays the last few chat turns, oldest first, excluding
// internal progress-only entries.
func (o *Orchestrator) historyMessages(ctx context.Context, projectID string) []chat.Message {
	entries, err := o.chats.ListRecent(ctx, projectID, historyTurns)
	if err != nil {
		o.logger.Warn().Err(err).Str("project_id", projectID).Msg("generate: history load failed")
		return nil
	}
	msgs := make([]chat.Message, 0, len(entries))
	for _, entry := range entries {
		role := chat.RoleUser
		if entry.Role == domain.ChatRoleAI {
			role = chat.RoleAssistant
		}
		msgs = append(msgs, chat.Message{Role: role, Content: entry.Content})
	}
	return msgs
}
