package generate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"sitesmith/internal/domain"
)

// pageBatchSize bounds concurrent outbound page generation calls.
const pageBatchSize = 4

// runAgentWorkflow builds a new site in fixed stages: plan pages, persist
// the task list, generate a design spec, generate pages in concurrent
// batches, finalize. When the plan collapses to a single page the streamed
// new-site path is used instead.
func (o *Orchestrator) runAgentWorkflow(ctx context.Context, job *domain.GenerationJob, project *domain.Project) error {
	o.setStep(ctx, job, 10, "Planning your site")
	pages := PlanPages(ctx, o.client, o.models.Builder, job.Prompt)
	if len(pages) <= 1 {
		return o.runNewSiteStream(ctx, job, project)
	}

	tasks := buildTaskList(pages)
	planIdx := 0
	tasks[planIdx].Status = domain.TaskStatusCompleted
	if err := o.jobs.Update(ctx, job.ID, domain.JobUpdate{Tasks: tasks}); err != nil {
		return fmt.Errorf("persist task list: %w", err)
	}

	designIdx := 1
	tasks[designIdx].SetStatus(domain.TaskStatusInProgress)
	o.setStep(ctx, job, 15, "Creating a design spec")
	designSpec := o.generateDesignSpec(ctx, job.Prompt)
	tasks[designIdx].SetStatus(domain.TaskStatusCompleted)
	o.pushTasks(ctx, job.ID, tasks)

	nav := NavLinks(pages)
	files := domain.FileSet{}
	completed := 0

	for start := 0; start < len(pages); start += pageBatchSize {
		end := start + pageBatchSize
		if end > len(pages) {
			end = len(pages)
		}
		batch := pages[start:end]

		for _, name := range batch {
			idx := pageTaskIndex(tasks, name)
			if idx >= 0 {
				tasks[idx].SetStatus(domain.TaskStatusInProgress)
			}
		}
		o.pushTasks(ctx, job.ID, tasks)

		homeExcerpt := ""
		if start > 0 {
			homeExcerpt = files[PageFilename("home")]
		}

		type pageResult struct {
			name    string
			content string
			err     error
		}
		results := make([]pageResult, len(batch))
		var wg sync.WaitGroup
		for i, name := range batch {
			wg.Add(1)
			go func(i int, name string) {
				defer wg.Done()
				content, err := o.generatePage(ctx, job.Prompt, name, designSpec, nav, homeExcerpt)
				results[i] = pageResult{name: name, content: content, err: err}
			}(i, name)
		}
		wg.Wait()

		for _, res := range results {
			idx := pageTaskIndex(tasks, res.name)
			if res.err != nil {
				// A single failed page is omitted; the batch and job go on.
				o.logger.Warn().Err(res.err).Str("page", res.name).Str("job_id", job.ID).Msg("generate: page failed")
				if idx >= 0 {
					tasks[idx].SetStatus(domain.TaskStatusError)
				}
				continue
			}
			files[PageFilename(res.name)] = res.content
			completed++
			if idx >= 0 {
				tasks[idx].SetStatus(domain.TaskStatusCompleted)
			}
		}

		progress := 20 + (60*completed)/len(pages)
		o.setStep(ctx, job, progress, fmt.Sprintf("Generated %d of %d pages", completed, len(pages)))
		o.pushTasks(ctx, job.ID, tasks)
	}

	if completed == 0 {
		return fmt.Errorf("%w: every page generation failed", domain.ErrEmptyOutput)
	}

	finalizeIdx := len(tasks) - 1
	tasks[finalizeIdx].SetStatus(domain.TaskStatusInProgress)
	o.setStep(ctx, job, 85, "Finalizing your site")

	final := domain.FileSet(UnescapeAll(files))
	if err := o.projects.ReplaceFiles(ctx, project.ID, project.UserID, final); err != nil {
		return fmt.Errorf("persist site files: %w", err)
	}

	withReasoning := final.Clone()
	withReasoning[domain.ReservedReasoningKey] = fmt.Sprintf("Planned %d pages, generated %d.", len(pages), completed)
	o.pushFiles(ctx, job.ID, withReasoning)

	tasks[finalizeIdx].SetStatus(domain.TaskStatusCompleted)
	o.appendChat(ctx, project.ID, buildSiteSummary(pages, completed))

	done := domain.JobStatusCompleted
	progress := 100
	step := "Done"
	if err := o.jobs.Update(ctx, job.ID, domain.JobUpdate{
		Status:      &done,
		Progress:    &progress,
		CurrentStep: &step,
		Files:       final,
		Tasks:       tasks,
	}); err != nil {
		return fmt.Errorf("finalize job: %w", err)
	}

	if err := o.usage.IncrementGenerationCount(ctx, job.UserID, job.ID); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Msg("generate: usage increment failed")
	}
	return nil
}

// buildTaskList creates the full ordered task list before any page
// generation starts: plan, design, one per page, finalize.
func buildTaskList(pages []string) []domain.GenerationTask {
	tasks := make([]domain.GenerationTask, 0, len(pages)+3)
	tasks = append(tasks, domain.GenerationTask{
		ID:     uuid.NewString(),
		Name:   "Plan pages",
		Type:   domain.TaskTypePlan,
		Status: domain.TaskStatusInProgress,
	})
	tasks = append(tasks, domain.GenerationTask{
		ID:     uuid.NewString(),
		Name:   "Design spec",
		Type:   domain.TaskTypeDesign,
		Status: domain.TaskStatusPending,
	})
	for _, name := range pages {
		tasks = append(tasks, domain.GenerationTask{
			ID:     uuid.NewString(),
			Name:   fmt.Sprintf("Generate %s page", name),
			Type:   domain.TaskTypePage,
			Status: domain.TaskStatusPending,
			File:   PageFilename(name),
		})
	}
	tasks = append(tasks, domain.GenerationTask{
		ID:     uuid.NewString(),
		Name:   "Finalize",
		Type:   domain.TaskTypeFinalize,
		Status: domain.TaskStatusPending,
	})
	return tasks
}

func pageTaskIndex(tasks []domain.GenerationTask, pageName string) int {
	file := PageFilename(pageName)
	for i, t := range tasks {
		if t.Type == domain.TaskTypePage && t.File == file {
			return i
		}
	}
	return -1
}

// generateDesignSpec asks for a short design specification; failure returns
// a generic fallback rather than aborting the workflow.
func (o *Orchestrator) generateDesignSpec(ctx context.Context, prompt string) string {
	resp, err := o.client.Complete(ctx, chatRequest(o.models.Builder, designSystemPrompt, prompt, 0.7, 400, false))
	if err != nil || resp == nil || strings.TrimSpace(resp.Content) == "" {
		o.logger.Warn().Err(err).Msg("generate: design spec failed, using fallback")
		return FallbackDesignSpec
	}
	return strings.TrimSpace(resp.Content)
}

func (o *Orchestrator) generatePage(ctx context.Context, sitePrompt, pageName, designSpec string, nav []NavLink, homeExcerpt string) (string, error) {
	resp, err := o.client.Complete(ctx, chatRequest(
		o.models.Builder,
		pageSystemPrompt,
		PagePrompt(sitePrompt, pageName, designSpec, nav, homeExcerpt),
		0.7, 8000, false,
	))
	if err != nil {
		return "", fmt.Errorf("page %s: %w", pageName, err)
	}
	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("page %s: empty response", pageName)
	}
	return CoerceHTMLDocument(content), nil
}

func (o *Orchestrator) pushTasks(ctx context.Context, jobID string, tasks []domain.GenerationTask) {
	if err := o.jobs.Update(ctx, jobID, domain.JobUpdate{Tasks: tasks}); err != nil {
		o.logger.Warn().Err(err).Str("job_id", jobID).Msg("generate: task update failed")
	}
}

func (o *Orchestrator) pushFiles(ctx context.Context, jobID string, files domain.FileSet) {
	if err := o.jobs.Update(ctx, jobID, domain.JobUpdate{Files: files}); err != nil {
		o.logger.Warn().Err(err).Str("job_id", jobID).Msg("generate: file update failed")
	}
}

func buildSiteSummary(pages []string, completed int) string {
	if completed == len(pages) {
		return fmt.Sprintf("Your site is ready! I generated %d pages: %s.", completed, strings.Join(pages, ", "))
	}
	return fmt.Sprintf("Your site is ready. I generated %d of %d planned pages.", completed, len(pages))
}
