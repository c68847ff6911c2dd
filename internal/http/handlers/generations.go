package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sitesmith/internal/domain"
	"sitesmith/internal/middleware"
)

type generateRequest struct {
	Prompt string `json:"prompt"`
}

// Generate enqueues one generation job for a project. The billing gate runs
// before any job row exists; a live job for the project rejects the request.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	project, ok := a.loadProject(w, r)
	if !ok {
		return
	}
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "prompt required")
		return
	}

	allowed, err := a.Usage.CanGenerate(r.Context(), project.UserID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to check quota")
		return
	}
	if !allowed {
		a.error(w, http.StatusForbidden, "quota_exceeded", "daily generation limit reached")
		return
	}

	if _, err := a.Jobs.GetActiveForProject(r.Context(), project.ID); err == nil {
		a.error(w, http.StatusConflict, "job_active", "a generation is already in progress for this project")
		return
	} else if !errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusInternalServerError, "internal", "failed to check active jobs")
		return
	}

	job := &domain.GenerationJob{
		ID:          uuid.NewString(),
		ProjectID:   project.ID,
		UserID:      project.UserID,
		Status:      domain.JobStatusPending,
		CurrentStep: "Queued",
		Prompt:      prompt,
		Locale:      middleware.LocaleFromContext(r.Context()),
	}
	if err := a.Jobs.Create(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Str("project_id", project.ID).Msg("api: create job failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to queue generation")
		return
	}
	a.Logger.Info().
		Str("job_id", job.ID).
		Str("project_id", project.ID).
		Str("locale", job.Locale).
		Str("country", middleware.CountryFromContext(r.Context())).
		Msg("api: generation queued")
	if err := a.Chats.Append(r.Context(), &domain.ChatMessage{
		ProjectID: project.ID,
		Role:      domain.ChatRoleUser,
		Content:   prompt,
	}); err != nil {
		a.Logger.Warn().Err(err).Str("project_id", project.ID).Msg("api: chat append failed")
	}
	a.json(w, http.StatusAccepted, map[string]string{"job_id": job.ID, "status": string(job.Status)})
}

// GenerationStatus returns the live job for a project, applying the
// staleness rule through the repository.
func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	project, ok := a.loadProject(w, r)
	if !ok {
		return
	}
	job, err := a.Jobs.GetActiveForProject(r.Context(), project.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "no active generation")
		} else {
			a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		}
		return
	}
	a.json(w, http.StatusOK, jobStatusPayload(job))
}

// GetJob returns any job by id, owner-checked.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "id")
	job, err := a.Jobs.GetByID(r.Context(), jobID)
	if err != nil || job.UserID != userID {
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	a.json(w, http.StatusOK, jobStatusPayload(job))
}

// jobStatusPayload is the poll response contract.
func jobStatusPayload(job *domain.GenerationJob) map[string]any {
	payload := map[string]any{
		"id":               job.ID,
		"status":           job.Status,
		"currentStep":      job.CurrentStep,
		"progress":         job.Progress,
		"files":            job.Files,
		"tasks":            job.Tasks,
		"currentTaskIndex": job.CurrentTaskIndex(),
		"totalTasks":       len(job.Tasks),
	}
	if job.Error != "" {
		payload["error"] = job.Error
	}
	return payload
}
