package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"sitesmith/internal/domain"
	"sitesmith/pkg/zip"
)

type createProjectRequest struct {
	Name string `json:"name"`
}

func (a *App) CreateProject(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Untitled site"
	}
	project := &domain.Project{
		ID:     uuid.NewString(),
		UserID: userID,
		Name:   name,
		Files:  domain.FileSet{},
	}
	if err := a.Projects.Create(r.Context(), project); err != nil {
		a.Logger.Error().Err(err).Msg("api: create project failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create project")
		return
	}
	a.json(w, http.StatusCreated, map[string]string{"id": project.ID, "name": project.Name})
}

func (a *App) ListProjects(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	projects, err := a.Projects.ListByUser(r.Context(), userID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to list projects")
		return
	}
	items := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		items = append(items, map[string]any{
			"id":         p.ID,
			"name":       p.Name,
			"created_at": p.CreatedAt,
			"updated_at": p.UpdatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"projects": items})
}

func (a *App) GetProject(w http.ResponseWriter, r *http.Request) {
	project, ok := a.loadProject(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"id":         project.ID,
		"name":       project.Name,
		"files":      project.Files.WithoutReserved(),
		"created_at": project.CreatedAt,
		"updated_at": project.UpdatedAt,
	})
}

// ExportProject streams the project's file set as a zip archive.
func (a *App) ExportProject(w http.ResponseWriter, r *http.Request) {
	project, ok := a.loadProject(w, r)
	if !ok {
		return
	}
	files := project.Files.WithoutReserved()
	if len(files) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "project has no files")
		return
	}
	archive := zip.ArchiveFiles(files)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", project.Name+".zip"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

func (a *App) ListMessages(w http.ResponseWriter, r *http.Request) {
	project, ok := a.loadProject(w, r)
	if !ok {
		return
	}
	messages, err := a.Chats.ListRecent(r.Context(), project.ID, 50)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load messages")
		return
	}
	items := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		items = append(items, map[string]any{
			"id":         m.ID,
			"role":       m.Role,
			"content":    m.Content,
			"created_at": m.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"messages": items})
}

// loadProject resolves the {id} route param with an ownership check,
// writing the error response itself on failure.
func (a *App) loadProject(w http.ResponseWriter, r *http.Request) (*domain.Project, bool) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return nil, false
	}
	projectID := chi.URLParam(r, "id")
	if projectID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "project id required")
		return nil, false
	}
	project, err := a.Projects.GetByID(r.Context(), projectID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "project not found")
		} else {
			a.error(w, http.StatusInternalServerError, "internal", "failed to load project")
		}
		return nil, false
	}
	return project, true
}
