package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"sitesmith/internal/domain"
	"sitesmith/internal/middleware"
)

// App bundles the collaborators handlers need.
type App struct {
	Logger    zerolog.Logger
	Jobs      domain.JobRepository
	Projects  domain.ProjectRepository
	Chats     domain.ChatRepository
	Usage     domain.UsageRepository
	JWTSecret string
}

// NewApp constructs the handler container.
func NewApp(logger zerolog.Logger, jobs domain.JobRepository, projects domain.ProjectRepository, chats domain.ChatRepository, usage domain.UsageRepository, jwtSecret string) *App {
	return &App{
		Logger:    logger,
		Jobs:      jobs,
		Projects:  projects,
		Chats:     chats,
		Usage:     usage,
		JWTSecret: jwtSecret,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, slug, message string) {
	a.json(w, code, map[string]string{"error": slug, "message": message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

// Health reports liveness.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}
