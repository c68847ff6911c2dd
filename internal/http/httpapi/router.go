package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"sitesmith/internal/http/handlers"
	"sitesmith/internal/middleware"
)

// Options configures router middleware.
type Options struct {
	JWTSecret       string
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
	AllowedOrigins  []string
}

// NewRouter assembles the API surface.
func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP, chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(app.Logger))
	r.Use(middleware.CORS(opts.AllowedOrigins))
	r.Use(middleware.I18N(opts.DefaultLocale, opts.CountryLookup))
	if opts.RateLimitPerMin > 0 {
		r.Use(middleware.RateLimit(opts.RateLimitPerMin, time.Minute))
	}

	r.Get("/v1/healthz", app.Health)
	r.Post("/v1/auth/token", app.IssueToken)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))

		r.Route("/v1/projects", func(r chi.Router) {
			r.Post("/", app.CreateProject)
			r.Get("/", app.ListProjects)
			r.Get("/{id}", app.GetProject)
			r.Get("/{id}/export", app.ExportProject)
			r.Get("/{id}/messages", app.ListMessages)
			r.Post("/{id}/generate", app.Generate)
			r.Get("/{id}/generation", app.GenerationStatus)
		})

		r.Get("/v1/jobs/{id}", app.GetJob)
	})

	return r
}
