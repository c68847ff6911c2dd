package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sitesmith/internal/adapter/repo"
	"sitesmith/internal/domain"
	"sitesmith/internal/generate"
	"sitesmith/internal/infra"
	"sitesmith/internal/providers/chat"
	"sitesmith/internal/storage"
)

const jobPollInterval = 2 * time.Second

type jobWorker struct {
	ctx          context.Context
	jobs         domain.JobRepository
	projects     domain.ProjectRepository
	orchestrator *generate.Orchestrator
	preview      *storage.PreviewStore
	logger       infra.Logger
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	client, err := chat.NewClient(chat.Options{
		APIKey:       cfg.ChatAPIKey,
		BaseURL:      cfg.ChatBaseURL,
		Organization: cfg.ChatOrg,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure chat client")
	}

	preview, err := storage.NewPreviewStore(cfg.PreviewPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure preview storage")
	}

	jobs := repo.NewJobRepository(pool)
	projects := repo.NewProjectRepository(pool)

	orchestrator := generate.New(
		jobs,
		projects,
		repo.NewChatRepository(pool),
		repo.NewUsageRepository(pool, cfg.DailyGenerations),
		client,
		generate.Models{Builder: cfg.BuilderModel, Modifier: cfg.ModifierModel},
		logger,
	)

	worker := &jobWorker{
		ctx:          ctx,
		jobs:         jobs,
		projects:     projects,
		orchestrator: orchestrator,
		preview:      preview,
		logger:       logger,
	}

	if err := worker.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// Run polls for pending jobs and processes them one at a time. Each claimed
// job runs to a terminal state before the next claim.
func (w *jobWorker) Run() error {
	w.logger.Info().Msg("worker: started")
	for {
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		default:
		}

		job, err := w.jobs.Claim(w.ctx)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				w.logger.Error().Err(err).Msg("worker: failed to claim job")
			}
			select {
			case <-w.ctx.Done():
				return w.ctx.Err()
			case <-time.After(jobPollInterval):
			}
			continue
		}

		w.handleJob(job)
	}
}

func (w *jobWorker) handleJob(job *domain.GenerationJob) {
	w.logger.Info().Str("job_id", job.ID).Str("project_id", job.ProjectID).Msg("worker: picked job")
	w.orchestrator.Run(w.ctx, job)
	w.writePreview(job)
}

// writePreview mirrors the project's final file set to local preview
// storage; failures are logged, never surfaced to the job.
func (w *jobWorker) writePreview(job *domain.GenerationJob) {
	project, err := w.projects.GetByID(w.ctx, job.ProjectID, job.UserID)
	if err != nil {
		w.logger.Warn().Err(err).Str("project_id", job.ProjectID).Msg("worker: preview load failed")
		return
	}
	if len(project.Files.WithoutReserved()) == 0 {
		return
	}
	if err := w.preview.WriteSite(w.ctx, project.ID, project.Files); err != nil {
		w.logger.Warn().Err(err).Str("project_id", project.ID).Msg("worker: preview write failed")
	}
}
