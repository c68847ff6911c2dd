package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"sitesmith/internal/domain"
	"sitesmith/internal/middleware"
)

type fakeJobs struct {
	created   []*domain.GenerationJob
	active    *domain.GenerationJob
	activeErr error
	byID      map[string]*domain.GenerationJob
}

func (f *fakeJobs) Create(ctx context.Context, job *domain.GenerationJob) error {
	f.created = append(f.created, job)
	return nil
}

func (f *fakeJobs) Update(ctx context.Context, jobID string, upd domain.JobUpdate) error {
	return nil
}

func (f *fakeJobs) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	if job, ok := f.byID[jobID]; ok {
		return job, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeJobs) GetActiveForProject(ctx context.Context, projectID string) (*domain.GenerationJob, error) {
	if f.activeErr != nil {
		return nil, f.activeErr
	}
	if f.active != nil {
		return f.active, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeJobs) Claim(ctx context.Context) (*domain.GenerationJob, error) {
	return nil, domain.ErrNotFound
}

type fakeProjects struct {
	projects map[string]*domain.Project
}

func (f *fakeProjects) Create(ctx context.Context, project *domain.Project) error {
	if f.projects == nil {
		f.projects = map[string]*domain.Project{}
	}
	f.projects[project.ID] = project
	return nil
}

func (f *fakeProjects) GetByID(ctx context.Context, projectID, userID string) (*domain.Project, error) {
	project, ok := f.projects[projectID]
	if !ok || project.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return project, nil
}

func (f *fakeProjects) ListByUser(ctx context.Context, userID string) ([]domain.Project, error) {
	var out []domain.Project
	for _, p := range f.projects {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProjects) ReplaceFiles(ctx context.Context, projectID, userID string, files domain.FileSet) error {
	project, err := f.GetByID(ctx, projectID, userID)
	if err != nil {
		return err
	}
	project.Files = files
	return nil
}

type fakeChats struct {
	messages []domain.ChatMessage
}

func (f *fakeChats) Append(ctx context.Context, msg *domain.ChatMessage) error {
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeChats) ListRecent(ctx context.Context, projectID string, limit int) ([]domain.ChatMessage, error) {
	return f.messages, nil
}

type fakeUsage struct {
	allow      bool
	increments int
}

func (f *fakeUsage) CanGenerate(ctx context.Context, userID string) (bool, error) {
	return f.allow, nil
}

func (f *fakeUsage) IncrementGenerationCount(ctx context.Context, userID, jobID string) error {
	f.increments++
	return nil
}

type testEnv struct {
	app      *App
	jobs     *fakeJobs
	projects *fakeProjects
	chats    *fakeChats
	usage    *fakeUsage
	router   chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		jobs:     &fakeJobs{byID: map[string]*domain.GenerationJob{}},
		projects: &fakeProjects{projects: map[string]*domain.Project{}},
		chats:    &fakeChats{},
		usage:    &fakeUsage{allow: true},
	}
	env.app = NewApp(zerolog.Nop(), env.jobs, env.projects, env.chats, env.usage, "secret")

	r := chi.NewRouter()
	r.Post("/v1/projects/{id}/generate", env.app.Generate)
	r.Get("/v1/projects/{id}/generation", env.app.GenerationStatus)
	r.Get("/v1/jobs/{id}", env.app.GetJob)
	r.Get("/v1/projects/{id}", env.app.GetProject)
	r.Get("/v1/projects/{id}/export", env.app.ExportProject)
	env.router = r
	return env
}

func (e *testEnv) seedProject(id, userID string, files domain.FileSet) {
	e.projects.projects[id] = &domain.Project{ID: id, UserID: userID, Name: "Test site", Files: files}
}

func (e *testEnv) do(method, path, userID, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if userID != "" {
		req = req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestGenerateEnqueuesJob(t *testing.T) {
	env := newTestEnv(t)
	env.seedProject("p1", "u1", domain.FileSet{})

	rec := env.do(http.MethodPost, "/v1/projects/p1/generate", "u1", `{"prompt": "a bakery site"}`)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "pending" || resp["job_id"] == "" {
		t.Fatalf("response = %v", resp)
	}
	if len(env.jobs.created) != 1 {
		t.Fatalf("jobs created = %d, want 1", len(env.jobs.created))
	}
	job := env.jobs.created[0]
	if job.Prompt != "a bakery site" || job.Status != domain.JobStatusPending {
		t.Fatalf("job = %+v", job)
	}
	if len(env.chats.messages) != 1 || env.chats.messages[0].Role != domain.ChatRoleUser {
		t.Fatalf("chat messages = %+v", env.chats.messages)
	}
}

func TestGenerateCapturesLocaleHints(t *testing.T) {
	var logBuf bytes.Buffer
	env := newTestEnv(t)
	env.app.Logger = zerolog.New(&logBuf)
	env.seedProject("p1", "u1", domain.FileSet{})

	req := httptest.NewRequest(http.MethodPost, "/v1/projects/p1/generate", strings.NewReader(`{"prompt": "a bakery site"}`))
	ctx := middleware.ContextWithUserID(req.Context(), "u1")
	ctx = context.WithValue(ctx, middleware.LocaleKey, "de")
	ctx = context.WithValue(ctx, middleware.CountryKey, "DE")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req.WithContext(ctx))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := env.jobs.created[0].Locale; got != "de" {
		t.Fatalf("job locale = %q, want de", got)
	}
	if !strings.Contains(logBuf.String(), `"country":"DE"`) {
		t.Fatalf("enqueue log missing country hint: %s", logBuf.String())
	}
}

func TestGenerateRejectsEmptyPrompt(t *testing.T) {
	env := newTestEnv(t)
	env.seedProject("p1", "u1", domain.FileSet{})

	rec := env.do(http.MethodPost, "/v1/projects/p1/generate", "u1", `{"prompt": "   "}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(env.jobs.created) != 0 {
		t.Fatal("job created despite empty prompt")
	}
}

func TestGenerateQuotaExceeded(t *testing.T) {
	env := newTestEnv(t)
	env.seedProject("p1", "u1", domain.FileSet{})
	env.usage.allow = false

	rec := env.do(http.MethodPost, "/v1/projects/p1/generate", "u1", `{"prompt": "a site"}`)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "quota_exceeded") {
		t.Fatalf("body = %s", rec.Body.String())
	}
	if len(env.jobs.created) != 0 {
		t.Fatal("job created despite exhausted quota")
	}
}

func TestGenerateConflictOnActiveJob(t *testing.T) {
	env := newTestEnv(t)
	env.seedProject("p1", "u1", domain.FileSet{})
	env.jobs.active = &domain.GenerationJob{ID: "live", ProjectID: "p1", Status: domain.JobStatusProcessing}

	rec := env.do(http.MethodPost, "/v1/projects/p1/generate", "u1", `{"prompt": "a site"}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "job_active") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestGenerateUnknownProject(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/v1/projects/nope/generate", "u1", `{"prompt": "a site"}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGenerateOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	env.seedProject("p1", "u1", domain.FileSet{})

	rec := env.do(http.MethodPost, "/v1/projects/p1/generate", "intruder", `{"prompt": "a site"}`)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for foreign project", rec.Code)
	}
}

func TestGenerationStatusPayload(t *testing.T) {
	env := newTestEnv(t)
	env.seedProject("p1", "u1", domain.FileSet{})
	env.jobs.active = &domain.GenerationJob{
		ID:          "job-1",
		ProjectID:   "p1",
		UserID:      "u1",
		Status:      domain.JobStatusProcessing,
		Progress:    40,
		CurrentStep: "Generated 3 of 9 pages",
		Tasks: []domain.GenerationTask{
			{Name: "Plan pages", Status: domain.TaskStatusCompleted},
			{Name: "Generate home page", Status: domain.TaskStatusInProgress},
		},
	}

	rec := env.do(http.MethodGet, "/v1/projects/p1/generation", "u1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["status"] != "processing" || payload["progress"] != float64(40) {
		t.Fatalf("payload = %v", payload)
	}
	if payload["currentTaskIndex"] != float64(1) || payload["totalTasks"] != float64(2) {
		t.Fatalf("task fields = %v / %v", payload["currentTaskIndex"], payload["totalTasks"])
	}
	if _, ok := payload["error"]; ok {
		t.Fatal("error field present on non-error job")
	}
}

func TestGenerationStatusNotFound(t *testing.T) {
	env := newTestEnv(t)
	env.seedProject("p1", "u1", domain.FileSet{})

	rec := env.do(http.MethodGet, "/v1/projects/p1/generation", "u1", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetJobOwnerCheck(t *testing.T) {
	env := newTestEnv(t)
	env.jobs.byID["job-1"] = &domain.GenerationJob{
		ID:     "job-1",
		UserID: "u1",
		Status: domain.JobStatusError,
		Error:  "Job timed out",
	}

	rec := env.do(http.MethodGet, "/v1/jobs/job-1", "u1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["error"] != "Job timed out" {
		t.Fatalf("error = %v", payload["error"])
	}

	rec = env.do(http.MethodGet, "/v1/jobs/job-1", "intruder", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for foreign job", rec.Code)
	}
}

func TestGetProjectHidesReservedKey(t *testing.T) {
	env := newTestEnv(t)
	env.seedProject("p1", "u1", domain.FileSet{
		"index.html":                "<html></html>",
		domain.ReservedReasoningKey: "internal thinking",
	})

	rec := env.do(http.MethodGet, "/v1/projects/p1", "u1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "internal thinking") {
		t.Fatal("reserved key leaked into project response")
	}
}

func TestExportProjectEmpty(t *testing.T) {
	env := newTestEnv(t)
	env.seedProject("p1", "u1", domain.FileSet{})

	rec := env.do(http.MethodGet, "/v1/projects/p1/export", "u1", "")

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for empty project", rec.Code)
	}
}

func TestExportProjectZip(t *testing.T) {
	env := newTestEnv(t)
	env.seedProject("p1", "u1", domain.FileSet{"index.html": "<html></html>"})

	rec := env.do(http.MethodGet, "/v1/projects/p1/export", "u1", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); got != "application/zip" {
		t.Fatalf("content type = %q", got)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty archive body")
	}
}

func TestMissingUserContext(t *testing.T) {
	env := newTestEnv(t)
	env.seedProject("p1", "u1", domain.FileSet{})

	rec := env.do(http.MethodPost, "/v1/projects/p1/generate", "", `{"prompt": "x"}`)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
