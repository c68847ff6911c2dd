package generate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"sitesmith/internal/domain"
	"sitesmith/internal/providers/chat"
)

type fakeJobs struct {
	mu   sync.Mutex
	jobs map[string]*domain.GenerationJob
}

func newFakeJobs(seed ...*domain.GenerationJob) *fakeJobs {
	f := &fakeJobs{jobs: map[string]*domain.GenerationJob{}}
	for _, j := range seed {
		f.jobs[j.ID] = j
	}
	return f
}

func (f *fakeJobs) Create(ctx context.Context, job *domain.GenerationJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobs) Update(ctx context.Context, jobID string, upd domain.JobUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if upd.Status != nil {
		job.Status = *upd.Status
	}
	if upd.Progress != nil {
		job.Progress = *upd.Progress
	}
	if upd.CurrentStep != nil {
		job.CurrentStep = *upd.CurrentStep
	}
	if upd.Files != nil {
		job.Files = upd.Files.Clone()
	}
	if upd.Tasks != nil {
		job.Tasks = append([]domain.GenerationTask(nil), upd.Tasks...)
	}
	if upd.Error != nil {
		job.Error = *upd.Error
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (f *fakeJobs) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

func (f *fakeJobs) GetActiveForProject(ctx context.Context, projectID string) (*domain.GenerationJob, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeJobs) Claim(ctx context.Context) (*domain.GenerationJob, error) {
	return nil, domain.ErrNotFound
}

type fakeProjects struct {
	mu      sync.Mutex
	project *domain.Project
}

func (f *fakeProjects) Create(ctx context.Context, project *domain.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.project = project
	return nil
}

func (f *fakeProjects) GetByID(ctx context.Context, projectID, userID string) (*domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.project == nil || f.project.ID != projectID || f.project.UserID != userID {
		return nil, domain.ErrNotFound
	}
	clone := *f.project
	clone.Files = f.project.Files.Clone()
	return &clone, nil
}

func (f *fakeProjects) ListByUser(ctx context.Context, userID string) ([]domain.Project, error) {
	return nil, nil
}

func (f *fakeProjects) ReplaceFiles(ctx context.Context, projectID, userID string, files domain.FileSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.project == nil || f.project.ID != projectID || f.project.UserID != userID {
		return domain.ErrNotFound
	}
	f.project.Files = files.Clone()
	return nil
}

type fakeChats struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
}

func (f *fakeChats) Append(ctx context.Context, msg *domain.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeChats) ListRecent(ctx context.Context, projectID string, limit int) ([]domain.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := 0
	if len(f.messages) > limit {
		start = len(f.messages) - limit
	}
	return append([]domain.ChatMessage(nil), f.messages[start:]...), nil
}

func (f *fakeChats) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return ""
	}
	return f.messages[len(f.messages)-1].Content
}

type fakeUsage struct {
	mu         sync.Mutex
	increments int
}

func (f *fakeUsage) CanGenerate(ctx context.Context, userID string) (bool, error) {
	return true, nil
}

func (f *fakeUsage) IncrementGenerationCount(ctx context.Context, userID, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.increments++
	return nil
}

func (f *fakeUsage) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.increments
}

type fakeChat struct {
	complete func(ctx context.Context, req chat.Request) (*chat.Response, error)
	stream   func(ctx context.Context, req chat.Request) (<-chan chat.StreamEvent, error)
}

func (f *fakeChat) Complete(ctx context.Context, req chat.Request) (*chat.Response, error) {
	if f.complete == nil {
		return nil, errors.New("unexpected Complete call")
	}
	return f.complete(ctx, req)
}

func (f *fakeChat) Stream(ctx context.Context, req chat.Request) (<-chan chat.StreamEvent, error) {
	if f.stream == nil {
		return nil, errors.New("unexpected Stream call")
	}
	return f.stream(ctx, req)
}

// streamOf delivers the given deltas followed by a Done event.
func streamOf(deltas ...chat.StreamEvent) <-chan chat.StreamEvent {
	events := make(chan chat.StreamEvent, len(deltas)+1)
	for _, d := range deltas {
		events <- d
	}
	events <- chat.StreamEvent{Done: true}
	close(events)
	return events
}

func contentDeltas(content string, chunkSize int) []chat.StreamEvent {
	var deltas []chat.StreamEvent
	for len(content) > 0 {
		n := chunkSize
		if n > len(content) {
			n = len(content)
		}
		deltas = append(deltas, chat.StreamEvent{ContentDelta: content[:n]})
		content = content[n:]
	}
	return deltas
}

func testOrchestrator(jobs *fakeJobs, projects *fakeProjects, chats *fakeChats, usage *fakeUsage, client ChatClient) *Orchestrator {
	return New(jobs, projects, chats, usage, client, Models{Builder: "builder", Modifier: "modifier"}, zerolog.Nop())
}

func seedJob(projectID, userID, prompt string) *domain.GenerationJob {
	return &domain.GenerationJob{
		ID:        "job-1",
		ProjectID: projectID,
		UserID:    userID,
		Status:    domain.JobStatusProcessing,
		Prompt:    prompt,
		CreatedAt: time.Now(),
	}
}

const substantialPage = "<html><body>" +
	"This page has more than one hundred characters of real content so the " +
	"pipeline treats the project as an existing site." +
	"</body></html>"

func TestRunQuickEditNeverCallsModel(t *testing.T) {
	projects := &fakeProjects{project: &domain.Project{
		ID:     "p1",
		UserID: "u1",
		Files: domain.FileSet{
			"index.html": strings.ReplaceAll(substantialPage, "real content", "ELEVATE content"),
			"about.html": "<title>ELEVATE</title>",
		},
	}}
	job := seedJob("p1", "u1", `change "ELEVATE" to "NovaCorp"`)
	jobs := newFakeJobs(job)
	chats := &fakeChats{}
	usage := &fakeUsage{}
	client := &fakeChat{} // any provider call errors and fails the run

	testOrchestrator(jobs, projects, chats, usage, client).Run(context.Background(), job)

	got, _ := jobs.GetByID(context.Background(), "job-1")
	if got.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q, want completed (error: %q)", got.Status, got.Error)
	}
	if got.Progress != 100 {
		t.Fatalf("progress = %d, want 100", got.Progress)
	}
	if !strings.Contains(projects.project.Files["index.html"], "NovaCorp") {
		t.Fatalf("index.html not edited: %q", projects.project.Files["index.html"])
	}
	if !strings.Contains(projects.project.Files["about.html"], "NovaCorp") {
		t.Fatalf("about.html not edited: %q", projects.project.Files["about.html"])
	}
	if usage.count() != 1 {
		t.Fatalf("usage increments = %d, want 1", usage.count())
	}
	if !strings.Contains(chats.last(), "Replaced") {
		t.Fatalf("chat summary = %q", chats.last())
	}
}

func TestRunModificationMergesUpdates(t *testing.T) {
	projects := &fakeProjects{project: &domain.Project{
		ID:     "p1",
		UserID: "u1",
		Files: domain.FileSet{
			"index.html": substantialPage,
			"about.html": "<html>old about</html>",
		},
	}}
	job := seedJob("p1", "u1", "update the headline on the about page")
	jobs := newFakeJobs(job)
	chats := &fakeChats{}
	usage := &fakeUsage{}
	client := &fakeChat{
		stream: func(ctx context.Context, req chat.Request) (<-chan chat.StreamEvent, error) {
			if req.Model != "modifier" {
				t.Errorf("model = %q, want modifier", req.Model)
			}
			if !req.JSONObject {
				t.Error("JSONObject not set on modification request")
			}
			return streamOf(
				contentDeltas(`{"about.html": "<html>new about</html>"}`, 10)...,
			), nil
		},
	}

	testOrchestrator(jobs, projects, chats, usage, client).Run(context.Background(), job)

	got, _ := jobs.GetByID(context.Background(), "job-1")
	if got.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q, want completed (error: %q)", got.Status, got.Error)
	}
	if projects.project.Files["about.html"] != "<html>new about</html>" {
		t.Fatalf("about.html = %q", projects.project.Files["about.html"])
	}
	if projects.project.Files["index.html"] != substantialPage {
		t.Fatal("unmentioned file dropped during merge")
	}
	if usage.count() != 1 {
		t.Fatalf("usage increments = %d, want 1", usage.count())
	}
}

func TestRunAgentWorkflowBatchesPages(t *testing.T) {
	pages := []string{"home", "about", "services", "pricing", "team", "blog", "contact", "features", "docs"}

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0

	client := &fakeChat{
		complete: func(ctx context.Context, req chat.Request) (*chat.Response, error) {
			system := req.Messages[0].Content
			switch {
			case system == plannerSystemPrompt:
				return &chat.Response{Content: `["` + strings.Join(pages, `","`) + `"]`}, nil
			case system == designSystemPrompt:
				return &chat.Response{Content: "Palette: #123456. Typography: serif."}, nil
			case system == pageSystemPrompt:
				mu.Lock()
				inFlight++
				if inFlight > maxInFlight {
					maxInFlight = inFlight
				}
				mu.Unlock()
				defer func() {
					mu.Lock()
					inFlight--
					mu.Unlock()
				}()
				time.Sleep(5 * time.Millisecond)
				user := req.Messages[1].Content
				if strings.Contains(user, `"blog"`) {
					return nil, errors.New("provider hiccup")
				}
				for _, name := range pages {
					if strings.Contains(user, `"`+name+`"`) {
						return &chat.Response{Content: "<html><body>" + name + "</body></html>"}, nil
					}
				}
				return nil, errors.New("unknown page request")
			default:
				return nil, errors.New("unexpected system prompt")
			}
		},
	}

	projects := &fakeProjects{project: &domain.Project{ID: "p1", UserID: "u1", Files: domain.FileSet{}}}
	job := seedJob("p1", "u1", "a full company website")
	jobs := newFakeJobs(job)
	chats := &fakeChats{}
	usage := &fakeUsage{}

	testOrchestrator(jobs, projects, chats, usage, client).Run(context.Background(), job)

	got, _ := jobs.GetByID(context.Background(), "job-1")
	if got.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q, want completed (error: %q)", got.Status, got.Error)
	}
	if maxInFlight > pageBatchSize {
		t.Fatalf("max in-flight page calls = %d, want <= %d", maxInFlight, pageBatchSize)
	}
	if len(projects.project.Files) != len(pages)-1 {
		t.Fatalf("len(files) = %d, want %d", len(projects.project.Files), len(pages)-1)
	}
	if _, ok := projects.project.Files["blog.html"]; ok {
		t.Fatal("failed page present in final files")
	}
	if !strings.Contains(projects.project.Files["index.html"], "home") {
		t.Fatalf("index.html = %q", projects.project.Files["index.html"])
	}

	// plan + design + 9 pages + finalize
	if len(got.Tasks) != len(pages)+3 {
		t.Fatalf("len(tasks) = %d, want %d", len(got.Tasks), len(pages)+3)
	}
	blogIdx := pageTaskIndex(got.Tasks, "blog")
	if blogIdx < 0 {
		t.Fatal("blog task missing")
	}
	if got.Tasks[blogIdx].Status != domain.TaskStatusError {
		t.Fatalf("blog task status = %q, want error", got.Tasks[blogIdx].Status)
	}
	for _, task := range got.Tasks {
		if task.File == "blog.html" {
			continue
		}
		if task.Status != domain.TaskStatusCompleted {
			t.Fatalf("task %q status = %q, want completed", task.Name, task.Status)
		}
	}
	if usage.count() != 1 {
		t.Fatalf("usage increments = %d, want 1", usage.count())
	}
	if !strings.Contains(chats.last(), "8 of 9") {
		t.Fatalf("chat summary = %q", chats.last())
	}
}

func TestRunSinglePagePlanUsesStream(t *testing.T) {
	client := &fakeChat{
		complete: func(ctx context.Context, req chat.Request) (*chat.Response, error) {
			return &chat.Response{Content: `["home"]`}, nil
		},
		stream: func(ctx context.Context, req chat.Request) (<-chan chat.StreamEvent, error) {
			if req.Model != "builder" {
				t.Errorf("model = %q, want builder", req.Model)
			}
			deltas := append(
				[]chat.StreamEvent{{ReasoningDelta: "Keeping it to one page."}},
				contentDeltas(`{"index.html": "<!DOCTYPE html><html><body>Landing</body></html>"}`, 16)...,
			)
			return streamOf(deltas...), nil
		},
	}

	projects := &fakeProjects{project: &domain.Project{ID: "p1", UserID: "u1", Files: domain.FileSet{}}}
	job := seedJob("p1", "u1", "a simple landing page")
	jobs := newFakeJobs(job)
	chats := &fakeChats{}
	usage := &fakeUsage{}

	testOrchestrator(jobs, projects, chats, usage, client).Run(context.Background(), job)

	got, _ := jobs.GetByID(context.Background(), "job-1")
	if got.Status != domain.JobStatusCompleted {
		t.Fatalf("status = %q, want completed (error: %q)", got.Status, got.Error)
	}
	if !strings.Contains(projects.project.Files["index.html"], "Landing") {
		t.Fatalf("index.html = %q", projects.project.Files["index.html"])
	}
	if usage.count() != 1 {
		t.Fatalf("usage increments = %d, want 1", usage.count())
	}
}

func TestRunNewSiteRejectsNonHTMLIndex(t *testing.T) {
	client := &fakeChat{
		complete: func(ctx context.Context, req chat.Request) (*chat.Response, error) {
			return &chat.Response{Content: `["home"]`}, nil
		},
		stream: func(ctx context.Context, req chat.Request) (<-chan chat.StreamEvent, error) {
			return streamOf(chat.StreamEvent{ContentDelta: `{"index.html": "sorry, I cannot do that"}`}), nil
		},
	}

	projects := &fakeProjects{project: &domain.Project{ID: "p1", UserID: "u1", Files: domain.FileSet{}}}
	job := seedJob("p1", "u1", "a landing page")
	jobs := newFakeJobs(job)
	chats := &fakeChats{}
	usage := &fakeUsage{}

	testOrchestrator(jobs, projects, chats, usage, client).Run(context.Background(), job)

	got, _ := jobs.GetByID(context.Background(), "job-1")
	if got.Status != domain.JobStatusError {
		t.Fatalf("status = %q, want error", got.Status)
	}
	if got.Error == "" {
		t.Fatal("error message empty")
	}
	if usage.count() != 0 {
		t.Fatalf("usage increments = %d, want 0 on failure", usage.count())
	}
	if !strings.Contains(chats.last(), "Sorry") {
		t.Fatalf("apology chat = %q", chats.last())
	}
}

func TestRunStreamFailureWritesErrorState(t *testing.T) {
	projects := &fakeProjects{project: &domain.Project{
		ID:     "p1",
		UserID: "u1",
		Files:  domain.FileSet{"index.html": substantialPage},
	}}
	job := seedJob("p1", "u1", "rework the layout with a sidebar and a sticky header")
	jobs := newFakeJobs(job)
	chats := &fakeChats{}
	usage := &fakeUsage{}
	client := &fakeChat{
		stream: func(ctx context.Context, req chat.Request) (<-chan chat.StreamEvent, error) {
			return streamOf(chat.StreamEvent{Err: errors.New("connection reset")}), nil
		},
	}

	testOrchestrator(jobs, projects, chats, usage, client).Run(context.Background(), job)

	got, _ := jobs.GetByID(context.Background(), "job-1")
	if got.Status != domain.JobStatusError {
		t.Fatalf("status = %q, want error", got.Status)
	}
	if !strings.Contains(got.Error, "connection reset") {
		t.Fatalf("error = %q", got.Error)
	}
	if projects.project.Files["index.html"] != substantialPage {
		t.Fatal("project files changed on failed job")
	}
	if usage.count() != 0 {
		t.Fatalf("usage increments = %d, want 0 on failure", usage.count())
	}
}
