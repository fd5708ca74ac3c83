package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/smolev/konveyer/internal/bus"
	"github.com/smolev/konveyer/internal/domain"
	"github.com/smolev/konveyer/internal/gateway"
	"github.com/smolev/konveyer/internal/repo"
	"github.com/smolev/konveyer/internal/service"
)

// --- in-memory фейки хранилищ ---

type fakePipelineStore struct {
	mu        sync.Mutex
	items     map[uuid.UUID]*domain.Pipeline
	createErr error
}

func newFakePipelineStore() *fakePipelineStore {
	return &fakePipelineStore{items: make(map[uuid.UUID]*domain.Pipeline)}
}

func (f *fakePipelineStore) Create(_ context.Context, p *domain.Pipeline) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.items[p.ID] = p
	return nil
}

func (f *fakePipelineStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePipelineStore) List(_ context.Context) ([]domain.Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Pipeline, 0, len(f.items))
	for _, p := range f.items {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakePipelineStore) Delete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[id]; !ok {
		return repo.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

type fakeRunStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.Run
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{items: make(map[uuid.UUID]*domain.Run)}
}

func (f *fakeRunStore) Create(_ context.Context, run *domain.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.items[run.ID] = &cp
	return nil
}

func (f *fakeRunStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (f *fakeRunStore) List(_ context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Run, 0, len(f.items))
	for _, run := range f.items {
		if filter.PipelineID != nil && run.PipelineID != *filter.PipelineID {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		if filter.Repo != "" && run.Repo != filter.Repo {
			continue
		}
		if filter.Branch != "" && run.Branch != filter.Branch {
			continue
		}
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (f *fakeRunStore) UpdateStatus(_ context.Context, run *domain.Run, from domain.RunStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.items[run.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if stored.Status != from {
		return &domain.StateError{Entity: "run", From: string(stored.Status), To: string(run.Status)}
	}
	cp := *run
	f.items[run.ID] = &cp
	return nil
}

func (f *fakeRunStore) Cancel(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.items[id]
	if !ok || run.Status.IsTerminal() {
		return nil, repo.ErrNotFound
	}
	run.MarkCancelled()
	cp := *run
	return &cp, nil
}

func (f *fakeRunStore) ForceFail(_ context.Context, id uuid.UUID, errMsg string) (*domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.items[id]
	if !ok || run.Status.IsTerminal() {
		return nil, repo.ErrNotFound
	}
	run.MarkFailed(errMsg)
	cp := *run
	return &cp, nil
}

type fakeStepStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]*domain.Step
}

func newFakeStepStore() *fakeStepStore {
	return &fakeStepStore{items: make(map[uuid.UUID]*domain.Step)}
}

func (f *fakeStepStore) Create(_ context.Context, step *domain.Step) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *step
	f.items[step.ID] = &cp
	return nil
}

func (f *fakeStepStore) CreateBatch(_ context.Context, steps []domain.Step) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range steps {
		cp := steps[i]
		f.items[cp.ID] = &cp
	}
	return nil
}

func (f *fakeStepStore) GetByName(_ context.Context, runID uuid.UUID, name string) (*domain.Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, step := range f.items {
		if step.RunID == runID && step.Name == name {
			cp := *step
			return &cp, nil
		}
	}
	return nil, repo.ErrNotFound
}

func (f *fakeStepStore) ListByRun(_ context.Context, runID uuid.UUID) ([]domain.Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Step, 0)
	for _, step := range f.items {
		if step.RunID == runID {
			out = append(out, *step)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (f *fakeStepStore) UpdateStatus(_ context.Context, step *domain.Step, from domain.StepStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.items[step.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if stored.Status != from {
		return &domain.StateError{Entity: "step", From: string(stored.Status), To: string(step.Status)}
	}
	cp := *step
	f.items[step.ID] = &cp
	return nil
}

func (f *fakeStepStore) CancelPending(_ context.Context, runID uuid.UUID) ([]domain.Step, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var cancelled []domain.Step
	for _, step := range f.items {
		if step.RunID == runID && step.Status == domain.StepStatusPending {
			step.MarkFinished(domain.StepStatusCancelled)
			cancelled = append(cancelled, *step)
		}
	}
	return cancelled, nil
}

type fakeLogStore struct {
	mu    sync.Mutex
	lines []domain.LogLine
}

func (f *fakeLogStore) Append(_ context.Context, line domain.LogLine) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeLogStore) ListByRun(_ context.Context, runID uuid.UUID, filter repo.LogFilter) ([]domain.LogLine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.LogLine, 0)
	for _, line := range f.lines {
		if line.RunID != runID {
			continue
		}
		if filter.StepID != nil && (line.StepID == nil || *line.StepID != *filter.StepID) {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

type fakeEnqueuer struct {
	mu       sync.Mutex
	enqueued []uuid.UUID
}

func (f *fakeEnqueuer) PublishRunQueued(_ context.Context, runID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enqueued = append(f.enqueued, runID)
	return nil
}

// --- тестовый сервер ---

type testEnv struct {
	server    *httptest.Server
	pipelines *fakePipelineStore
	runs      *fakeRunStore
	steps     *fakeStepStore
	logs      *fakeLogStore
	queue     *fakeEnqueuer
	bus       *bus.Bus
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	env := &testEnv{
		pipelines: newFakePipelineStore(),
		runs:      newFakeRunStore(),
		steps:     newFakeStepStore(),
		logs:      &fakeLogStore{},
		queue:     &fakeEnqueuer{},
		bus:       bus.New(logger),
	}

	svc := service.New(service.Config{
		Pipelines: env.pipelines,
		Runs:      env.runs,
		Steps:     env.steps,
		Logs:      env.logs,
		Queue:     env.queue,
		Events:    env.bus,
		Logger:    logger,
	})

	handler := NewHandler(Config{
		Service: svc,
		Gateway: gateway.New(env.bus, logger),
		Logger:  logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	env.server = httptest.NewServer(mux)
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) seedPipeline(t *testing.T) *domain.Pipeline {
	t.Helper()
	p := &domain.Pipeline{
		ID:   uuid.New(),
		Name: "backend-ci",
		Config: domain.PipelineConfig{
			Stages: []domain.StageDef{
				{Name: "Build", Steps: []domain.StepDef{{Name: "compile"}}},
				{Name: "Test", Steps: []domain.StepDef{{Name: "unit"}, {Name: "lint"}}},
			},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := e.pipelines.Create(context.Background(), p); err != nil {
		t.Fatalf("seed pipeline: %v", err)
	}
	return p
}

func (e *testEnv) seedRun(t *testing.T, status domain.RunStatus) *domain.Run {
	t.Helper()
	run := &domain.Run{
		ID:         uuid.New(),
		PipelineID: uuid.New(),
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.runs.Create(context.Background(), run); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	return run
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeData[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var envelope struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return envelope.Data
}

// --- pipelines ---

func TestCreatePipeline(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/pipelines", CreatePipelineRequest{
		Name: "backend-ci",
		Config: domain.PipelineConfig{
			Stages: []domain.StageDef{
				{Name: "Build", Steps: []domain.StepDef{{Name: "compile", Command: "make"}}},
			},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	created := decodeData[PipelineResponse](t, resp)
	if created.Name != "backend-ci" {
		t.Errorf("name = %q", created.Name)
	}
	if created.ID == uuid.Nil {
		t.Error("expected generated id")
	}
}

// Конфликт уникальности из хранилища доезжает до клиента как 409.
func TestCreatePipeline_Conflict(t *testing.T) {
	env := newTestEnv(t)
	env.pipelines.createErr = repo.ErrAlreadyExists

	resp := env.do(t, http.MethodPost, "/api/v1/pipelines", CreatePipelineRequest{
		Name: "backend-ci",
		Config: domain.PipelineConfig{
			Stages: []domain.StageDef{
				{Name: "Build", Steps: []domain.StepDef{{Name: "compile"}}},
			},
		},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestCreatePipeline_EmptyConfig(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/pipelines", CreatePipelineRequest{Name: "empty"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetPipeline_NotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/pipelines/"+uuid.NewString(), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeletePipeline(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedPipeline(t)

	resp := env.do(t, http.MethodDelete, "/api/v1/pipelines/"+p.ID.String(), nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/api/v1/pipelines/"+p.ID.String(), nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status after delete = %d, want 404", resp.StatusCode)
	}
}

// --- runs ---

func TestTriggerRun(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedPipeline(t)

	resp := env.do(t, http.MethodPost, "/api/v1/pipelines/"+p.ID.String()+"/runs", TriggerRunRequest{
		Repo:        "acme/backend",
		Branch:      "main",
		TriggeredBy: "alice",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	run := decodeData[RunResponse](t, resp)
	if run.Status != domain.RunStatusQueued {
		t.Errorf("status = %q, want queued", run.Status)
	}

	steps, _ := env.steps.ListByRun(context.Background(), run.ID)
	if len(steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(steps))
	}
	if len(env.queue.enqueued) != 1 || env.queue.enqueued[0] != run.ID {
		t.Errorf("run was not enqueued")
	}
}

func TestTriggerRun_EmptyBody(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedPipeline(t)

	resp := env.do(t, http.MethodPost, "/api/v1/pipelines/"+p.ID.String()+"/runs", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
}

func TestTriggerRun_PipelineNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/pipelines/"+uuid.NewString()+"/runs", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestGetRun_IncludesSteps(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedPipeline(t)

	resp := env.do(t, http.MethodPost, "/api/v1/pipelines/"+p.ID.String()+"/runs", nil)
	run := decodeData[RunResponse](t, resp)

	resp = env.do(t, http.MethodGet, "/api/v1/runs/"+run.ID.String(), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	got := decodeData[RunResponse](t, resp)
	if len(got.Steps) != 3 {
		t.Fatalf("steps = %d, want 3", len(got.Steps))
	}
	for i, step := range got.Steps {
		if step.Seq != i+1 {
			t.Errorf("steps[%d].seq = %d, want %d", i, step.Seq, i+1)
		}
		if step.Status != domain.StepStatusPending {
			t.Errorf("steps[%d].status = %q, want pending", i, step.Status)
		}
	}
}

func TestListRuns_StatusFilter(t *testing.T) {
	env := newTestEnv(t)
	env.seedRun(t, domain.RunStatusQueued)
	env.seedRun(t, domain.RunStatusSuccess)

	resp := env.do(t, http.MethodGet, "/api/v1/runs?status=success", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	runs := decodeData[[]RunResponse](t, resp)
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	if runs[0].Status != domain.RunStatusSuccess {
		t.Errorf("status = %q", runs[0].Status)
	}
}

func TestListRuns_InvalidStatus(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/runs?status=bogus", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCancelRun(t *testing.T) {
	env := newTestEnv(t)
	run := env.seedRun(t, domain.RunStatusRunning)

	resp := env.do(t, http.MethodPost, "/api/v1/runs/"+run.ID.String()+"/cancel", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	got := decodeData[RunResponse](t, resp)
	if got.Status != domain.RunStatusCancelled {
		t.Errorf("status = %q, want cancelled", got.Status)
	}
}

func TestCancelRun_AlreadyFinished(t *testing.T) {
	env := newTestEnv(t)
	run := env.seedRun(t, domain.RunStatusSuccess)

	resp := env.do(t, http.MethodPost, "/api/v1/runs/"+run.ID.String()+"/cancel", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	got := decodeData[RunResponse](t, resp)
	if got.Status != domain.RunStatusSuccess {
		t.Errorf("status = %q, want success (no-op)", got.Status)
	}
}

func TestCancelRun_InvalidID(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/runs/not-a-uuid/cancel", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestRerun(t *testing.T) {
	env := newTestEnv(t)
	p := env.seedPipeline(t)

	resp := env.do(t, http.MethodPost, "/api/v1/pipelines/"+p.ID.String()+"/runs", nil)
	original := decodeData[RunResponse](t, resp)

	resp = env.do(t, http.MethodPost, "/api/v1/runs/"+original.ID.String()+"/rerun", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	clone := decodeData[RunResponse](t, resp)
	if clone.ID == original.ID {
		t.Error("rerun must create a new run")
	}
	if clone.TriggeredBy != "rerun" {
		t.Errorf("triggeredBy = %q, want rerun", clone.TriggeredBy)
	}
}

func TestRunLogs(t *testing.T) {
	env := newTestEnv(t)
	run := env.seedRun(t, domain.RunStatusRunning)

	for i := range 3 {
		line := domain.LogLine{
			RunID:   run.ID,
			Ts:      time.Now().UTC(),
			Level:   domain.LogLevelInfo,
			Message: fmt.Sprintf("line %d", i),
		}
		if err := env.logs.Append(context.Background(), line); err != nil {
			t.Fatalf("append log: %v", err)
		}
	}

	resp := env.do(t, http.MethodGet, "/api/v1/runs/"+run.ID.String()+"/logs", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	lines := decodeData[[]LogLineResponse](t, resp)
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
}

// --- CI integration ---

func TestReportRunStatus(t *testing.T) {
	env := newTestEnv(t)
	run := env.seedRun(t, domain.RunStatusQueued)

	resp := env.do(t, http.MethodPost, "/api/v1/ci/runs/"+run.ID.String()+"/status", ReportRunStatusRequest{
		Status: "running",
		CIURL:  "https://ci.example.com/job/42",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	got := decodeData[RunResponse](t, resp)
	if got.Status != domain.RunStatusRunning {
		t.Errorf("status = %q, want running", got.Status)
	}
	if got.Meta["ciUrl"] != "https://ci.example.com/job/42" {
		t.Errorf("meta.ciUrl = %v", got.Meta["ciUrl"])
	}
}

func TestReportRunStatus_IllegalTransition(t *testing.T) {
	env := newTestEnv(t)
	run := env.seedRun(t, domain.RunStatusSuccess)

	resp := env.do(t, http.MethodPost, "/api/v1/ci/runs/"+run.ID.String()+"/status", ReportRunStatusRequest{
		Status: "running",
	})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestReportStep_CreatesMissing(t *testing.T) {
	env := newTestEnv(t)
	run := env.seedRun(t, domain.RunStatusRunning)

	resp := env.do(t, http.MethodPost, "/api/v1/ci/steps", ReportStepRequest{
		RunID:    run.ID.String(),
		StepName: "sonar-scan",
		Status:   "running",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	step := decodeData[StepResponse](t, resp)
	if step.Name != "sonar-scan" {
		t.Errorf("name = %q", step.Name)
	}
	if step.Stage != "external" {
		t.Errorf("stage = %q, want external", step.Stage)
	}
}

func TestReportLog(t *testing.T) {
	env := newTestEnv(t)
	run := env.seedRun(t, domain.RunStatusRunning)

	resp := env.do(t, http.MethodPost, "/api/v1/ci/logs", ReportLogRequest{
		RunID:   run.ID.String(),
		Message: "deploying to staging",
	})
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", resp.StatusCode)
	}

	lines, _ := env.logs.ListByRun(context.Background(), run.ID, repo.LogFilter{})
	if len(lines) != 1 {
		t.Fatalf("lines = %d, want 1", len(lines))
	}
	if lines[0].Level != domain.LogLevelInfo {
		t.Errorf("level = %q, want info by default", lines[0].Level)
	}
}

// --- SSE ---

func TestStreamRunEvents(t *testing.T) {
	env := newTestEnv(t)
	run := env.seedRun(t, domain.RunStatusRunning)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		env.server.URL+"/api/v1/runs/"+run.ID.String()+"/events", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := env.server.Client().Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content-type = %q", ct)
	}

	scanner := bufio.NewScanner(resp.Body)
	readEvent := func() string {
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "event: ") {
				return strings.TrimPrefix(line, "event: ")
			}
		}
		t.Fatalf("stream ended unexpectedly: %v", scanner.Err())
		return ""
	}

	// Первым приходит снапшот статуса.
	if kind := readEvent(); kind != "run:status" {
		t.Fatalf("first event = %q, want run:status", kind)
	}

	// Публикация в шину доходит до открытого потока.
	line := domain.LogLine{
		RunID:   run.ID,
		Ts:      time.Now().UTC(),
		Level:   domain.LogLevelInfo,
		Message: "hello",
	}
	go func() {
		// Подписка оформляется до первой записи в ответ, но даём
		// серверу шанс дойти до цикла чтения.
		time.Sleep(50 * time.Millisecond)
		env.bus.Publish(domain.NewLogEvent(line))
	}()

	if kind := readEvent(); kind != "run:log" {
		t.Fatalf("second event = %q, want run:log", kind)
	}
}

func TestStreamRunEvents_RunNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString()+"/events", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
