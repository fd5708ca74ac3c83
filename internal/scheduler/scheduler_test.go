package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/smolev/konveyer/internal/domain"
	"github.com/smolev/konveyer/internal/service"
)

type fakePipelineSource struct {
	mu        sync.Mutex
	pipelines []domain.Pipeline
	err       error
}

func (f *fakePipelineSource) ListScheduled(_ context.Context) ([]domain.Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Pipeline, len(f.pipelines))
	copy(out, f.pipelines)
	return out, nil
}

type fakeTrigger struct {
	mu        sync.Mutex
	triggered []uuid.UUID
	opts      []service.TriggerOptions
	err       error
}

func (f *fakeTrigger) TriggerRun(_ context.Context, pipelineID uuid.UUID, opts service.TriggerOptions) (*domain.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.triggered = append(f.triggered, pipelineID)
	f.opts = append(f.opts, opts)
	return &domain.Run{ID: uuid.New(), PipelineID: pipelineID, Status: domain.RunStatusQueued}, nil
}

func scheduledPipeline(name, schedule string) domain.Pipeline {
	return domain.Pipeline{
		ID:   uuid.New(),
		Name: name,
		Config: domain.PipelineConfig{
			Stages:   []domain.StageDef{{Name: "Build", Steps: []domain.StepDef{{Name: "compile"}}}},
			Schedule: schedule,
		},
	}
}

func newTestScheduler(source *fakePipelineSource, trigger *fakeTrigger) *Scheduler {
	return New(Config{
		Pipelines: source,
		Trigger:   trigger,
		Logger:    slog.New(slog.DiscardHandler),
	})
}

func TestTick_LoadsScheduledPipelines(t *testing.T) {
	source := &fakePipelineSource{pipelines: []domain.Pipeline{
		scheduledPipeline("nightly", "0 3 * * *"),
		scheduledPipeline("hourly", "0 * * * *"),
	}}
	trigger := &fakeTrigger{}
	sched := newTestScheduler(source, trigger)

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(sched.entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(sched.entries))
	}
	for _, e := range sched.entries {
		if !e.nextFire.After(time.Now().UTC().Add(-time.Second)) {
			t.Errorf("pipeline %q nextFire %v is in the past", e.name, e.nextFire)
		}
	}
	// Свежезагруженный pipeline не должен стрелять сразу.
	if len(trigger.triggered) != 0 {
		t.Errorf("triggered %d runs on first tick, want 0", len(trigger.triggered))
	}
}

func TestTick_InvalidScheduleSkipped(t *testing.T) {
	source := &fakePipelineSource{pipelines: []domain.Pipeline{
		scheduledPipeline("ok", "*/5 * * * *"),
		scheduledPipeline("broken", "not a cron"),
	}}
	sched := newTestScheduler(source, &fakeTrigger{})

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(sched.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(sched.entries))
	}
}

func TestTick_FiresDuePipeline(t *testing.T) {
	p := scheduledPipeline("nightly", "0 3 * * *")
	source := &fakePipelineSource{pipelines: []domain.Pipeline{p}}
	trigger := &fakeTrigger{}
	sched := newTestScheduler(source, trigger)

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	// Подводим часы: время запуска наступило.
	sched.entries[p.ID].nextFire = time.Now().UTC().Add(-time.Minute)

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(trigger.triggered) != 1 || trigger.triggered[0] != p.ID {
		t.Fatalf("triggered = %v, want [%s]", trigger.triggered, p.ID)
	}
	if trigger.opts[0].TriggeredBy != "schedule" {
		t.Errorf("triggeredBy = %q, want schedule", trigger.opts[0].TriggeredBy)
	}
	if !sched.entries[p.ID].nextFire.After(time.Now().UTC()) {
		t.Error("nextFire was not advanced after firing")
	}
}

func TestTick_TriggerErrorDoesNotBlockOthers(t *testing.T) {
	p1 := scheduledPipeline("a", "0 * * * *")
	p2 := scheduledPipeline("b", "0 * * * *")
	source := &fakePipelineSource{pipelines: []domain.Pipeline{p1, p2}}

	trigger := &fakeTrigger{}
	sched := newTestScheduler(source, trigger)

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	past := time.Now().UTC().Add(-time.Minute)
	sched.entries[p1.ID].nextFire = past
	sched.entries[p2.ID].nextFire = past

	trigger.err = errors.New("db down")
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(trigger.triggered) != 0 {
		t.Fatalf("triggered = %d, want 0 while trigger is failing", len(trigger.triggered))
	}

	// Ошибка не трогает расписание: nextFire уже сдвинут, повторный
	// тик без ошибки ничего не запускает до следующего слота.
	trigger.err = nil
	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(trigger.triggered) != 0 {
		t.Fatalf("triggered = %d, want 0 until next slot", len(trigger.triggered))
	}
}

func TestReload_RemovesUnscheduled(t *testing.T) {
	p := scheduledPipeline("nightly", "0 3 * * *")
	source := &fakePipelineSource{pipelines: []domain.Pipeline{p}}
	sched := newTestScheduler(source, &fakeTrigger{})

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(sched.entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(sched.entries))
	}

	// Pipeline лишился расписания.
	source.mu.Lock()
	source.pipelines = nil
	source.mu.Unlock()
	sched.lastReload = time.Time{}

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(sched.entries) != 0 {
		t.Fatalf("entries = %d, want 0 after reload", len(sched.entries))
	}
}

func TestReload_ScheduleChangeRecalculates(t *testing.T) {
	p := scheduledPipeline("nightly", "0 3 * * *")
	source := &fakePipelineSource{pipelines: []domain.Pipeline{p}}
	sched := newTestScheduler(source, &fakeTrigger{})

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	before := sched.entries[p.ID].nextFire

	source.mu.Lock()
	source.pipelines[0].Config.Schedule = "*/1 * * * *"
	source.mu.Unlock()
	sched.lastReload = time.Time{}

	if err := sched.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	after := sched.entries[p.ID].nextFire
	if !after.Before(before) {
		t.Errorf("nextFire was not recalculated: before=%v after=%v", before, after)
	}
	if sched.entries[p.ID].schedule != "*/1 * * * *" {
		t.Errorf("schedule = %q", sched.entries[p.ID].schedule)
	}
}

func TestNextFire(t *testing.T) {
	from := time.Date(2026, 3, 10, 2, 30, 0, 0, time.UTC)
	next, err := NextFire("0 3 * * *", from)
	if err != nil {
		t.Fatalf("NextFire: %v", err)
	}
	want := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestValidateCronExpr(t *testing.T) {
	if err := ValidateCronExpr("0 3 * * *"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateCronExpr("61 * * * *"); err == nil {
		t.Error("expected error for out-of-range minute")
	}
	if err := ValidateCronExpr(""); err == nil {
		t.Error("expected error for empty expression")
	}
}
