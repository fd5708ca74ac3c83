package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smolev/konveyer/internal/mq"
)

type recordingExecutor struct {
	mu      sync.Mutex
	started []uuid.UUID
	block   chan struct{}
}

func (e *recordingExecutor) Execute(_ context.Context, runID uuid.UUID) error {
	e.mu.Lock()
	e.started = append(e.started, runID)
	e.mu.Unlock()

	if e.block != nil {
		<-e.block
	}
	return nil
}

func (e *recordingExecutor) startedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.started)
}

func queuedDelivery(runID uuid.UUID) *mq.Delivery {
	return &mq.Delivery{
		Message: mq.Message{
			ID:        uuid.New().String(),
			Type:      mq.MessageTypeRunQueued,
			Payload:   map[string]any{"run_id": runID.String()},
			Timestamp: time.Now(),
		},
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDispatcher_HandleRunQueued(t *testing.T) {
	exec := &recordingExecutor{}
	d := New(Config{Executor: exec, Logger: slog.New(slog.DiscardHandler)})

	runID := uuid.New()
	if err := d.handleRunQueued(context.Background(), queuedDelivery(runID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitFor(t, func() bool { return exec.startedCount() == 1 })

	exec.mu.Lock()
	got := exec.started[0]
	exec.mu.Unlock()
	if got != runID {
		t.Errorf("expected run %s, got %s", runID, got)
	}

	d.wg.Wait()
}

func TestDispatcher_RejectsWrongMessageType(t *testing.T) {
	exec := &recordingExecutor{}
	d := New(Config{Executor: exec, Logger: slog.New(slog.DiscardHandler)})

	msg := queuedDelivery(uuid.New())
	msg.Message.Type = "something.else"

	err := d.handleRunQueued(context.Background(), msg)
	if err == nil {
		t.Fatal("expected error for wrong message type")
	}
	// Consumer по этой ошибке отправляет сообщение в DLQ.
	if !errors.Is(err, mq.ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
	if exec.startedCount() != 0 {
		t.Error("executor should not be called")
	}
}

func TestDispatcher_RejectsBadPayload(t *testing.T) {
	exec := &recordingExecutor{}
	d := New(Config{Executor: exec, Logger: slog.New(slog.DiscardHandler)})

	msg := queuedDelivery(uuid.New())
	msg.Message.Payload = map[string]any{"run_id": "not-a-uuid"}

	err := d.handleRunQueued(context.Background(), msg)
	if err == nil {
		t.Fatal("expected error for bad payload")
	}
	if !errors.Is(err, mq.ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestDispatcher_ConcurrencyLimit(t *testing.T) {
	block := make(chan struct{})
	exec := &recordingExecutor{block: block}
	d := New(Config{Executor: exec, Concurrency: 2, Logger: slog.New(slog.DiscardHandler)})

	ctx := context.Background()

	// Два run'а занимают оба слота.
	for range 2 {
		if err := d.handleRunQueued(ctx, queuedDelivery(uuid.New())); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	waitFor(t, func() bool { return exec.startedCount() == 2 })

	// Третий блокируется на слоте, пока один из run'ов не завершится.
	third := make(chan error, 1)
	go func() {
		third <- d.handleRunQueued(ctx, queuedDelivery(uuid.New()))
	}()

	select {
	case <-third:
		t.Fatal("third run should wait for a free slot")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)

	if err := <-third; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, func() bool { return exec.startedCount() == 3 })

	d.wg.Wait()
}

func TestDispatcher_HandleCancelledContext(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	exec := &recordingExecutor{block: block}
	d := New(Config{Executor: exec, Concurrency: 1, Logger: slog.New(slog.DiscardHandler)})

	if err := d.handleRunQueued(context.Background(), queuedDelivery(uuid.New())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	waitFor(t, func() bool { return exec.startedCount() == 1 })

	// Слотов нет, ctx отменён — handler возвращает ошибку, не зависая.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := d.handleRunQueued(ctx, queuedDelivery(uuid.New())); err == nil {
		t.Error("expected context error")
	}
}
