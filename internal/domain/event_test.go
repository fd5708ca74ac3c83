package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestNewRunStatusEvent(t *testing.T) {
	run := &Run{ID: uuid.New(), Status: RunStatusRunning}
	run.MarkFailed("boom")

	ev := NewRunStatusEvent(run)
	if ev.Kind != EventRunStatus {
		t.Errorf("kind = %q", ev.Kind)
	}
	if ev.RunID != run.ID {
		t.Errorf("run id = %s", ev.RunID)
	}

	payload, ok := ev.Payload.(RunStatusPayload)
	if !ok {
		t.Fatalf("payload type %T", ev.Payload)
	}
	if payload.Status != RunStatusFailed || payload.Error != "boom" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestNewStepUpdateEvent(t *testing.T) {
	step := &Step{ID: uuid.New(), RunID: uuid.New(), Name: "deploy", Stage: "Deploy", Status: StepStatusPending}
	step.MarkRunning()

	ev := NewStepUpdateEvent(step)
	if ev.Kind != EventStepUpdate {
		t.Errorf("kind = %q", ev.Kind)
	}
	payload := ev.Payload.(StepUpdatePayload)
	if payload.StepID != step.ID || payload.Status != StepStatusRunning {
		t.Errorf("payload = %+v", payload)
	}
	if payload.StartedAt == nil {
		t.Error("startedAt missing")
	}
}

// Wire-формат payload'ов — camelCase, его читают подписчики.
func TestEventWireFormat(t *testing.T) {
	runID := uuid.New()
	line := LogLine{
		RunID:   runID,
		Ts:      time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC),
		Level:   LogLevelInfo,
		Message: "compiling",
	}

	raw, err := json.Marshal(NewLogEvent(line).Payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"runId", "ts", "level", "message"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("payload key %q missing: %s", key, raw)
		}
	}
	if _, ok := decoded["stepId"]; ok {
		t.Error("nil stepId must be omitted")
	}
}

func TestNewCancelledEvent(t *testing.T) {
	runID := uuid.New()
	ts := time.Now().UTC()

	ev := NewCancelledEvent(runID, ts)
	if ev.Kind != EventCancelled {
		t.Errorf("kind = %q", ev.Kind)
	}
	payload := ev.Payload.(CancelledPayload)
	if payload.RunID != runID || !payload.Timestamp.Equal(ts) {
		t.Errorf("payload = %+v", payload)
	}
}
