package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind — тип события run.
type EventKind string

// Типы событий. Значения совпадают с именами событий на wire-уровне.
const (
	EventRunStatus  EventKind = "run:status"
	EventStepUpdate EventKind = "run:step:update"
	EventRunLog     EventKind = "run:log"
	EventCancelled  EventKind = "run:cancelled"
)

// Event — эфемерное сообщение об изменении состояния run.
//
// События не персистятся: они существуют только на пути от producer'а
// (executor, service) до подписанных observer'ов. Гарантия доставки —
// at-least-once для подключённых на момент публикации подписчиков,
// порядок сохраняется в рамках одного run.
type Event struct {
	// RunID — run, к которому относится событие.
	RunID uuid.UUID `json:"run_id"`

	// Kind — тип события.
	Kind EventKind `json:"kind"`

	// Payload — полезная нагрузка (одна из *Payload структур ниже;
	// после прохождения через брокер — map[string]any).
	Payload any `json:"payload"`
}

// RunStatusPayload — payload события run:status.
type RunStatusPayload struct {
	RunID      uuid.UUID  `json:"runId"`
	Status     RunStatus  `json:"status"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// StepUpdatePayload — payload события run:step:update.
type StepUpdatePayload struct {
	RunID      uuid.UUID  `json:"runId"`
	StepID     uuid.UUID  `json:"stepId"`
	Name       string     `json:"name"`
	Stage      string     `json:"stage"`
	Status     StepStatus `json:"status"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// LogPayload — payload события run:log.
type LogPayload struct {
	RunID   uuid.UUID  `json:"runId"`
	StepID  *uuid.UUID `json:"stepId,omitempty"`
	Ts      time.Time  `json:"ts"`
	Level   string     `json:"level"`
	Message string     `json:"message"`
}

// CancelledPayload — payload события run:cancelled.
type CancelledPayload struct {
	RunID     uuid.UUID `json:"runId"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRunStatusEvent строит событие run:status из текущего состояния run.
func NewRunStatusEvent(run *Run) Event {
	return Event{
		RunID: run.ID,
		Kind:  EventRunStatus,
		Payload: RunStatusPayload{
			RunID:      run.ID,
			Status:     run.Status,
			StartedAt:  run.StartedAt,
			FinishedAt: run.FinishedAt,
			Error:      run.Error(),
		},
	}
}

// NewStepUpdateEvent строит событие run:step:update из текущего состояния step.
func NewStepUpdateEvent(step *Step) Event {
	return Event{
		RunID: step.RunID,
		Kind:  EventStepUpdate,
		Payload: StepUpdatePayload{
			RunID:      step.RunID,
			StepID:     step.ID,
			Name:       step.Name,
			Stage:      step.Stage,
			Status:     step.Status,
			StartedAt:  step.StartedAt,
			FinishedAt: step.FinishedAt,
		},
	}
}

// NewLogEvent строит событие run:log из лог-строки.
func NewLogEvent(line LogLine) Event {
	return Event{
		RunID: line.RunID,
		Kind:  EventRunLog,
		Payload: LogPayload{
			RunID:   line.RunID,
			StepID:  line.StepID,
			Ts:      line.Ts,
			Level:   line.Level,
			Message: line.Message,
		},
	}
}

// NewCancelledEvent строит событие run:cancelled.
func NewCancelledEvent(runID uuid.UUID, ts time.Time) Event {
	return Event{
		RunID: runID,
		Kind:  EventCancelled,
		Payload: CancelledPayload{
			RunID:     runID,
			Timestamp: ts,
		},
	}
}
