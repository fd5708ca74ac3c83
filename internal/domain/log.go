package domain

import (
	"time"

	"github.com/google/uuid"
)

// Уровни лог-строк.
const (
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// LogLine — одна строка лога выполнения.
//
// Append-only: строки никогда не изменяются и не удаляются ядром.
type LogLine struct {
	// RunID — ссылка на run.
	RunID uuid.UUID `json:"run_id"`

	// StepID — ссылка на step, если строка относится к конкретному шагу.
	StepID *uuid.UUID `json:"step_id,omitempty"`

	// Ts — время появления строки.
	Ts time.Time `json:"ts"`

	// Level — уровень: info, warn, error.
	Level string `json:"level"`

	// Message — текст строки.
	Message string `json:"message"`
}
