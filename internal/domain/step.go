package domain

import (
	"time"

	"github.com/google/uuid"
)

// Step — отдельная единица работы внутри run.
//
// Steps создаются вместе с run из шаблона pipeline (в статусе pending)
// и выполняются строго по порядку Seq. После достижения финального
// статуса step неизменяем.
type Step struct {
	// ID — уникальный идентификатор step.
	ID uuid.UUID `json:"id"`

	// RunID — ссылка на родительский run.
	RunID uuid.UUID `json:"run_id"`

	// Seq — порядковый номер шага внутри run (начиная с 1).
	// Определяет порядок выполнения.
	Seq int `json:"seq"`

	// Name — имя шага из шаблона pipeline.
	Name string `json:"name"`

	// Stage — имя stage, к которому относится шаг.
	// Используется для группировки/отображения, не для планирования.
	Stage string `json:"stage"`

	// Status — текущий статус step.
	Status StepStatus `json:"status"`

	// StartedAt — время начала выполнения.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Meta — произвольные метаданные шага (определение команды и т.п.).
	// Передаются насквозь без интерпретации.
	Meta map[string]any `json:"meta,omitempty"`

	// CreatedAt — время создания step.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность выполнения.
func (s *Step) Duration() time.Duration {
	if s.StartedAt == nil || s.FinishedAt == nil {
		return 0
	}
	return s.FinishedAt.Sub(*s.StartedAt)
}

// IsFinished возвращает true, если step завершён.
func (s *Step) IsFinished() bool {
	return s.Status.IsTerminal()
}

// MarkRunning переводит step в статус running.
func (s *Step) MarkRunning() {
	now := time.Now()
	s.Status = StepStatusRunning
	s.StartedAt = &now
}

// MarkFinished переводит step в финальный статус status.
func (s *Step) MarkFinished(status StepStatus) {
	now := time.Now()
	s.Status = status
	s.FinishedAt = &now
}
