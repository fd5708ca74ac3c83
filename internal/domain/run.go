package domain

import (
	"time"

	"github.com/google/uuid"
)

// MetaKeyError — ключ в Run.Meta, под которым executor сохраняет
// текст фатальной ошибки выполнения.
const MetaKeyError = "error"

// Run — экземпляр выполнения pipeline.
//
// Run создаётся когда:
// - Пользователь запускает pipeline вручную (через API/CLI)
// - Scheduler запускает pipeline по расписанию
// - Пользователь перезапускает завершённый run (rerun)
//
// Run владеет своим набором steps: шаги создаются вместе с run из
// шаблона pipeline и их количество после этого не меняется.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// PipelineID — ссылка на pipeline, который выполняется.
	PipelineID uuid.UUID `json:"pipeline_id"`

	// Repo — репозиторий, для которого запущен run.
	Repo string `json:"repo,omitempty"`

	// Branch — ветка.
	Branch string `json:"branch,omitempty"`

	// TriggeredBy — кто/что инициировал run (пользователь, "schedule", "rerun").
	TriggeredBy string `json:"triggered_by,omitempty"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// StartedAt — время начала выполнения (когда статус стал running).
	// Nil, если run ещё не начался.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения (в любом финальном статусе).
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Meta — произвольные метаданные run. Открытая схема: ядро
	// передаёт содержимое насквозь, не интерпретируя его
	// (кроме ключа MetaKeyError).
	Meta map[string]any `json:"meta,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// Error возвращает текст фатальной ошибки из Meta, если он записан.
func (r *Run) Error() string {
	if r.Meta == nil {
		return ""
	}
	if msg, ok := r.Meta[MetaKeyError].(string); ok {
		return msg
	}
	return ""
}

// MarkRunning переводит run в статус running.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkSuccess переводит run в статус success.
func (r *Run) MarkSuccess() {
	now := time.Now()
	r.Status = RunStatusSuccess
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус failed.
// Непустой errMsg записывается в Meta под ключом MetaKeyError.
func (r *Run) MarkFailed(errMsg string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	if errMsg != "" {
		if r.Meta == nil {
			r.Meta = make(map[string]any)
		}
		r.Meta[MetaKeyError] = errMsg
	}
}

// MarkCancelled переводит run в статус cancelled.
func (r *Run) MarkCancelled() {
	now := time.Now()
	r.Status = RunStatusCancelled
	r.FinishedAt = &now
}
