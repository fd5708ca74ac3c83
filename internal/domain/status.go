package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	queued → running → success
//	                 ↘ failed
//	       (или) → cancelled (из queued или running)
type RunStatus string

const (
	// RunStatusQueued — run создан и поставлен в очередь.
	RunStatusQueued RunStatus = "queued"

	// RunStatusRunning — run выполняется executor'ом.
	RunStatusRunning RunStatus = "running"

	// RunStatusSuccess — все шаги завершились успешно.
	RunStatusSuccess RunStatus = "success"

	// RunStatusFailed — хотя бы один шаг упал.
	RunStatusFailed RunStatus = "failed"

	// RunStatusCancelled — run отменён до завершения.
	RunStatusCancelled RunStatus = "cancelled"
)

// runTransitions — таблица допустимых переходов run.
// Финальные статусы отсутствуют в таблице: из них переходов нет.
var runTransitions = map[RunStatus][]RunStatus{
	RunStatusQueued:  {RunStatusRunning, RunStatusCancelled},
	RunStatusRunning: {RunStatusSuccess, RunStatusFailed, RunStatusCancelled},
}

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет допустимость перехода s → next.
func (s RunStatus) CanTransitionTo(next RunStatus) bool {
	for _, allowed := range runTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseRunStatus парсит строку в RunStatus.
// Возвращает false, если значение не входит в enum.
func ParseRunStatus(s string) (RunStatus, bool) {
	switch RunStatus(s) {
	case RunStatusQueued, RunStatusRunning, RunStatusSuccess, RunStatusFailed, RunStatusCancelled:
		return RunStatus(s), true
	default:
		return "", false
	}
}

// StepStatus — статус выполнения step.
//
// Жизненный цикл:
//
//	pending → running → success
//	                  ↘ failed
//	pending → failed при падении предыдущего шага
//	любой нефинальный → cancelled при отмене run
type StepStatus string

const (
	// StepStatusPending — шаг создан, ожидает выполнения.
	StepStatusPending StepStatus = "pending"

	// StepStatusRunning — шаг выполняется.
	StepStatusRunning StepStatus = "running"

	// StepStatusSuccess — шаг завершился успешно.
	StepStatusSuccess StepStatus = "success"

	// StepStatusFailed — шаг завершился с ошибкой.
	StepStatusFailed StepStatus = "failed"

	// StepStatusCancelled — шаг отменён.
	StepStatusCancelled StepStatus = "cancelled"
)

// stepTransitions — таблица допустимых переходов step.
var stepTransitions = map[StepStatus][]StepStatus{
	StepStatusPending: {StepStatusRunning, StepStatusFailed, StepStatusCancelled},
	StepStatusRunning: {StepStatusSuccess, StepStatusFailed, StepStatusCancelled},
}

// IsTerminal возвращает true, если статус финальный.
func (s StepStatus) IsTerminal() bool {
	switch s {
	case StepStatusSuccess, StepStatusFailed, StepStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет допустимость перехода s → next.
func (s StepStatus) CanTransitionTo(next StepStatus) bool {
	for _, allowed := range stepTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseStepStatus парсит строку в StepStatus.
// Возвращает false, если значение не входит в enum.
func ParseStepStatus(s string) (StepStatus, bool) {
	switch StepStatus(s) {
	case StepStatusPending, StepStatusRunning, StepStatusSuccess, StepStatusFailed, StepStatusCancelled:
		return StepStatus(s), true
	default:
		return "", false
	}
}

// ValidateRunTransition возвращает StateError, если переход from → to недопустим.
func ValidateRunTransition(from, to RunStatus) error {
	if !from.CanTransitionTo(to) {
		return &StateError{Entity: "run", From: string(from), To: string(to)}
	}
	return nil
}

// ValidateStepTransition возвращает StateError, если переход from → to недопустим.
func ValidateStepTransition(from, to StepStatus) error {
	if !from.CanTransitionTo(to) {
		return &StateError{Entity: "step", From: string(from), To: string(to)}
	}
	return nil
}
