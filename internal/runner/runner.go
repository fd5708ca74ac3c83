package runner

import (
	"context"
	"fmt"

	"github.com/smolev/konveyer/internal/domain"
)

// LogSink принимает лог-строку выполняющегося step.
// Вызывается из Run по мере появления логов: строки доезжают до
// подписчиков в реальном времени, не дожидаясь конца шага.
type LogSink func(ctx context.Context, line domain.LogLine) error

// Result — исход выполнения step.
type Result struct {
	// Status — финальный статус: success или failed.
	Status domain.StepStatus

	// Error — сообщение о логической ошибке выполнения.
	// Инфраструктурные ошибки возвращаются через error в Run().
	Error string
}

// Runner выполняет один step.
//
// Отмена ctx прерывает выполнение; решение о судьбе прерванного
// шага принимает вызывающий executor.
type Runner interface {
	Run(ctx context.Context, step *domain.Step, logs LogSink) (*Result, error)
}

// MetaKeyRunner — meta-ключ шага, выбирающий тип runner'а.
const MetaKeyRunner = "runner"

// Registry — реестр runner'ов по типу шага.
type Registry struct {
	runners     map[string]Runner
	defaultType string
}

// NewRegistry создаёт реестр с runner'ами по умолчанию.
//
// Регистрирует: simulate, http. Шаг без meta-ключа "runner"
// выполняется симулятором.
func NewRegistry(sim *Simulator) *Registry {
	r := &Registry{
		runners:     make(map[string]Runner),
		defaultType: "simulate",
	}
	r.Register("simulate", sim)
	r.Register("http", &HTTPRunner{})
	return r
}

// Register добавляет runner для типа шага.
func (r *Registry) Register(runnerType string, runner Runner) {
	r.runners[runnerType] = runner
}

// ForStep возвращает runner для step по его meta.
func (r *Registry) ForStep(step *domain.Step) (Runner, error) {
	runnerType := r.defaultType
	if step.Meta != nil {
		if v, ok := step.Meta[MetaKeyRunner].(string); ok && v != "" {
			runnerType = v
		}
	}

	runner, ok := r.runners[runnerType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRunner, runnerType)
	}
	return runner, nil
}
