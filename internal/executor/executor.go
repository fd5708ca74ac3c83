package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/smolev/konveyer/internal/domain"
	"github.com/smolev/konveyer/internal/repo"
	"github.com/smolev/konveyer/internal/runner"
	"github.com/smolev/konveyer/internal/telemetry"
)

// RunStore — операции над runs, нужные executor'у.
// Реализуется repo.RunRepo.
type RunStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	GetStatus(ctx context.Context, id uuid.UUID) (domain.RunStatus, error)
	UpdateStatus(ctx context.Context, run *domain.Run, from domain.RunStatus) error
	ForceFail(ctx context.Context, id uuid.UUID, errMsg string) (*domain.Run, error)
}

// StepStore — операции над steps, нужные executor'у.
// Реализуется repo.StepRepo.
type StepStore interface {
	ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.Step, error)
	UpdateStatus(ctx context.Context, step *domain.Step, from domain.StepStatus) error
	FailPending(ctx context.Context, runID uuid.UUID) ([]domain.Step, error)
}

// LogStore — персистентное хранилище логов.
// Реализуется repo.LogRepo.
type LogStore interface {
	Append(ctx context.Context, line domain.LogLine) error
}

// EventSink — приёмник run-событий.
// Реализуется mq.Publisher и bus.Bus.
type EventSink interface {
	PublishEvent(ctx context.Context, ev domain.Event) error
}

// Config — конфигурация Executor.
type Config struct {
	Runs    RunStore
	Steps   StepStore
	Logs    LogStore
	Events  EventSink
	Runners *runner.Registry
	Logger  *slog.Logger
}

// Executor выполняет runs step за step'ом.
type Executor struct {
	runs    RunStore
	steps   StepStore
	logs    LogStore
	events  EventSink
	runners *runner.Registry
	logger  *slog.Logger
}

// New создаёт Executor.
func New(cfg Config) *Executor {
	return &Executor{
		runs:    cfg.Runs,
		steps:   cfg.Steps,
		logs:    cfg.Logs,
		events:  cfg.Events,
		runners: cfg.Runners,
		logger:  cfg.Logger,
	}
}

// Execute выполняет run целиком.
//
// Повторная доставка того же run безопасна: переход queued → running
// условный, второй executor не пройдёт его и выйдет.
func (e *Executor) Execute(ctx context.Context, runID uuid.UUID) error {
	logger := telemetry.WithRunID(e.logger, runID.String())

	run, err := e.runs.GetByID(ctx, runID)
	if errors.Is(err, repo.ErrNotFound) {
		logger.Error("run not found, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load run: %w", err)
	}

	// queued → running. Если run уже взят другим executor'ом или
	// отменён до старта, получаем StateError и молча выходим.
	run.MarkRunning()
	if err := e.runs.UpdateStatus(ctx, run, domain.RunStatusQueued); err != nil {
		if domain.IsStateError(err) {
			logger.Info("run is not queued anymore, skipping", "error", err)
			return nil
		}
		return fmt.Errorf("mark run running: %w", err)
	}

	telemetry.RunsStarted.Inc()
	logger.Info("run started")
	e.publish(ctx, logger, domain.NewRunStatusEvent(run))

	steps, err := e.steps.ListByRun(ctx, runID)
	if err != nil {
		return e.fail(ctx, logger, runID, fmt.Errorf("load steps: %w", err))
	}

	for i := range steps {
		step := &steps[i]

		// Точка отмены: статус в БД — кооперативный флаг.
		status, err := e.runs.GetStatus(ctx, runID)
		if err != nil {
			return e.fail(ctx, logger, runID, fmt.Errorf("check run status: %w", err))
		}
		if status == domain.RunStatusCancelled {
			logger.Info("run was cancelled, stopping")
			return nil
		}

		ok, err := e.executeStep(ctx, logger, step)
		if err != nil {
			return e.fail(ctx, logger, runID, err)
		}

		if !ok {
			return e.failRun(ctx, logger, run, step)
		}
	}

	// Все steps прошли. Если run отменили после последнего шага,
	// условный переход не пройдёт и cancelled останется финальным.
	run.MarkSuccess()
	if err := e.runs.UpdateStatus(ctx, run, domain.RunStatusRunning); err != nil {
		if domain.IsStateError(err) {
			logger.Info("run already finalized", "error", err)
			return nil
		}
		return fmt.Errorf("mark run success: %w", err)
	}

	telemetry.RunsFinished.WithLabelValues(string(domain.RunStatusSuccess)).Inc()
	telemetry.RunDuration.Observe(run.Duration().Seconds())
	logger.Info("run completed", "status", run.Status, "duration", run.Duration())
	e.publish(ctx, logger, domain.NewRunStatusEvent(run))

	return nil
}

// executeStep выполняет один step. Возвращает false, если шаг провалился.
func (e *Executor) executeStep(ctx context.Context, logger *slog.Logger, step *domain.Step) (bool, error) {
	stepLogger := telemetry.WithStepID(logger, step.ID.String())

	step.MarkRunning()
	if err := e.steps.UpdateStatus(ctx, step, domain.StepStatusPending); err != nil {
		return false, fmt.Errorf("mark step running: %w", err)
	}
	stepLogger.Info("step started", "name", step.Name, "stage", step.Stage)
	e.publish(ctx, stepLogger, domain.NewStepUpdateEvent(step))

	var result *runner.Result
	r, err := e.runners.ForStep(step)
	if err == nil {
		result, err = r.Run(ctx, step, e.logSink(stepLogger))
	}
	if err != nil {
		// Отказ лог-хранилища и отмена ctx — инфраструктура, её обрабатывает
		// аварийный путь. Остальные ошибки runner-хука (таймаут HTTP-моста,
		// обрыв соединения, неизвестный тип runner'а) — исход самого шага:
		// шаг финализируется failed, run завершается через общий путь провала.
		if ctx.Err() != nil || errors.Is(err, errLogStore) {
			return false, fmt.Errorf("run step %s: %w", step.Name, err)
		}
		stepLogger.Warn("step runner error", "name", step.Name, "error", err)
		result = &runner.Result{Status: domain.StepStatusFailed, Error: err.Error()}
	}

	step.MarkFinished(result.Status)
	if err := e.steps.UpdateStatus(ctx, step, domain.StepStatusRunning); err != nil {
		return false, fmt.Errorf("finalize step: %w", err)
	}

	telemetry.StepsFinished.WithLabelValues(string(result.Status)).Inc()
	stepLogger.Info("step finished", "name", step.Name, "status", result.Status)
	e.publish(ctx, stepLogger, domain.NewStepUpdateEvent(step))

	return result.Status == domain.StepStatusSuccess, nil
}

// errLogStore маркирует отказ лог-хранилища внутри LogSink.
// Такая ошибка инфраструктурная, а не провал шага.
var errLogStore = errors.New("log store failure")

// logSink возвращает sink, пишущий лог-строку в хранилище
// и публикующий её как событие.
func (e *Executor) logSink(logger *slog.Logger) runner.LogSink {
	return func(ctx context.Context, line domain.LogLine) error {
		if err := e.logs.Append(ctx, line); err != nil {
			return fmt.Errorf("%w: %w", errLogStore, err)
		}
		e.publish(ctx, logger, domain.NewLogEvent(line))
		return nil
	}
}

// failRun завершает run после провала шага: оставшиеся pending steps
// помечаются failed, run переходит в failed.
func (e *Executor) failRun(ctx context.Context, logger *slog.Logger, run *domain.Run, failed *domain.Step) error {
	skipped, err := e.steps.FailPending(ctx, run.ID)
	if err != nil {
		return e.fail(ctx, logger, run.ID, fmt.Errorf("fail pending steps: %w", err))
	}
	for i := range skipped {
		e.publish(ctx, logger, domain.NewStepUpdateEvent(&skipped[i]))
	}

	run.MarkFailed(fmt.Sprintf("step %q failed", failed.Name))
	if err := e.runs.UpdateStatus(ctx, run, domain.RunStatusRunning); err != nil {
		if domain.IsStateError(err) {
			logger.Info("run already finalized", "error", err)
			return nil
		}
		return fmt.Errorf("mark run failed: %w", err)
	}

	telemetry.RunsFinished.WithLabelValues(string(domain.RunStatusFailed)).Inc()
	telemetry.RunDuration.Observe(run.Duration().Seconds())
	logger.Info("run failed", "step", failed.Name)
	e.publish(ctx, logger, domain.NewRunStatusEvent(run))

	return nil
}

// fail — аварийное завершение run при инфраструктурной ошибке.
// Run безусловно переводится в failed с текстом ошибки в meta,
// чтобы не зависнуть в running навсегда.
func (e *Executor) fail(ctx context.Context, logger *slog.Logger, runID uuid.UUID, cause error) error {
	logger.Error("run execution failed", "error", cause)

	run, err := e.runs.ForceFail(ctx, runID, cause.Error())
	if errors.Is(err, repo.ErrNotFound) {
		// Run уже в терминальном статусе, фиксировать нечего.
		return cause
	}
	if err != nil {
		logger.Error("failed to force-fail run", "error", err)
		return cause
	}

	telemetry.RunsFinished.WithLabelValues(string(domain.RunStatusFailed)).Inc()
	e.publish(ctx, logger, domain.NewRunStatusEvent(run))

	return cause
}

// publish отправляет событие. Доставка best-effort: ошибка публикации
// логируется, но выполнение run не прерывает.
func (e *Executor) publish(ctx context.Context, logger *slog.Logger, ev domain.Event) {
	if err := e.events.PublishEvent(ctx, ev); err != nil {
		logger.Warn("failed to publish event", "kind", ev.Kind, "error", err)
	}
	telemetry.EventsPublished.WithLabelValues(string(ev.Kind)).Inc()
}
