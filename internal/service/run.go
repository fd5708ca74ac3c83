package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smolev/konveyer/internal/domain"
	"github.com/smolev/konveyer/internal/repo"
)

// TriggerOptions — параметры запуска pipeline.
type TriggerOptions struct {
	Repo        string
	Branch      string
	TriggeredBy string
	Meta        map[string]any
}

// TriggerRun создаёт run из шаблона pipeline и ставит его в очередь.
//
// Run и его steps создаются до постановки в очередь: подписчик может
// открыть run сразу после ответа API. Если постановка в очередь
// провалилась, run сразу помечается failed, чтобы не висеть в queued
// без шансов быть взятым.
func (s *Service) TriggerRun(ctx context.Context, pipelineID uuid.UUID, opts TriggerOptions) (*domain.Run, error) {
	pipeline, err := s.pipelines.GetByID(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if err := pipeline.Config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: pipeline config: %v", ErrInvalidInput, err)
	}

	run := &domain.Run{
		ID:          uuid.New(),
		PipelineID:  pipeline.ID,
		Repo:        opts.Repo,
		Branch:      opts.Branch,
		TriggeredBy: opts.TriggeredBy,
		Status:      domain.RunStatusQueued,
		Meta:        opts.Meta,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	steps := pipeline.Config.BuildSteps(run.ID)
	if err := s.steps.CreateBatch(ctx, steps); err != nil {
		return nil, fmt.Errorf("create steps: %w", err)
	}

	if err := s.enqueue(ctx, run); err != nil {
		return nil, err
	}

	s.logger.Info("run created and enqueued",
		"run_id", run.ID,
		"pipeline_id", pipeline.ID,
		"triggered_by", run.TriggeredBy,
	)
	return run, nil
}

// GetRun возвращает run вместе с его steps.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*domain.Run, []domain.Step, error) {
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	steps, err := s.steps.ListByRun(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("list steps: %w", err)
	}

	return run, steps, nil
}

// ListRuns возвращает runs по фильтру.
func (s *Service) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error) {
	return s.runs.List(ctx, filter)
}

// RunLogs возвращает сохранённые логи run.
func (s *Service) RunLogs(ctx context.Context, runID uuid.UUID, filter repo.LogFilter) ([]domain.LogLine, error) {
	if _, err := s.runs.GetByID(ctx, runID); err != nil {
		return nil, err
	}
	return s.logs.ListByRun(ctx, runID, filter)
}

// CancelRun отменяет run.
//
// Условный переход в БД покрывает queued и running; pending steps
// отменяются bulk-обновлением. Шаг, выполняющийся прямо сейчас,
// дорабатывает до конца — executor заметит отмену на следующей
// контрольной точке. Отмена уже завершённого run — no-op.
func (s *Service) CancelRun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	run, err := s.runs.Cancel(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		// Либо run не существует, либо уже финален.
		existing, getErr := s.runs.GetByID(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		s.logger.Info("cancel is a no-op, run already finished",
			"run_id", id, "status", existing.Status)
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cancel run: %w", err)
	}

	cancelled, err := s.steps.CancelPending(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cancel pending steps: %w", err)
	}
	for i := range cancelled {
		s.publish(ctx, domain.NewStepUpdateEvent(&cancelled[i]))
	}

	ts := time.Now().UTC()
	if run.FinishedAt != nil {
		ts = *run.FinishedAt
	}
	s.publish(ctx, domain.NewCancelledEvent(run.ID, ts))
	s.publish(ctx, domain.NewRunStatusEvent(run))

	s.logger.Info("run cancelled", "run_id", id)
	return run, nil
}

// Rerun создаёт новый run с параметрами исходного.
//
// Steps клонируются из исходного run в состоянии pending: структура
// шагов повторяет именно тот запуск, даже если pipeline с тех пор
// изменился.
func (s *Service) Rerun(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	original, err := s.runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	originalSteps, err := s.steps.ListByRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list original steps: %w", err)
	}

	run := &domain.Run{
		ID:          uuid.New(),
		PipelineID:  original.PipelineID,
		Repo:        original.Repo,
		Branch:      original.Branch,
		TriggeredBy: "rerun",
		Status:      domain.RunStatusQueued,
		Meta:        original.Meta,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	steps := make([]domain.Step, len(originalSteps))
	for i, orig := range originalSteps {
		steps[i] = domain.Step{
			ID:        uuid.New(),
			RunID:     run.ID,
			Seq:       orig.Seq,
			Name:      orig.Name,
			Stage:     orig.Stage,
			Status:    domain.StepStatusPending,
			Meta:      orig.Meta,
			CreatedAt: run.CreatedAt,
		}
	}
	if err := s.steps.CreateBatch(ctx, steps); err != nil {
		return nil, fmt.Errorf("create steps: %w", err)
	}

	if err := s.enqueue(ctx, run); err != nil {
		return nil, err
	}

	s.logger.Info("run restarted", "original_run_id", id, "run_id", run.ID)
	return run, nil
}

// enqueue публикует run.queued, при провале хоронит run в failed.
func (s *Service) enqueue(ctx context.Context, run *domain.Run) error {
	if err := s.queue.PublishRunQueued(ctx, run.ID); err != nil {
		s.logger.Error("failed to enqueue run", "run_id", run.ID, "error", err)
		if _, failErr := s.runs.ForceFail(ctx, run.ID, "enqueue failed: "+err.Error()); failErr != nil {
			s.logger.Error("failed to mark unenqueued run as failed",
				"run_id", run.ID, "error", failErr)
		}
		return fmt.Errorf("enqueue run: %w", err)
	}
	return nil
}
