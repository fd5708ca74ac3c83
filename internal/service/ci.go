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

// MetaKeyCIURL — ключ в Run.Meta со ссылкой на job внешней CI-системы.
const MetaKeyCIURL = "ciUrl"

// ReportRunStatus применяет статус run, присланный внешней CI-системой.
//
// Переход проверяется доменной машиной состояний: CI не может,
// например, оживить завершённый run. Повторная отправка текущего
// статуса — no-op.
func (s *Service) ReportRunStatus(ctx context.Context, runID uuid.UUID, status domain.RunStatus, ciURL string) (*domain.Run, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	if run.Status == status {
		return run, nil
	}

	from := run.Status
	if err := domain.ValidateRunTransition(from, status); err != nil {
		return nil, err
	}

	switch status {
	case domain.RunStatusRunning:
		run.MarkRunning()
	case domain.RunStatusSuccess:
		run.MarkSuccess()
	case domain.RunStatusFailed:
		run.MarkFailed("")
	case domain.RunStatusCancelled:
		run.MarkCancelled()
	default:
		return nil, fmt.Errorf("%w: status %q", ErrInvalidInput, status)
	}

	if ciURL != "" {
		if run.Meta == nil {
			run.Meta = make(map[string]any)
		}
		run.Meta[MetaKeyCIURL] = ciURL
	}

	if err := s.runs.UpdateStatus(ctx, run, from); err != nil {
		return nil, err
	}

	s.logger.Info("run status reported by CI", "run_id", runID, "status", status)
	s.publish(ctx, domain.NewRunStatusEvent(run))

	return run, nil
}

// ReportStepStatus применяет статус step, присланный внешней CI-системой.
//
// Step ищется по имени в рамках run; неизвестный step создаётся на
// лету — внешний CI может репортить шаги, которых не было в шаблоне
// pipeline.
func (s *Service) ReportStepStatus(ctx context.Context, runID uuid.UUID, stepName, stage string, status domain.StepStatus) (*domain.Step, error) {
	if stepName == "" {
		return nil, fmt.Errorf("%w: step name is required", ErrInvalidInput)
	}
	if _, err := s.runs.GetByID(ctx, runID); err != nil {
		return nil, err
	}

	step, err := s.steps.GetByName(ctx, runID, stepName)
	if errors.Is(err, repo.ErrNotFound) {
		return s.createReportedStep(ctx, runID, stepName, stage, status)
	}
	if err != nil {
		return nil, err
	}

	if step.Status == status {
		return step, nil
	}

	from := step.Status
	if err := domain.ValidateStepTransition(from, status); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	step.Status = status
	if step.StartedAt == nil {
		step.StartedAt = &now
	}
	if status.IsTerminal() {
		step.FinishedAt = &now
	}

	if err := s.steps.UpdateStatus(ctx, step, from); err != nil {
		return nil, err
	}

	s.logger.Info("step status reported by CI",
		"run_id", runID, "step", stepName, "status", status)
	s.publish(ctx, domain.NewStepUpdateEvent(step))

	return step, nil
}

// createReportedStep создаёт step, о котором отчитался внешний CI.
func (s *Service) createReportedStep(ctx context.Context, runID uuid.UUID, stepName, stage string, status domain.StepStatus) (*domain.Step, error) {
	if stage == "" {
		stage = "external"
	}

	existing, err := s.steps.ListByRun(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}

	now := time.Now().UTC()
	step := &domain.Step{
		ID:        uuid.New(),
		RunID:     runID,
		Seq:       len(existing) + 1,
		Name:      stepName,
		Stage:     stage,
		Status:    status,
		StartedAt: &now,
		CreatedAt: now,
	}
	if status.IsTerminal() {
		step.FinishedAt = &now
	}

	if err := s.steps.Create(ctx, step); err != nil {
		return nil, fmt.Errorf("create step: %w", err)
	}

	s.logger.Info("step created from CI report",
		"run_id", runID, "step", stepName, "status", status)
	s.publish(ctx, domain.NewStepUpdateEvent(step))

	return step, nil
}

// ReportLog сохраняет лог-строку, присланную внешней CI-системой.
// stepName опционален: строка без имени шага привязывается только к run.
func (s *Service) ReportLog(ctx context.Context, runID uuid.UUID, stepName, level, message string, ts time.Time) error {
	if message == "" {
		return fmt.Errorf("%w: message is required", ErrInvalidInput)
	}
	if _, err := s.runs.GetByID(ctx, runID); err != nil {
		return err
	}

	if level == "" {
		level = domain.LogLevelInfo
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	var stepID *uuid.UUID
	if stepName != "" {
		step, err := s.steps.GetByName(ctx, runID, stepName)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err == nil {
			stepID = &step.ID
		}
	}

	line := domain.LogLine{
		RunID:   runID,
		StepID:  stepID,
		Ts:      ts,
		Level:   level,
		Message: message,
	}
	if err := s.logs.Append(ctx, line); err != nil {
		return fmt.Errorf("append log: %w", err)
	}

	s.publish(ctx, domain.NewLogEvent(line))
	return nil
}
