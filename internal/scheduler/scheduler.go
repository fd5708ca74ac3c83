package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/smolev/konveyer/internal/domain"
	"github.com/smolev/konveyer/internal/service"
)

// defaultReloadInterval — как часто перечитывается список
// scheduled pipelines из БД.
const defaultReloadInterval = 30 * time.Second

// PipelineSource — источник scheduled pipelines.
// Реализуется repo.PipelineRepo.
type PipelineSource interface {
	ListScheduled(ctx context.Context) ([]domain.Pipeline, error)
}

// RunTrigger запускает pipeline.
// Реализуется service.Service.
type RunTrigger interface {
	TriggerRun(ctx context.Context, pipelineID uuid.UUID, opts service.TriggerOptions) (*domain.Run, error)
}

// entry — состояние одного scheduled pipeline в памяти.
type entry struct {
	name     string
	schedule string
	nextFire time.Time
}

// Scheduler — планировщик запусков pipelines по cron-расписанию.
type Scheduler struct {
	pipelines PipelineSource
	trigger   RunTrigger
	logger    *slog.Logger

	reloadInterval time.Duration
	lastReload     time.Time
	entries        map[uuid.UUID]*entry
}

// Config — конфигурация Scheduler.
type Config struct {
	Pipelines PipelineSource
	Trigger   RunTrigger
	Logger    *slog.Logger

	// ReloadInterval — период перечитывания pipelines из БД
	// (default: 30s).
	ReloadInterval time.Duration
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	reload := cfg.ReloadInterval
	if reload <= 0 {
		reload = defaultReloadInterval
	}

	return &Scheduler{
		pipelines:      cfg.Pipelines,
		trigger:        cfg.Trigger,
		logger:         cfg.Logger,
		reloadInterval: reload,
		entries:        make(map[uuid.UUID]*entry),
	}
}

// Tick выполняет один тик планировщика.
//
// 1. При необходимости перечитывает scheduled pipelines из БД
// 2. Триггерит pipelines, чьё nextFire наступило
// 3. Вычисляет следующее время запуска
//
// Ошибки одного pipeline не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now().UTC()

	if now.Sub(s.lastReload) >= s.reloadInterval {
		if err := s.reload(ctx, now); err != nil {
			return fmt.Errorf("reload scheduled pipelines: %w", err)
		}
		s.lastReload = now
	}

	var fired int
	for id, e := range s.entries {
		if e.nextFire.After(now) {
			continue
		}

		if err := s.fire(ctx, id, e, now); err != nil {
			s.logger.Error("failed to trigger scheduled run",
				"pipeline_id", id,
				"pipeline_name", e.name,
				"error", err,
			)
			// Продолжаем обработку остальных
			continue
		}
		fired++
	}

	if fired > 0 {
		s.logger.Info("scheduler tick completed", "runs_created", fired)
	}
	return nil
}

// reload синхронизирует in-memory состояние с БД.
//
// Новые pipelines получают nextFire от текущего момента; у pipelines
// со сменившимся расписанием nextFire пересчитывается; удалённые и
// лишившиеся расписания выбрасываются.
func (s *Scheduler) reload(ctx context.Context, now time.Time) error {
	scheduled, err := s.pipelines.ListScheduled(ctx)
	if err != nil {
		return err
	}

	seen := make(map[uuid.UUID]struct{}, len(scheduled))
	for i := range scheduled {
		p := &scheduled[i]
		seen[p.ID] = struct{}{}

		existing, ok := s.entries[p.ID]
		if ok && existing.schedule == p.Config.Schedule {
			existing.name = p.Name
			continue
		}

		next, err := NextFire(p.Config.Schedule, now)
		if err != nil {
			s.logger.Warn("pipeline has invalid schedule, skipping",
				"pipeline_id", p.ID,
				"pipeline_name", p.Name,
				"schedule", p.Config.Schedule,
				"error", err,
			)
			delete(s.entries, p.ID)
			continue
		}

		s.entries[p.ID] = &entry{
			name:     p.Name,
			schedule: p.Config.Schedule,
			nextFire: next,
		}
		s.logger.Debug("pipeline scheduled",
			"pipeline_id", p.ID,
			"pipeline_name", p.Name,
			"schedule", p.Config.Schedule,
			"next_fire", next,
		)
	}

	for id := range s.entries {
		if _, ok := seen[id]; !ok {
			delete(s.entries, id)
		}
	}
	return nil
}

// fire запускает один pipeline и переводит его nextFire вперёд.
func (s *Scheduler) fire(ctx context.Context, id uuid.UUID, e *entry, now time.Time) error {
	// nextFire двигается до триггера: упавший запуск не должен
	// ретраиться на каждом тике до следующего слота.
	next, err := NextFire(e.schedule, now)
	if err != nil {
		delete(s.entries, id)
		return fmt.Errorf("recalculate next fire: %w", err)
	}
	e.nextFire = next

	run, err := s.trigger.TriggerRun(ctx, id, service.TriggerOptions{
		TriggeredBy: "schedule",
	})
	if err != nil {
		return err
	}

	s.logger.Info("created run from schedule",
		"run_id", run.ID,
		"pipeline_id", id,
		"pipeline_name", e.name,
		"next_fire", next,
	)
	return nil
}
