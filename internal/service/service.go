package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/smolev/konveyer/internal/domain"
	"github.com/smolev/konveyer/internal/repo"
	"github.com/smolev/konveyer/internal/telemetry"
)

// ErrInvalidInput — входные данные операции не прошли валидацию.
var ErrInvalidInput = errors.New("invalid input")

// PipelineStore — операции над pipelines.
// Реализуется repo.PipelineRepo.
type PipelineStore interface {
	Create(ctx context.Context, p *domain.Pipeline) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error)
	List(ctx context.Context) ([]domain.Pipeline, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// RunStore — операции над runs.
// Реализуется repo.RunRepo.
type RunStore interface {
	Create(ctx context.Context, run *domain.Run) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.Run, error)
	UpdateStatus(ctx context.Context, run *domain.Run, from domain.RunStatus) error
	Cancel(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	ForceFail(ctx context.Context, id uuid.UUID, errMsg string) (*domain.Run, error)
}

// StepStore — операции над steps.
// Реализуется repo.StepRepo.
type StepStore interface {
	Create(ctx context.Context, step *domain.Step) error
	CreateBatch(ctx context.Context, steps []domain.Step) error
	GetByName(ctx context.Context, runID uuid.UUID, name string) (*domain.Step, error)
	ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.Step, error)
	UpdateStatus(ctx context.Context, step *domain.Step, from domain.StepStatus) error
	CancelPending(ctx context.Context, runID uuid.UUID) ([]domain.Step, error)
}

// LogStore — хранилище логов.
// Реализуется repo.LogRepo.
type LogStore interface {
	Append(ctx context.Context, line domain.LogLine) error
	ListByRun(ctx context.Context, runID uuid.UUID, filter repo.LogFilter) ([]domain.LogLine, error)
}

// RunEnqueuer ставит run в очередь на выполнение.
// Реализуется mq.Publisher.
type RunEnqueuer interface {
	PublishRunQueued(ctx context.Context, runID uuid.UUID) error
}

// EventSink — приёмник run-событий.
// Реализуется mq.Publisher и bus.Bus.
type EventSink interface {
	PublishEvent(ctx context.Context, ev domain.Event) error
}

// Config — зависимости Service.
type Config struct {
	Pipelines PipelineStore
	Runs      RunStore
	Steps     StepStore
	Logs      LogStore
	Queue     RunEnqueuer
	Events    EventSink
	Logger    *slog.Logger
}

// Service — прикладной слой над хранилищем и очередью.
type Service struct {
	pipelines PipelineStore
	runs      RunStore
	steps     StepStore
	logs      LogStore
	queue     RunEnqueuer
	events    EventSink
	logger    *slog.Logger
}

// New создаёт Service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		pipelines: cfg.Pipelines,
		runs:      cfg.Runs,
		steps:     cfg.Steps,
		logs:      cfg.Logs,
		queue:     cfg.Queue,
		events:    cfg.Events,
		logger:    logger,
	}
}

// publish отправляет событие best-effort.
func (s *Service) publish(ctx context.Context, ev domain.Event) {
	if err := s.events.PublishEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to publish event",
			"run_id", ev.RunID,
			"kind", ev.Kind,
			"error", err,
		)
	}
	telemetry.EventsPublished.WithLabelValues(string(ev.Kind)).Inc()
}
