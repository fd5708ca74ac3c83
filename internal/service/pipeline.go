package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smolev/konveyer/internal/domain"
)

// CreatePipeline создаёт pipeline с заданной конфигурацией.
func (s *Service) CreatePipeline(ctx context.Context, name string, config domain.PipelineConfig) (*domain.Pipeline, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	now := time.Now().UTC()
	p := &domain.Pipeline{
		ID:        uuid.New(),
		Name:      name,
		Config:    config,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.pipelines.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}

	s.logger.Info("pipeline created", "pipeline_id", p.ID, "name", p.Name)
	return p, nil
}

// GetPipeline возвращает pipeline по ID.
func (s *Service) GetPipeline(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error) {
	return s.pipelines.GetByID(ctx, id)
}

// ListPipelines возвращает все pipelines.
func (s *Service) ListPipelines(ctx context.Context) ([]domain.Pipeline, error) {
	return s.pipelines.List(ctx)
}

// DeletePipeline удаляет pipeline. История runs остаётся.
func (s *Service) DeletePipeline(ctx context.Context, id uuid.UUID) error {
	if err := s.pipelines.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("pipeline deleted", "pipeline_id", id)
	return nil
}
