package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smolev/konveyer/internal/domain"
)

// PipelineRepo — репозиторий для работы с pipelines.
type PipelineRepo struct {
	pool *pgxpool.Pool
}

// NewPipelineRepo создаёт новый PipelineRepo.
func NewPipelineRepo(pool *pgxpool.Pool) *PipelineRepo {
	return &PipelineRepo{pool: pool}
}

const pipelineColumns = `id, name, config, created_at, updated_at`

// Create создаёт новый pipeline.
func (r *PipelineRepo) Create(ctx context.Context, p *domain.Pipeline) error {
	configJSON, err := json.Marshal(p.Config)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	query := `
		INSERT INTO pipelines (id, name, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err = r.pool.Exec(ctx, query, p.ID, p.Name, configJSON, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert pipeline: %w", err)
	}
	return nil
}

// GetByID возвращает pipeline по ID.
func (r *PipelineRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Pipeline, error) {
	query := `SELECT ` + pipelineColumns + ` FROM pipelines WHERE id = $1`
	return scanPipeline(r.pool.QueryRow(ctx, query, id))
}

// List возвращает все pipelines, новые первыми.
func (r *PipelineRepo) List(ctx context.Context) ([]domain.Pipeline, error) {
	query := `SELECT ` + pipelineColumns + ` FROM pipelines ORDER BY created_at DESC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	var pipelines []domain.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, *p)
	}
	return pipelines, rows.Err()
}

// ListScheduled возвращает pipelines с заданным cron-расписанием.
func (r *PipelineRepo) ListScheduled(ctx context.Context) ([]domain.Pipeline, error) {
	query := `
		SELECT ` + pipelineColumns + `
		FROM pipelines
		WHERE COALESCE(config->>'schedule', '') <> ''
		ORDER BY created_at ASC
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list scheduled pipelines: %w", err)
	}
	defer rows.Close()

	var pipelines []domain.Pipeline
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		pipelines = append(pipelines, *p)
	}
	return pipelines, rows.Err()
}

// Delete удаляет pipeline. Runs на него только ссылаются и остаются в истории.
func (r *PipelineRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM pipelines WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete pipeline: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanPipeline сканирует одну строку в Pipeline.
func scanPipeline(row pgx.Row) (*domain.Pipeline, error) {
	var p domain.Pipeline
	var configJSON []byte

	err := row.Scan(&p.ID, &p.Name, &configJSON, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan pipeline: %w", err)
	}

	if err := json.Unmarshal(configJSON, &p.Config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &p, nil
}
