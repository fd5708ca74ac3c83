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

// StepRepo — репозиторий для работы со steps.
type StepRepo struct {
	pool *pgxpool.Pool
}

// NewStepRepo создаёт новый StepRepo.
func NewStepRepo(pool *pgxpool.Pool) *StepRepo {
	return &StepRepo{pool: pool}
}

const stepColumns = `id, run_id, seq, name, stage, status, started_at, finished_at, meta, created_at`

// Create создаёт один step.
func (r *StepRepo) Create(ctx context.Context, step *domain.Step) error {
	metaJSON, err := json.Marshal(step.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	query := `
		INSERT INTO steps (id, run_id, seq, name, stage, status, started_at, finished_at, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = r.pool.Exec(ctx, query,
		step.ID,
		step.RunID,
		step.Seq,
		step.Name,
		step.Stage,
		step.Status,
		step.StartedAt,
		step.FinishedAt,
		metaJSON,
		step.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// CreateBatch создаёт steps нового run одной транзакцией.
func (r *StepRepo) CreateBatch(ctx context.Context, steps []domain.Step) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range steps {
		step := &steps[i]
		metaJSON, err := json.Marshal(step.Meta)
		if err != nil {
			return fmt.Errorf("marshal meta: %w", err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO steps (id, run_id, seq, name, stage, status, meta, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			step.ID, step.RunID, step.Seq, step.Name, step.Stage, step.Status, metaJSON, step.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert step %q: %w", step.Name, err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID возвращает step по ID.
func (r *StepRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM steps WHERE id = $1`
	return scanStep(r.pool.QueryRow(ctx, query, id))
}

// GetByName возвращает step run'а по имени.
// Используется интеграцией с внешней CI, которая адресует шаги именами.
func (r *StepRepo) GetByName(ctx context.Context, runID uuid.UUID, name string) (*domain.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM steps WHERE run_id = $1 AND name = $2`
	return scanStep(r.pool.QueryRow(ctx, query, runID, name))
}

// ListByRun возвращает steps run'а в порядке выполнения.
func (r *StepRepo) ListByRun(ctx context.Context, runID uuid.UUID) ([]domain.Step, error) {
	query := `SELECT ` + stepColumns + ` FROM steps WHERE run_id = $1 ORDER BY seq ASC`
	rows, err := r.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []domain.Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *step)
	}
	return steps, rows.Err()
}

// UpdateStatus записывает новое состояние step при условии, что текущий
// статус в БД равен from. При гонке возвращает StateError без записи —
// финальный статус step необратим.
func (r *StepRepo) UpdateStatus(ctx context.Context, step *domain.Step, from domain.StepStatus) error {
	query := `
		UPDATE steps
		SET status = $2, started_at = $3, finished_at = $4
		WHERE id = $1 AND status = $5
	`
	result, err := r.pool.Exec(ctx, query,
		step.ID,
		step.Status,
		step.StartedAt,
		step.FinishedAt,
		from,
	)
	if err != nil {
		return fmt.Errorf("update step status: %w", err)
	}
	if result.RowsAffected() == 0 {
		current, getErr := r.GetByID(ctx, step.ID)
		if getErr != nil {
			return getErr
		}
		return &domain.StateError{Entity: "step", From: string(current.Status), To: string(step.Status)}
	}
	return nil
}

// FailPending переводит все pending steps run'а в failed.
// Вызывается executor'ом после падения шага: оставшиеся шаги не выполняются.
// Возвращает затронутые steps для публикации событий.
func (r *StepRepo) FailPending(ctx context.Context, runID uuid.UUID) ([]domain.Step, error) {
	return r.bulkFinishPending(ctx, runID, domain.StepStatusFailed)
}

// CancelPending переводит все pending steps run'а в cancelled.
// Шаг в статусе running не трогается: его исход запишет активный executor.
func (r *StepRepo) CancelPending(ctx context.Context, runID uuid.UUID) ([]domain.Step, error) {
	return r.bulkFinishPending(ctx, runID, domain.StepStatusCancelled)
}

func (r *StepRepo) bulkFinishPending(ctx context.Context, runID uuid.UUID, status domain.StepStatus) ([]domain.Step, error) {
	query := `
		UPDATE steps
		SET status = $2, finished_at = NOW()
		WHERE run_id = $1 AND status = 'pending'
		RETURNING ` + stepColumns
	rows, err := r.pool.Query(ctx, query, runID, status)
	if err != nil {
		return nil, fmt.Errorf("bulk finish pending steps: %w", err)
	}
	defer rows.Close()

	var steps []domain.Step
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, *step)
	}
	return steps, rows.Err()
}

// scanStep сканирует одну строку в Step.
func scanStep(row pgx.Row) (*domain.Step, error) {
	var step domain.Step
	var metaJSON []byte

	err := row.Scan(
		&step.ID,
		&step.RunID,
		&step.Seq,
		&step.Name,
		&step.Stage,
		&step.Status,
		&step.StartedAt,
		&step.FinishedAt,
		&metaJSON,
		&step.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan step: %w", err)
	}

	if metaJSON != nil {
		if err := json.Unmarshal(metaJSON, &step.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal meta: %w", err)
		}
	}

	return &step, nil
}
