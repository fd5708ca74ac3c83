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

// RunRepo — репозиторий для работы с runs.
type RunRepo struct {
	pool *pgxpool.Pool
}

// NewRunRepo создаёт новый RunRepo.
func NewRunRepo(pool *pgxpool.Pool) *RunRepo {
	return &RunRepo{pool: pool}
}

const runColumns = `id, pipeline_id, repo, branch, triggered_by, status,
		       started_at, finished_at, meta, created_at`

// Create создаёт новый run.
func (r *RunRepo) Create(ctx context.Context, run *domain.Run) error {
	metaJSON, err := json.Marshal(run.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	query := `
		INSERT INTO runs (id, pipeline_id, repo, branch, triggered_by, status, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = r.pool.Exec(ctx, query,
		run.ID,
		run.PipelineID,
		nullString(run.Repo),
		nullString(run.Branch),
		nullString(run.TriggeredBy),
		run.Status,
		metaJSON,
		run.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetByID возвращает run по ID.
func (r *RunRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE id = $1`
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// GetStatus возвращает только текущий статус run.
//
// Executor вызывает его перед каждым шагом: статус в БД — кооперативный
// флаг отмены, кэшированная копия не годится.
func (r *RunRepo) GetStatus(ctx context.Context, id uuid.UUID) (domain.RunStatus, error) {
	var status domain.RunStatus
	err := r.pool.QueryRow(ctx, `SELECT status FROM runs WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get run status: %w", err)
	}
	return status, nil
}

// List возвращает список runs с фильтрацией.
func (r *RunRepo) List(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM runs
		WHERE ($1::uuid IS NULL OR pipeline_id = $1)
		  AND ($2::text IS NULL OR status = $2::run_status)
		  AND ($3::text IS NULL OR repo = $3)
		  AND ($4::text IS NULL OR branch = $4)
		ORDER BY created_at DESC
		LIMIT $5 OFFSET $6
	`
	rows, err := r.pool.Query(ctx, query,
		nullUUID(filter.PipelineID),
		nullString(string(filter.Status)),
		nullString(filter.Repo),
		nullString(filter.Branch),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// UpdateStatus записывает новое состояние run при условии, что текущий
// статус в БД равен from (условный UPDATE — второй барьер после машины
// состояний). При гонке с конкурентным переходом возвращает StateError,
// ничего не записав.
func (r *RunRepo) UpdateStatus(ctx context.Context, run *domain.Run, from domain.RunStatus) error {
	metaJSON, err := json.Marshal(run.Meta)
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}

	query := `
		UPDATE runs
		SET status = $2, started_at = $3, finished_at = $4, meta = $5
		WHERE id = $1 AND status = $6
	`
	result, err := r.pool.Exec(ctx, query,
		run.ID,
		run.Status,
		run.StartedAt,
		run.FinishedAt,
		metaJSON,
		from,
	)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if result.RowsAffected() == 0 {
		actual, getErr := r.GetStatus(ctx, run.ID)
		if getErr != nil {
			return getErr
		}
		return &domain.StateError{Entity: "run", From: string(actual), To: string(run.Status)}
	}
	return nil
}

// Cancel переводит run в cancelled, если он ещё не завершён.
// Возвращает ErrNotFound, если run отсутствует или уже финален —
// повторная отмена таким образом идемпотентна (no-op).
func (r *RunRepo) Cancel(ctx context.Context, id uuid.UUID) (*domain.Run, error) {
	query := `
		UPDATE runs
		SET status = 'cancelled', finished_at = NOW()
		WHERE id = $1 AND status IN ('queued', 'running')
		RETURNING ` + runColumns
	return scanRun(r.pool.QueryRow(ctx, query, id))
}

// ForceFail — фатальный путь executor'а: run принудительно переводится
// в failed из любого нефинального статуса, текст ошибки дописывается в meta.
func (r *RunRepo) ForceFail(ctx context.Context, id uuid.UUID, errMsg string) (*domain.Run, error) {
	query := `
		UPDATE runs
		SET status = 'failed',
		    finished_at = NOW(),
		    meta = COALESCE(meta, '{}'::jsonb) || jsonb_build_object('error', $2::text)
		WHERE id = $1 AND status IN ('queued', 'running')
		RETURNING ` + runColumns
	return scanRun(r.pool.QueryRow(ctx, query, id, errMsg))
}

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	PipelineID *uuid.UUID
	Status     domain.RunStatus
	Repo       string
	Branch     string
	Limit      int
	Offset     int
}

// scanRun сканирует одну строку в Run.
func scanRun(row pgx.Row) (*domain.Run, error) {
	var run domain.Run
	var repo, branch, triggeredBy *string
	var metaJSON []byte

	err := row.Scan(
		&run.ID,
		&run.PipelineID,
		&repo,
		&branch,
		&triggeredBy,
		&run.Status,
		&run.StartedAt,
		&run.FinishedAt,
		&metaJSON,
		&run.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}

	if metaJSON != nil {
		if err := json.Unmarshal(metaJSON, &run.Meta); err != nil {
			return nil, fmt.Errorf("unmarshal meta: %w", err)
		}
	}

	if repo != nil {
		run.Repo = *repo
	}
	if branch != nil {
		run.Branch = *branch
	}
	if triggeredBy != nil {
		run.TriggeredBy = *triggeredBy
	}

	return &run, nil
}

// nullString возвращает nil для пустой строки (для NULL в БД).
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullUUID возвращает nil для пустого UUID.
func nullUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil || *id == uuid.Nil {
		return nil
	}
	return id
}
