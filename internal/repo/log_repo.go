package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smolev/konveyer/internal/domain"
)

// LogRepo — репозиторий для лог-строк. Только append и чтение:
// лог выполнения никогда не изменяется.
type LogRepo struct {
	pool *pgxpool.Pool
}

// NewLogRepo создаёт новый LogRepo.
func NewLogRepo(pool *pgxpool.Pool) *LogRepo {
	return &LogRepo{pool: pool}
}

// Append дописывает одну лог-строку.
func (r *LogRepo) Append(ctx context.Context, line domain.LogLine) error {
	query := `
		INSERT INTO logs (run_id, step_id, ts, level, message)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.pool.Exec(ctx, query,
		line.RunID,
		line.StepID,
		line.Ts,
		line.Level,
		line.Message,
	)
	if err != nil {
		return fmt.Errorf("insert log line: %w", err)
	}
	return nil
}

// LogFilter — параметры выборки логов.
type LogFilter struct {
	StepID *uuid.UUID
	Limit  int
	Offset int
}

// ListByRun возвращает лог-строки run'а в порядке появления.
func (r *LogRepo) ListByRun(ctx context.Context, runID uuid.UUID, filter LogFilter) ([]domain.LogLine, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT run_id, step_id, ts, level, message
		FROM logs
		WHERE run_id = $1
		  AND ($2::uuid IS NULL OR step_id = $2)
		ORDER BY ts ASC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.pool.Query(ctx, query, runID, nullUUID(filter.StepID), limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list logs: %w", err)
	}
	defer rows.Close()

	var lines []domain.LogLine
	for rows.Next() {
		var line domain.LogLine
		if err := rows.Scan(&line.RunID, &line.StepID, &line.Ts, &line.Level, &line.Message); err != nil {
			return nil, fmt.Errorf("scan log line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}
