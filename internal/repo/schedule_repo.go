package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/promptflow/internal/domain"
)

// ScheduleRepo — репозиторий для работы с schedules.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

// NewScheduleRepo создаёт новый ScheduleRepo.
func NewScheduleRepo(pool *pgxpool.Pool) *ScheduleRepo {
	return &ScheduleRepo{pool: pool}
}

// scheduleSelect выбирает расписание вместе с protocol запроса.
const scheduleSelect = `
	SELECT s.id, s.request_id, r.protocol, s.cron_expr, s.timezone, s.start_at,
	       s.end_at, s.enabled, s.next_due_at, s.last_run_at, s.created_at, s.updated_at
	FROM schedules s
	JOIN requests r ON r.id = s.request_id
`

// Create создаёт новый schedule.
func (r *ScheduleRepo) Create(ctx context.Context, schedule *domain.Schedule) error {
	return createSchedule(ctx, r.pool, schedule)
}

func createSchedule(ctx context.Context, q querier, schedule *domain.Schedule) error {
	query := `
		INSERT INTO schedules (request_id, cron_expr, timezone, start_at, end_at,
		                       enabled, next_due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	err := q.QueryRow(ctx, query,
		schedule.RequestID,
		schedule.CronExpr,
		schedule.Timezone,
		schedule.StartAt,
		schedule.EndAt,
		schedule.Enabled,
		schedule.NextDueAt,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	).Scan(&schedule.ID)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

// GetByID возвращает schedule по ID.
func (r *ScheduleRepo) GetByID(ctx context.Context, id int64) (*domain.Schedule, error) {
	return scanSchedule(r.pool.QueryRow(ctx, scheduleSelect+` WHERE s.id = $1`, id))
}

// ListByRequest возвращает расписания запроса.
func (r *ScheduleRepo) ListByRequest(ctx context.Context, requestID int64) ([]domain.Schedule, error) {
	rows, err := r.pool.Query(ctx, scheduleSelect+` WHERE s.request_id = $1 ORDER BY s.id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return collectSchedules(rows)
}

// ListDue возвращает schedules, готовые к выполнению.
func (r *ScheduleRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	query := scheduleSelect + `
		WHERE s.enabled = true
		  AND s.next_due_at IS NOT NULL
		  AND s.next_due_at <= $1
		ORDER BY s.next_due_at ASC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due schedules: %w", err)
	}
	return collectSchedules(rows)
}

// Update обновляет изменяемые поля schedule.
func (r *ScheduleRepo) Update(ctx context.Context, schedule *domain.Schedule) error {
	query := `
		UPDATE schedules
		SET cron_expr = $2, timezone = $3, start_at = $4, end_at = $5,
		    enabled = $6, next_due_at = $7, last_run_at = $8, updated_at = $9
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		schedule.ID,
		schedule.CronExpr,
		schedule.Timezone,
		schedule.StartAt,
		schedule.EndAt,
		schedule.Enabled,
		schedule.NextDueAt,
		schedule.LastRunAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete удаляет schedule.
func (r *ScheduleRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func collectSchedules(rows pgx.Rows) ([]domain.Schedule, error) {
	defer rows.Close()

	var schedules []domain.Schedule
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *schedule)
	}
	return schedules, rows.Err()
}

func scanSchedule(row pgx.Row) (*domain.Schedule, error) {
	var s domain.Schedule

	err := row.Scan(
		&s.ID,
		&s.RequestID,
		&s.Protocol,
		&s.CronExpr,
		&s.Timezone,
		&s.StartAt,
		&s.EndAt,
		&s.Enabled,
		&s.NextDueAt,
		&s.LastRunAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan schedule: %w", err)
	}

	return &s, nil
}
