package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/promptflow/internal/domain"
)

// RequestRepo — репозиторий для работы с requests.
type RequestRepo struct {
	pool *pgxpool.Pool
}

// NewRequestRepo создаёт новый RequestRepo.
func NewRequestRepo(pool *pgxpool.Pool) *RequestRepo {
	return &RequestRepo{pool: pool}
}

const requestColumns = `id, protocol, status, result, error, started_at, finished_at, created_at, updated_at`

// Create создаёт запрос в статусе created и возвращает его ID.
func (r *RequestRepo) Create(ctx context.Context, protocol string) (int64, error) {
	return createRequest(ctx, r.pool, protocol)
}

func createRequest(ctx context.Context, q querier, protocol string) (int64, error) {
	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO requests (protocol, status) VALUES ($1, $2) RETURNING id`,
		protocol, domain.RequestStatusCreated,
	).Scan(&id)
	if isUniqueViolation(err) {
		return 0, fmt.Errorf("request %s: %w", protocol, ErrAlreadyExists)
	}
	if err != nil {
		return 0, fmt.Errorf("insert request: %w", err)
	}
	return id, nil
}

// GetByProtocol возвращает запрос по внешнему идентификатору.
func (r *RequestRepo) GetByProtocol(ctx context.Context, protocol string) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE protocol = $1`
	return scanRequest(r.pool.QueryRow(ctx, query, protocol))
}

// GetByID возвращает запрос по внутреннему ID.
func (r *RequestRepo) GetByID(ctx context.Context, id int64) (*domain.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = $1`
	return scanRequest(r.pool.QueryRow(ctx, query, id))
}

// UpdateStatus применяет обычный переход статуса.
//
// Строка блокируется на время чтения-изменения-записи, поэтому
// временные метки выставляются по тем же правилам, что и в
// domain.Request.Apply. Недопустимый переход возвращает ErrInvalidState;
// повторный вход в processing выполняется только через Claim.
func (r *RequestRepo) UpdateStatus(ctx context.Context, protocol string, update domain.StatusUpdate) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		query := `SELECT ` + requestColumns + ` FROM requests WHERE protocol = $1 FOR UPDATE`
		req, err := scanRequest(tx.QueryRow(ctx, query, protocol))
		if err != nil {
			return err
		}

		if !req.Status.CanTransitionTo(update.Status) {
			return fmt.Errorf("request %s: %s -> %s: %w", protocol, req.Status, update.Status, ErrInvalidState)
		}

		req.Apply(update, time.Now())

		var resultJSON []byte
		if req.Result != nil {
			resultJSON, err = json.Marshal(req.Result)
			if err != nil {
				return fmt.Errorf("marshal result: %w", err)
			}
		}

		_, err = tx.Exec(ctx, `
			UPDATE requests
			SET status = $2, result = $3, error = $4, started_at = $5,
			    finished_at = $6, updated_at = $7
			WHERE id = $1
		`,
			req.ID,
			req.Status,
			resultJSON,
			nullString(req.Error),
			req.StartedAt,
			req.FinishedAt,
			req.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update request: %w", err)
		}
		return nil
	})
}

// Claim переводит запрос в processing одним UPDATE, если текущее
// состояние удовлетворяет claim. Несовпадение возвращает ErrInvalidState.
func (r *RequestRepo) Claim(ctx context.Context, protocol string, claim domain.Claim) (*domain.Request, error) {
	from := make([]string, 0, len(claim.From))
	stale := false
	for _, s := range claim.From {
		if s == domain.RequestStatusProcessing {
			stale = !claim.StaleBefore.IsZero()
			continue
		}
		from = append(from, string(s))
	}

	query := `
		UPDATE requests
		SET status = $2, result = NULL, error = NULL, started_at = $3,
		    finished_at = NULL, updated_at = $3
		WHERE protocol = $1
		  AND (status = ANY($4) OR ($5 AND status = $2 AND updated_at < $6))
		RETURNING ` + requestColumns

	req, err := scanRequest(r.pool.QueryRow(ctx, query,
		protocol,
		domain.RequestStatusProcessing,
		time.Now(),
		from,
		stale,
		claim.StaleBefore,
	))
	if errors.Is(err, ErrNotFound) {
		if _, err := r.GetByProtocol(ctx, protocol); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("claim request %s: %w", protocol, ErrInvalidState)
	}
	return req, err
}

// Touch продлевает аренду запроса в processing.
func (r *RequestRepo) Touch(ctx context.Context, protocol string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE requests SET updated_at = $3 WHERE protocol = $1 AND status = $2`,
		protocol, domain.RequestStatusProcessing, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("touch request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("touch request %s: %w", protocol, ErrInvalidState)
	}
	return nil
}

// ListByStatus возвращает запросы в статусе, не менявшиеся с olderThan.
func (r *RequestRepo) ListByStatus(ctx context.Context, status domain.RequestStatus, olderThan time.Time, limit int) ([]domain.Request, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE status = $1 AND updated_at <= $2
		ORDER BY updated_at ASC
		LIMIT $3
	`
	rows, err := r.pool.Query(ctx, query, status, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list requests by status: %w", err)
	}
	return collectRequests(rows)
}

// RequestFilter — параметры фильтрации запросов.
type RequestFilter struct {
	Status domain.RequestStatus
	Limit  int
	Offset int
}

// List возвращает запросы, новые первыми.
func (r *RequestRepo) List(ctx context.Context, filter RequestFilter) ([]domain.Request, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + requestColumns + `
		FROM requests
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, nullString(string(filter.Status)), limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return collectRequests(rows)
}

// Delete удаляет запрос вместе с шагами, результатами и расписаниями.
func (r *RequestRepo) Delete(ctx context.Context, protocol string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM requests WHERE protocol = $1`, protocol)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Helpers ---

func collectRequests(rows pgx.Rows) ([]domain.Request, error) {
	defer rows.Close()

	var requests []domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *req)
	}
	return requests, rows.Err()
}

// scanRequest сканирует одну строку в Request.
// pgx.Rows реализует pgx.Row, поэтому подходит и для списков.
func scanRequest(row pgx.Row) (*domain.Request, error) {
	var req domain.Request
	var resultJSON []byte
	var reqError *string

	err := row.Scan(
		&req.ID,
		&req.Protocol,
		&req.Status,
		&resultJSON,
		&reqError,
		&req.StartedAt,
		&req.FinishedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan request: %w", err)
	}

	if resultJSON != nil {
		result, err := domain.ParseJSON(resultJSON)
		if err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		req.Result = &result
	}
	if reqError != nil {
		req.Error = *reqError
	}

	return &req, nil
}
