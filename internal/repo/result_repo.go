package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/promptflow/internal/domain"
)

// ResultRepo — журнал результатов шагов.
//
// Записи только добавляются; удаляются целиком для запроса
// перед принудительным перезапуском.
type ResultRepo struct {
	pool *pgxpool.Pool
}

// NewResultRepo создаёт новый ResultRepo.
func NewResultRepo(pool *pgxpool.Pool) *ResultRepo {
	return &ResultRepo{pool: pool}
}

const resultColumns = `id, request_id, step_id, step_order, result, created_at`

// Insert добавляет результат шага.
// Повторная запись для того же Order возвращает ErrAlreadyExists.
func (r *ResultRepo) Insert(ctx context.Context, requestID, stepID int64, order int, result domain.Value) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO step_results (request_id, step_id, step_order, result)
		VALUES ($1, $2, $3, $4)
	`, requestID, stepID, order, resultJSON)
	if isUniqueViolation(err) {
		return fmt.Errorf("result of step %d: %w", order, ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("insert step result: %w", err)
	}
	return nil
}

// GetLast возвращает результат с наибольшим Order.
func (r *ResultRepo) GetLast(ctx context.Context, requestID int64) (*domain.StepResult, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM step_results
		WHERE request_id = $1
		ORDER BY step_order DESC
		LIMIT 1
	`
	return scanResult(r.pool.QueryRow(ctx, query, requestID))
}

// ListByRequest возвращает результаты по возрастанию Order.
func (r *ResultRepo) ListByRequest(ctx context.Context, requestID int64) ([]domain.StepResult, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM step_results
		WHERE request_id = $1
		ORDER BY step_order ASC
	`
	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("list step results: %w", err)
	}
	defer rows.Close()

	var results []domain.StepResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	return results, rows.Err()
}

// CountByRequest возвращает число сохранённых результатов.
func (r *ResultRepo) CountByRequest(ctx context.Context, requestID int64) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM step_results WHERE request_id = $1`, requestID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count step results: %w", err)
	}
	return n, nil
}

// DeleteByRequest удаляет все результаты запроса.
func (r *ResultRepo) DeleteByRequest(ctx context.Context, requestID int64) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM step_results WHERE request_id = $1`, requestID); err != nil {
		return fmt.Errorf("delete step results: %w", err)
	}
	return nil
}

func scanResult(row pgx.Row) (*domain.StepResult, error) {
	var res domain.StepResult
	var resultJSON []byte

	err := row.Scan(
		&res.ID,
		&res.RequestID,
		&res.StepID,
		&res.Order,
		&resultJSON,
		&res.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan step result: %w", err)
	}

	res.Result, err = domain.ParseJSON(resultJSON)
	if err != nil {
		return nil, fmt.Errorf("unmarshal step %d result: %w", res.Order, err)
	}

	return &res, nil
}
