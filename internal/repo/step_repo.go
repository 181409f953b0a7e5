package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/promptflow/internal/domain"
)

// StepRepo — репозиторий для работы с шагами и их параметрами.
type StepRepo struct {
	pool *pgxpool.Pool
}

// NewStepRepo создаёт новый StepRepo.
func NewStepRepo(pool *pgxpool.Pool) *StepRepo {
	return &StepRepo{pool: pool}
}

// ListByRequest возвращает шаги запроса по возрастанию Order.
func (r *StepRepo) ListByRequest(ctx context.Context, requestID int64) ([]domain.Step, error) {
	query := `
		SELECT id, request_id, step_order, engine, model, content, parameters, created_at
		FROM steps
		WHERE request_id = $1
		ORDER BY step_order ASC
	`
	rows, err := r.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []domain.Step
	for rows.Next() {
		var step domain.Step
		var paramsJSON []byte

		if err := rows.Scan(
			&step.ID,
			&step.RequestID,
			&step.Order,
			&step.Engine,
			&step.Model,
			&step.Content,
			&paramsJSON,
			&step.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}

		if paramsJSON != nil {
			step.Parameters, err = domain.ParseJSON(paramsJSON)
			if err != nil {
				return nil, fmt.Errorf("unmarshal step %d parameters: %w", step.Order, err)
			}
		}

		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// ListParameters возвращает локальные параметры шага.
func (r *StepRepo) ListParameters(ctx context.Context, stepID int64) ([]domain.StepParameter, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, step_id, name, value FROM step_parameters WHERE step_id = $1 ORDER BY id`,
		stepID,
	)
	if err != nil {
		return nil, fmt.Errorf("list step parameters: %w", err)
	}

	params, err := pgx.CollectRows(rows, pgx.RowToStructByPos[domain.StepParameter])
	if err != nil {
		return nil, fmt.Errorf("scan step parameter: %w", err)
	}
	return params, nil
}

// createStep сохраняет шаг и его параметры, заполняя ID.
func createStep(ctx context.Context, q querier, step *domain.Step, params []domain.StepParameter) error {
	var paramsJSON []byte
	if !step.Parameters.IsNull() {
		var err error
		paramsJSON, err = json.Marshal(step.Parameters)
		if err != nil {
			return fmt.Errorf("marshal step %d parameters: %w", step.Order, err)
		}
	}

	err := q.QueryRow(ctx, `
		INSERT INTO steps (request_id, step_order, engine, model, content, parameters)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`,
		step.RequestID,
		step.Order,
		step.Engine,
		step.Model,
		step.Content,
		paramsJSON,
	).Scan(&step.ID, &step.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert step %d: %w", step.Order, err)
	}

	for i := range params {
		p := &params[i]
		p.StepID = step.ID
		err := q.QueryRow(ctx,
			`INSERT INTO step_parameters (step_id, name, value) VALUES ($1, $2, $3) RETURNING id`,
			p.StepID, p.Name, p.Value,
		).Scan(&p.ID)
		if isUniqueViolation(err) {
			return fmt.Errorf("step %d parameter %q: %w", step.Order, p.Name, ErrAlreadyExists)
		}
		if err != nil {
			return fmt.Errorf("insert step %d parameter: %w", step.Order, err)
		}
	}

	return nil
}
