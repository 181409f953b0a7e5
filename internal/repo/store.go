package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/promptflow/internal/domain"
)

// Store объединяет репозитории в хранилище конвейера
// (реализует orchestrator.Store).
type Store struct {
	pool *pgxpool.Pool

	Requests  *RequestRepo
	Steps     *StepRepo
	Results   *ResultRepo
	Schedules *ScheduleRepo
}

// NewStore создаёт Store поверх пула.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:      pool,
		Requests:  NewRequestRepo(pool),
		Steps:     NewStepRepo(pool),
		Results:   NewResultRepo(pool),
		Schedules: NewScheduleRepo(pool),
	}
}

// CreateRequestTx создаёт запрос со всеми шагами, параметрами и
// необязательным расписанием в одной транзакции.
//
// schedule.RequestID заполняется автоматически.
func (s *Store) CreateRequestTx(ctx context.Context, protocol string, spec *domain.RequestSpec, schedule *domain.Schedule) (*domain.Request, error) {
	var requestID int64

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		var err error
		requestID, err = createRequest(ctx, tx, protocol)
		if err != nil {
			return err
		}

		steps, params := spec.BuildSteps()
		for i := range steps {
			steps[i].RequestID = requestID
			if err := createStep(ctx, tx, &steps[i], params[i]); err != nil {
				return err
			}
		}

		if schedule != nil {
			schedule.RequestID = requestID
			schedule.Protocol = protocol
			if err := createSchedule(ctx, tx, schedule); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create request %s: %w", protocol, err)
	}

	return s.Requests.GetByID(ctx, requestID)
}

// ListRequests возвращает запросы по фильтру.
func (s *Store) ListRequests(ctx context.Context, filter RequestFilter) ([]domain.Request, error) {
	return s.Requests.List(ctx, filter)
}

// DeleteRequest удаляет запрос со всеми связанными записями.
func (s *Store) DeleteRequest(ctx context.Context, protocol string) error {
	return s.Requests.Delete(ctx, protocol)
}

// ListSchedulesByRequest возвращает расписания запроса.
func (s *Store) ListSchedulesByRequest(ctx context.Context, requestID int64) ([]domain.Schedule, error) {
	return s.Schedules.ListByRequest(ctx, requestID)
}

// --- orchestrator.Store ---

// CreateRequest создаёт пустой запрос.
func (s *Store) CreateRequest(ctx context.Context, protocol string) (int64, error) {
	return s.Requests.Create(ctx, protocol)
}

// GetRequestByProtocol возвращает запрос по protocol.
func (s *Store) GetRequestByProtocol(ctx context.Context, protocol string) (*domain.Request, error) {
	return s.Requests.GetByProtocol(ctx, protocol)
}

// UpdateRequestStatus обновляет статус запроса.
func (s *Store) UpdateRequestStatus(ctx context.Context, protocol string, update domain.StatusUpdate) error {
	return s.Requests.UpdateStatus(ctx, protocol, update)
}

// ClaimRequest захватывает запрос на выполнение.
func (s *Store) ClaimRequest(ctx context.Context, protocol string, claim domain.Claim) (*domain.Request, error) {
	return s.Requests.Claim(ctx, protocol, claim)
}

// TouchRequest продлевает аренду выполняемого запроса.
func (s *Store) TouchRequest(ctx context.Context, protocol string) error {
	return s.Requests.Touch(ctx, protocol)
}

// GetStepsByRequest возвращает шаги запроса.
func (s *Store) GetStepsByRequest(ctx context.Context, requestID int64) ([]domain.Step, error) {
	return s.Steps.ListByRequest(ctx, requestID)
}

// GetParametersByStep возвращает параметры шага.
func (s *Store) GetParametersByStep(ctx context.Context, stepID int64) ([]domain.StepParameter, error) {
	return s.Steps.ListParameters(ctx, stepID)
}

// InsertStepResult сохраняет результат шага.
func (s *Store) InsertStepResult(ctx context.Context, requestID, stepID int64, order int, result domain.Value) error {
	return s.Results.Insert(ctx, requestID, stepID, order, result)
}

// GetLastStepResult возвращает последний сохранённый результат.
func (s *Store) GetLastStepResult(ctx context.Context, requestID int64) (*domain.StepResult, error) {
	return s.Results.GetLast(ctx, requestID)
}

// GetAllStepResults возвращает все результаты запроса.
func (s *Store) GetAllStepResults(ctx context.Context, requestID int64) ([]domain.StepResult, error) {
	return s.Results.ListByRequest(ctx, requestID)
}

// ResetStepResults удаляет результаты запроса.
func (s *Store) ResetStepResults(ctx context.Context, requestID int64) error {
	return s.Results.DeleteByRequest(ctx, requestID)
}

// ListRequestsByStatus возвращает запросы в статусе.
func (s *Store) ListRequestsByStatus(ctx context.Context, status domain.RequestStatus, olderThan time.Time, limit int) ([]domain.Request, error) {
	return s.Requests.ListByStatus(ctx, status, olderThan, limit)
}

// Cleaner очищает таблицы конвейера.
type Cleaner struct {
	pool *pgxpool.Pool
}

// NewCleaner создаёт Cleaner.
func NewCleaner(pool *pgxpool.Pool) *Cleaner {
	return &Cleaner{pool: pool}
}

// Truncate удаляет все запросы, шаги, результаты и расписания.
func (c *Cleaner) Truncate(ctx context.Context) error {
	_, err := c.pool.Exec(ctx, `
		TRUNCATE TABLE step_results, step_parameters, steps, schedules, requests
		RESTART IDENTITY CASCADE
	`)
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}
