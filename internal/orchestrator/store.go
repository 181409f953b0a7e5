package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/promptflow/internal/domain"
	"github.com/shaiso/promptflow/internal/mq"
)

// Store — хранилище, которое использует конвейер.
//
// Отсутствие записи сообщается ошибкой, для которой
// errors.Is(err, repo.ErrNotFound) истинно. Каждая операция атомарна
// сама по себе; транзакций между шагами нет.
type Store interface {
	CreateRequest(ctx context.Context, protocol string) (int64, error)
	GetRequestByProtocol(ctx context.Context, protocol string) (*domain.Request, error)
	UpdateRequestStatus(ctx context.Context, protocol string, update domain.StatusUpdate) error
	ClaimRequest(ctx context.Context, protocol string, claim domain.Claim) (*domain.Request, error)
	TouchRequest(ctx context.Context, protocol string) error
	GetStepsByRequest(ctx context.Context, requestID int64) ([]domain.Step, error)
	GetParametersByStep(ctx context.Context, stepID int64) ([]domain.StepParameter, error)
	InsertStepResult(ctx context.Context, requestID, stepID int64, order int, result domain.Value) error

	// GetLastStepResult возвращает результат с наибольшим Order.
	GetLastStepResult(ctx context.Context, requestID int64) (*domain.StepResult, error)

	// GetAllStepResults возвращает результаты по возрастанию Order.
	GetAllStepResults(ctx context.Context, requestID int64) ([]domain.StepResult, error)

	// ResetStepResults удаляет журнал результатов перед полным перезапуском.
	ResetStepResults(ctx context.Context, requestID int64) error

	// ListRequestsByStatus возвращает запросы в статусе, не менявшиеся
	// с olderThan, от старых к новым.
	ListRequestsByStatus(ctx context.Context, status domain.RequestStatus, olderThan time.Time, limit int) ([]domain.Request, error)
}

// Dispatcher — реестр движков с точки зрения конвейера.
// Реализуется *engines.Registry.
type Dispatcher interface {
	Dispatch(ctx context.Context, name, content, model string, params domain.Value) (domain.Value, error)
}

// Action — действие над запросом.
type Action string

// Действия.
const (
	// ActionProcess — первое выполнение запроса в статусе created.
	ActionProcess Action = mq.ActionProcess

	// ActionResume — продолжение после последнего сохранённого шага.
	ActionResume Action = mq.ActionResume

	// ActionReprocess — принудительный полный перезапуск.
	ActionReprocess Action = mq.ActionReprocess
)

// ParseAction разбирает строку в Action.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionProcess, ActionResume, ActionReprocess:
		return a, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAction, s)
	}
}

// Trigger — асинхронный запуск выполнения запроса.
//
// Вызывающая сторона не ждёт результата: прогресс наблюдается
// через статус запроса в хранилище.
type Trigger interface {
	Trigger(ctx context.Context, protocol string, action Action) error
}

// QueueTrigger публикует команды в RabbitMQ; их потребляет оркестратор.
type QueueTrigger struct {
	Publisher *mq.Publisher
}

// Trigger публикует команду request.<action>.
func (t *QueueTrigger) Trigger(ctx context.Context, protocol string, action Action) error {
	return t.Publisher.PublishRequest(ctx, protocol, string(action))
}
