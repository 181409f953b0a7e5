package orchestrator

import (
	"errors"
	"fmt"
)

// Ошибки оркестратора.
var (
	// ErrRequestNotFound — запрос с таким protocol не найден.
	ErrRequestNotFound = errors.New("request not found")

	// ErrRequestAlreadyActive — запрос уже выполняется.
	ErrRequestAlreadyActive = errors.New("request already being processed")

	// ErrRequestNotActive — запрос не выполняется в этом процессе.
	ErrRequestNotActive = errors.New("request not in active runs")

	// ErrRequestCompleted — process для уже завершённого запроса.
	// Повторный запуск возможен только через reprocess.
	ErrRequestCompleted = errors.New("request already completed")

	// ErrInvalidState — статус запроса не допускает действие.
	ErrInvalidState = errors.New("invalid request state for action")

	// ErrUnknownAction — неизвестное действие.
	ErrUnknownAction = errors.New("unknown action")

	// ErrCancelled — выполнение отменено через Cancel.
	ErrCancelled = errors.New("request execution cancelled")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)

// PersistenceError — ошибка чтения или записи хранилища.
//
// Если ошибка произошла между записью статуса и записью результата шага,
// запрос может остаться в processing; resume продолжит его с первого
// несохранённого шага.
type PersistenceError struct {
	Op  string
	Err error
}

// Error реализует интерфейс error.
func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistence(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// StepError — шаг запроса завершился ошибкой.
type StepError struct {
	Order  int
	Engine string
	Err    error
}

// Error реализует интерфейс error.
func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Order, e.Engine, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *StepError) Unwrap() error {
	return e.Err
}
