package engine

import (
	"errors"
	"fmt"
)

// Ошибки валидации RequestSpec.
var (
	// ErrInvalidSpec — документ не разбирается как RequestSpec.
	ErrInvalidSpec = errors.New("invalid request spec")

	// ErrEmptyEngine — шаг не указывает движок.
	ErrEmptyEngine = errors.New("step has empty engine")

	// ErrUnknownEngine — движок не зарегистрирован.
	ErrUnknownEngine = errors.New("unknown engine")

	// ErrEmptyParameterName — локальный параметр без имени.
	ErrEmptyParameterName = errors.New("parameter has empty name")

	// ErrDuplicateParameter — два локальных параметра с одним именем.
	ErrDuplicateParameter = errors.New("duplicate parameter name")
)

// ValidationError — ошибка валидации с указанием шага и поля.
type ValidationError struct {
	Step    int    // порядковый номер шага (1-based), 0 — документ целиком
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Step > 0 {
		return fmt.Sprintf("step %d: %s", e.Step, e.Message)
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(step int, field, message string, err error) *ValidationError {
	return &ValidationError{
		Step:    step,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
