package engines

import (
	"errors"
	"fmt"
)

// Ошибки движков.
var (
	// ErrUnsupportedEngine — движок не зарегистрирован.
	ErrUnsupportedEngine = errors.New("unsupported engine")

	// ErrInvalidParams — параметры шага не подходят движку.
	ErrInvalidParams = errors.New("invalid engine parameters")

	// ErrCancelled — выполнение прервано отменой контекста.
	ErrCancelled = errors.New("engine execution cancelled")

	// ErrEmptyResponse — провайдер вернул пустой ответ.
	ErrEmptyResponse = errors.New("engine returned empty response")
)

// UnsupportedEngineError — шаг ссылается на незарегистрированный движок.
// Фатальна для запроса.
type UnsupportedEngineError struct {
	Name string
}

// Error реализует интерфейс error.
func (e *UnsupportedEngineError) Error() string {
	return fmt.Sprintf("unsupported engine: %q", e.Name)
}

// Is позволяет сравнивать с ErrUnsupportedEngine через errors.Is.
func (e *UnsupportedEngineError) Is(target error) bool {
	return target == ErrUnsupportedEngine
}

// EngineError — любая ошибка, возвращённая движком (сеть, 4xx/5xx,
// некорректный ответ, параметры). Фатальна для запроса, не повторяется.
type EngineError struct {
	Engine string
	Err    error
}

// Error реализует интерфейс error.
func (e *EngineError) Error() string {
	return fmt.Sprintf("engine %s: %v", e.Engine, e.Err)
}

// Unwrap возвращает базовую ошибку.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// invalidParams формирует ошибку параметров для движка.
func invalidParams(engine, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidParams, engine, fmt.Sprintf(format, args...))
}

// cancelled формирует ошибку отмены с причиной из ctx.
func cancelled(cause error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}
