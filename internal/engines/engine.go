package engines

import (
	"context"

	"github.com/shaiso/promptflow/internal/domain"
)

// Engine — подключаемая возможность, выполняющая отрендеренный шаг.
//
// content и params уже прошли подстановку плейсхолдеров. Реализация сама
// отвечает за таймауты и повторные попытки; реестр их не добавляет.
// Реализация должна уважать ctx: отмена прерывает шаг.
type Engine interface {
	Execute(ctx context.Context, content, model string, params domain.Value) (domain.Value, error)
}

// Func — адаптер обычной функции к Engine.
type Func func(ctx context.Context, content, model string, params domain.Value) (domain.Value, error)

// Execute вызывает f.
func (f Func) Execute(ctx context.Context, content, model string, params domain.Value) (domain.Value, error) {
	return f(ctx, content, model, params)
}
