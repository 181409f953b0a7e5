package engines

import (
	"context"

	"github.com/shaiso/promptflow/internal/domain"
)

// EngineEcho — имя движка echo.
const EngineEcho = "echo"

// Echo возвращает вход без изменений:
//
//	{"content": "...", "model": "...", "parameters": {...}}
//
// Используется для отладки шаблонов и в тестах конвейера.
func Echo() Engine {
	return Func(func(ctx context.Context, content, model string, params domain.Value) (domain.Value, error) {
		if err := ctx.Err(); err != nil {
			return domain.Value{}, cancelled(err)
		}
		return domain.Object(map[string]domain.Value{
			"content":    domain.String(content),
			"model":      domain.String(model),
			"parameters": params,
		}), nil
	})
}
