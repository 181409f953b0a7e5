package engines

import (
	"context"
	"strings"

	"github.com/shaiso/promptflow/internal/domain"
)

// EngineTransform — имя движка трансформации.
const EngineTransform = "transform"

// TransformEngine собирает новый объект из уже отрендеренных mappings.
//
// Плейсхолдеры в параметрах подставляются до вызова движка, поэтому
// движку остаётся только привести строки к типам.
//
//	{
//	    "mappings": {
//	        "total": "{{items.length}}",
//	        "title": "Order {{order.id}}"
//	    }
//	}
//
// Результат:
//
//	{"total": 10, "title": "Order 42"}
type TransformEngine struct{}

// Execute выполняет трансформацию.
func (TransformEngine) Execute(ctx context.Context, _, _ string, params domain.Value) (domain.Value, error) {
	if err := ctx.Err(); err != nil {
		return domain.Value{}, cancelled(context.Cause(ctx))
	}

	mappings, ok := params.Field("mappings")
	if !ok || mappings.Kind() != domain.KindObject {
		return domain.Object(nil), nil
	}

	out := make(map[string]domain.Value, mappings.Len())
	for _, key := range mappings.Keys() {
		v, _ := mappings.Field(key)
		if s, isString := v.AsString(); isString {
			out[key] = parseScalar(s)
			continue
		}
		out[key] = v
	}
	return domain.Object(out), nil
}

// parseScalar пробует разобрать строку как JSON, иначе возвращает строку.
func parseScalar(s string) domain.Value {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return domain.String(s)
	}
	if v, err := domain.ParseJSON([]byte(trimmed)); err == nil {
		return v
	}
	return domain.String(s)
}
