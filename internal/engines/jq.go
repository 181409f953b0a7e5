package engines

import (
	"context"
	"fmt"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/shaiso/promptflow/internal/domain"
)

// EngineJQ — имя движка jq.
const EngineJQ = "jq"

// JQEngine применяет jq-выражение к JSON-данным шага.
//
// Выражение берётся из params.expression, иначе из content.
// Вход — params.input, иначе весь объект параметров.
// Одно значение на выходе возвращается как есть, несколько —
// в виде {"results": [...]}, ни одного — null.
type JQEngine struct{}

// Execute выполняет выражение.
func (JQEngine) Execute(ctx context.Context, content, _ string, params domain.Value) (domain.Value, error) {
	expr, _ := params.StringField("expression")
	if strings.TrimSpace(expr) == "" {
		expr = content
	}
	if strings.TrimSpace(expr) == "" {
		return domain.Value{}, invalidParams(EngineJQ, "expression is empty")
	}

	parsed, err := gojq.Parse(expr)
	if err != nil {
		return domain.Value{}, invalidParams(EngineJQ, "parse %q: %v", expr, err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return domain.Value{}, invalidParams(EngineJQ, "compile %q: %v", expr, err)
	}

	input := params
	if in, ok := params.Field("input"); ok {
		input = in
	}

	var results []domain.Value
	iter := code.RunWithContext(ctx, input.Any())
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if ctx.Err() != nil {
				return domain.Value{}, cancelled(context.Cause(ctx))
			}
			return domain.Value{}, fmt.Errorf("jq %q: %w", expr, err)
		}
		out, err := domain.FromAny(v)
		if err != nil {
			return domain.Value{}, fmt.Errorf("jq %q: %w", expr, err)
		}
		results = append(results, out)
	}

	switch len(results) {
	case 0:
		return domain.Null(), nil
	case 1:
		return results[0], nil
	default:
		return domain.Object(map[string]domain.Value{
			"results": domain.Array(results...),
		}), nil
	}
}
