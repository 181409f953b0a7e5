package engine

import (
	"sort"

	"github.com/shaiso/promptflow/internal/domain"
)

// ExecutionContext — плоская таблица привязок, накопленная из результатов
// предыдущих шагов одного выполнения.
//
// Принадлежит ровно одному выполнению и не разделяется между горутинами.
// Не персистится: при resume восстанавливается через Rebuild.
type ExecutionContext struct {
	vars map[string]domain.Value
}

// NewExecutionContext создаёт пустой контекст.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{vars: make(map[string]domain.Value)}
}

// Rebuild восстанавливает контекст, разворачивая сохранённые результаты
// в порядке возрастания Order.
func Rebuild(results []domain.StepResult) *ExecutionContext {
	ordered := make([]domain.StepResult, len(results))
	copy(ordered, results)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Order < ordered[j].Order
	})

	c := NewExecutionContext()
	for _, r := range ordered {
		c.Absorb(r.Result)
	}
	return c
}

// Absorb разворачивает результат шага в контекст.
func (c *ExecutionContext) Absorb(result domain.Value) {
	Flatten(result, "", c.vars)
}

// Set привязывает одно значение.
func (c *ExecutionContext) Set(name string, v domain.Value) {
	c.vars[name] = v
}

// Lookup возвращает привязку по имени.
func (c *ExecutionContext) Lookup(name string) (domain.Value, bool) {
	v, ok := c.vars[name]
	return v, ok
}

// Len возвращает число привязок.
func (c *ExecutionContext) Len() int {
	return len(c.vars)
}

// Bindings возвращает копию привязок.
func (c *ExecutionContext) Bindings() Bindings {
	out := make(Bindings, len(c.vars))
	for k, v := range c.vars {
		out[k] = v
	}
	return out
}

// Overlay возвращает привязки для рендеринга одного шага: контекст,
// поверх которого наложены локальные параметры шага (параметры выигрывают).
// Сам контекст не меняется.
func (c *ExecutionContext) Overlay(params []domain.StepParameter) Bindings {
	out := make(Bindings, len(c.vars)+len(params))
	for k, v := range c.vars {
		out[k] = v
	}
	for _, p := range params {
		out[p.Name] = domain.String(p.Value)
	}
	return out
}

// Snapshot возвращает контекст как объект {путь: значение}.
// Это агрегат, сохраняемый при завершении запроса.
func (c *ExecutionContext) Snapshot() domain.Value {
	return domain.Object(c.vars)
}
