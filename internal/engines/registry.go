package engines

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/shaiso/promptflow/internal/domain"
)

// Registry — реестр движков по имени.
//
// Имена нечувствительны к регистру. Заполняется при старте процесса,
// после чего используется только на чтение. Потокобезопасен.
type Registry struct {
	mu      sync.RWMutex
	engines map[string]Engine
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		engines: make(map[string]Engine),
	}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register регистрирует движок под именем.
// Если движок с таким именем уже есть, он будет перезаписан.
func (r *Registry) Register(name string, engine Engine) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.engines[normalizeName(name)] = engine
}

// Get возвращает движок по имени.
// Возвращает *UnsupportedEngineError, если движок не найден.
func (r *Registry) Get(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, exists := r.engines[normalizeName(name)]
	if !exists {
		return nil, &UnsupportedEngineError{Name: name}
	}
	return engine, nil
}

// Has проверяет, зарегистрирован ли движок.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.engines[normalizeName(name)]
	return exists
}

// Names возвращает отсортированный список зарегистрированных имён.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count возвращает количество зарегистрированных движков.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.engines)
}

// Unregister удаляет движок из реестра.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.engines, normalizeName(name))
}

// Dispatch находит движок и выполняет шаг.
//
// Неизвестное имя даёт *UnsupportedEngineError, любая ошибка движка
// оборачивается в *EngineError. Повторов и таймаутов здесь нет.
func (r *Registry) Dispatch(ctx context.Context, name, content, model string, params domain.Value) (domain.Value, error) {
	engine, err := r.Get(name)
	if err != nil {
		return domain.Value{}, err
	}

	result, err := engine.Execute(ctx, content, model, params)
	if err != nil {
		return domain.Value{}, &EngineError{Engine: normalizeName(name), Err: err}
	}
	return result, nil
}
