// Package engines содержит реализации движков, выполняющих шаги запроса.
//
// # Обзор
//
// Движок получает уже отрендеренные content, model и parameters шага
// и возвращает JSON-значение (domain.Value). Результат шага сливается
// в контекст выполнения и становится доступен следующим шагам как
// {{путь.к.полю}}.
//
//	type Engine interface {
//	    Execute(ctx context.Context, content, model string, params domain.Value) (domain.Value, error)
//	}
//
// # Registry
//
// Registry хранит движки по имени (без учёта регистра):
//
//	registry := engines.DefaultRegistry(engines.Config{OpenAIKey: key})
//	result, err := registry.Dispatch(ctx, "openai", prompt, "gpt-4o-mini", params)
//
// Неизвестное имя даёт *UnsupportedEngineError, любая ошибка движка
// приходит как *EngineError. Таймауты и повторы — забота самого движка
// (см. RetryPolicy для http-command и curl).
//
// # Движки
//
//   - echo         — возвращает вход, для отладки шаблонов
//   - delay        — пауза (duration_ms, duration_sec)
//   - transform    — приведение mappings к JSON-типам
//   - jq           — jq-выражение (gojq) над params.input
//   - http-command — произвольный HTTP-вызов
//   - curl         — выполнение командной строки curl
//   - openai, gemini — чат-модели через langchaingo
//   - mysql, postgres, sqlite — один SQL-запрос, ошибки в ответе
//   - telegram     — публикация через Bot API
//
// # Файлы пакета
//
//   - engine.go    — интерфейс Engine и адаптер Func
//   - registry.go  — Registry и Dispatch
//   - defaults.go  — Config и DefaultRegistry
//   - errors.go    — ошибки движков
//   - retry.go     — RetryPolicy
package engines
