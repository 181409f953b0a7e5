// Package engine содержит алгоритмы, через которые данные текут между шагами.
//
// Включает:
//   - template.go — подстановка плейсхолдеров {{name}} в строки и JSON-деревья
//   - flatten.go  — разворачивание вложенного результата в плоские пути (a.b, c.0)
//   - context.go  — ExecutionContext: накопленные привязки одного выполнения
//   - parser.go   — разбор и валидация RequestSpec (JSON и YAML)
//
// Пакет не выполняет I/O: всё здесь — чистые функции над domain.Value.
package engine
