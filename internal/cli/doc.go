// Package cli реализует инструмент командной строки PromptFlow.
//
// # Обзор
//
// CLI работает с API по HTTP: отправляет конвейеры, показывает прогресс
// и результат, управляет resume/reprocess/cancel. Команды группы db
// обращаются к PostgreSQL напрямую и нужны для обслуживания.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для PromptFlow API. Инкапсулирует HTTP-запросы,
// разбор ответов (DataResponse, ListResponse, ErrorResponse)
// и заголовок x-api-key.
//
//	client := cli.NewClient("http://localhost:8080", apiKey)
//	progress, err := client.GetProgress(protocol)
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: promptflow request list --json | jq .
//
// ## Commands
//
//   - request: list, create, show, progress, result, resume, reprocess, cancel, delete
//   - engine: list
//   - db: migrate, clean
//
// Каждая группа создаётся фабричной функцией (NewRequestCmd и т.д.),
// принимающей замыкания для ленивого создания Client и Output
// после разбора PersistentFlags.
package cli
