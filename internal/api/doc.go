// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go         — Handler с DI (хранилище, реестр движков, trigger, logger)
//   - routes.go          — регистрация маршрутов
//   - middleware.go      — middleware (recovery, logging, API key)
//   - response.go        — унифицированные JSON-ответы и обработка ошибок
//   - dto.go             — Data Transfer Objects (request/response)
//   - request_handler.go — обработчики для /requests и /engines
//
// API принимает запросы, показывает их прогресс и результат и управляет
// выполнением (resume, reprocess, cancel). Само выполнение идёт в
// оркестраторе: API только публикует команды через orchestrator.Trigger.
package api
