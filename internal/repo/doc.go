// Package repo хранит запросы, шаги, результаты и расписания в PostgreSQL.
//
// Отсутствие записи сообщается ErrNotFound, конфликт уникальности —
// ErrAlreadyExists. Store объединяет репозитории в хранилище,
// которое использует оркестратор.
package repo
