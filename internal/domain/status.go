package domain

// RequestStatus — статус выполнения запроса.
//
// Жизненный цикл:
//
//	created → processing → completed
//	        ↘            ↘ failed
//	          failed
//
// Из completed и failed нет обычных переходов. Явные пути повторного входа:
// resume (failed/processing → processing) и принудительный reprocess
// (любой неактивный статус → processing, полный перезапуск).
type RequestStatus string

const (
	// RequestStatusCreated — запрос сохранён, выполнение ещё не начиналось.
	RequestStatusCreated RequestStatus = "created"

	// RequestStatusProcessing — шаги выполняются.
	RequestStatusProcessing RequestStatus = "processing"

	// RequestStatusCompleted — все шаги выполнены, агрегат сохранён.
	RequestStatusCompleted RequestStatus = "completed"

	// RequestStatusFailed — выполнение прервано ошибкой или отменой.
	RequestStatusFailed RequestStatus = "failed"
)

// RequestStatuses — все известные статусы в порядке жизненного цикла.
var RequestStatuses = []RequestStatus{
	RequestStatusCreated,
	RequestStatusProcessing,
	RequestStatusCompleted,
	RequestStatusFailed,
}

// IsTerminal возвращает true, если статус финальный.
func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusCompleted, RequestStatusFailed:
		return true
	default:
		return false
	}
}

// IsValid возвращает true для известных статусов.
func (s RequestStatus) IsValid() bool {
	switch s {
	case RequestStatusCreated, RequestStatusProcessing, RequestStatusCompleted, RequestStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo проверяет обычный (монотонный) переход.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	switch s {
	case RequestStatusCreated:
		return next == RequestStatusProcessing || next == RequestStatusFailed
	case RequestStatusProcessing:
		return next == RequestStatusCompleted || next == RequestStatusFailed
	default:
		return false
	}
}

// CanResume проверяет путь повторного входа resume: продолжение после
// последнего сохранённого шага допустимо из failed и processing
// (процесс, выполнявший запрос, мог упасть).
func (s RequestStatus) CanResume() bool {
	return s == RequestStatusFailed || s == RequestStatusProcessing
}

// String возвращает строковое представление статуса.
func (s RequestStatus) String() string {
	return string(s)
}

// ParseRequestStatus парсит строку в RequestStatus.
// Принимает также статусы исходной схемы (em_progresso, concluido, erro).
func ParseRequestStatus(s string) (RequestStatus, bool) {
	switch s {
	case "created", "pendente":
		return RequestStatusCreated, true
	case "processing", "em_progresso":
		return RequestStatusProcessing, true
	case "completed", "concluido":
		return RequestStatusCompleted, true
	case "failed", "erro":
		return RequestStatusFailed, true
	default:
		return "", false
	}
}
