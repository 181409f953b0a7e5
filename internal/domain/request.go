package domain

import (
	"slices"
	"time"
)

// Request — пользовательский запрос: упорядоченный список шагов,
// выполняемых строго последовательно.
//
// Protocol — внешний идентификатор (UUID), по которому клиенты опрашивают
// прогресс. ID — внутренний ключ для связей с шагами и результатами.
type Request struct {
	// ID — внутренний идентификатор.
	ID int64 `json:"id"`

	// Protocol — внешний идентификатор запроса.
	Protocol string `json:"protocol"`

	// Status — текущий статус.
	Status RequestStatus `json:"status"`

	// Result — агрегированный результат (заполняется при completed).
	Result *Value `json:"result,omitempty"`

	// Error — текст последней ошибки (при failed).
	Error string `json:"error,omitempty"`

	// StartedAt — время последнего перехода в processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время перехода в completed или failed.
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения статуса.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsFinished возвращает true, если запрос в финальном статусе.
func (r *Request) IsFinished() bool {
	return r.Status.IsTerminal()
}

// Duration возвращает длительность последнего выполнения.
func (r *Request) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// StatusUpdate — изменение статуса запроса, передаваемое в хранилище.
type StatusUpdate struct {
	// Status — новый статус.
	Status RequestStatus

	// Result — агрегат; учитывается только для completed.
	Result *Value

	// Error — текст ошибки; учитывается только для failed.
	Error string
}

// Processing возвращает обновление в статус processing.
func Processing() StatusUpdate {
	return StatusUpdate{Status: RequestStatusProcessing}
}

// Completed возвращает обновление в статус completed с агрегатом.
func Completed(result Value) StatusUpdate {
	return StatusUpdate{Status: RequestStatusCompleted, Result: &result}
}

// Failed возвращает обновление в статус failed с текстом ошибки.
func Failed(err string) StatusUpdate {
	return StatusUpdate{Status: RequestStatusFailed, Error: err}
}

// Apply применяет обновление к запросу в памяти.
// Проверку допустимости перехода выполняет вызывающая сторона.
func (r *Request) Apply(u StatusUpdate, now time.Time) {
	r.Status = u.Status
	r.UpdatedAt = now

	switch u.Status {
	case RequestStatusProcessing:
		r.StartedAt = &now
		r.FinishedAt = nil
		r.Error = ""
		r.Result = nil
	case RequestStatusCompleted:
		r.FinishedAt = &now
		r.Result = u.Result
		r.Error = ""
	case RequestStatusFailed:
		r.FinishedAt = &now
		r.Error = u.Error
	}
}

// Claim — условие захвата запроса на выполнение: переход в processing
// выполняется как compare-and-set по текущему статусу.
type Claim struct {
	// From — статусы, из которых допускается захват.
	From []RequestStatus

	// StaleBefore — запрос в processing захватывается, только если не
	// обновлялся с этого момента (владелец перестал продлевать аренду).
	// Нулевое значение запрещает захват из processing.
	StaleBefore time.Time
}

// Allows проверяет, можно ли захватить запрос в его текущем состоянии.
func (c Claim) Allows(r *Request) bool {
	if !slices.Contains(c.From, r.Status) {
		return false
	}
	if r.Status == RequestStatusProcessing {
		return !c.StaleBefore.IsZero() && r.UpdatedAt.Before(c.StaleBefore)
	}
	return true
}
