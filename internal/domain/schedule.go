package domain

import "time"

// Schedule — расписание повторного выполнения запроса.
//
// Создаётся при приёме запроса с заголовком x-cron-expression.
// Каждый срабатывающий тик принудительно перезапускает запрос целиком.
// StartAt/EndAt ограничивают окно действия: до StartAt тики пропускаются,
// после EndAt расписание выключается.
type Schedule struct {
	// ID — внутренний идентификатор.
	ID int64 `json:"id"`

	// RequestID — запрос, который нужно перезапускать.
	RequestID int64 `json:"request_id"`

	// Protocol — внешний идентификатор запроса (денормализован для публикации).
	Protocol string `json:"protocol"`

	// CronExpr — cron-выражение из 5 полей: "минуты часы дни месяцы дни_недели".
	CronExpr string `json:"cron_expr"`

	// Timezone — часовой пояс для вычисления времени. По умолчанию "UTC".
	Timezone string `json:"timezone"`

	// StartAt — начало окна действия (nil — без ограничения).
	StartAt *time.Time `json:"start_at,omitempty"`

	// EndAt — конец окна действия (nil — без ограничения).
	EndAt *time.Time `json:"end_at,omitempty"`

	// Enabled — флаг активности.
	Enabled bool `json:"enabled"`

	// NextDueAt — время следующего срабатывания.
	NextDueAt *time.Time `json:"next_due_at,omitempty"`

	// LastRunAt — время последнего срабатывания.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsDue проверяет, пора ли срабатывать.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled || s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// IsActiveAt возвращает true, если now попадает в окно действия.
func (s *Schedule) IsActiveAt(now time.Time) bool {
	if s.StartAt != nil && now.Before(*s.StartAt) {
		return false
	}
	return !s.Expired(now)
}

// Expired возвращает true, если окно действия закончилось.
func (s *Schedule) Expired(now time.Time) bool {
	return s.EndAt != nil && now.After(*s.EndAt)
}

// RecordRun записывает срабатывание и следующее время.
func (s *Schedule) RecordRun(nextDue time.Time) {
	now := time.Now()
	s.LastRunAt = &now
	s.NextDueAt = &nextDue
	s.UpdatedAt = now
}

// Postpone переносит следующее срабатывание без записи запуска.
func (s *Schedule) Postpone(nextDue time.Time) {
	s.NextDueAt = &nextDue
	s.UpdatedAt = time.Now()
}

// Disable выключает расписание.
func (s *Schedule) Disable() {
	s.Enabled = false
	s.UpdatedAt = time.Now()
}
