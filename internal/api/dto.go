package api

import (
	"time"

	"github.com/shaiso/promptflow/internal/domain"
)

// Заголовки расписания при приёме запроса.
const (
	HeaderCronExpression = "x-cron-expression"
	HeaderCronStartAt    = "x-cron-start-at"
	HeaderCronEndAt      = "x-cron-end-at"
	HeaderCronTimezone   = "x-cron-timezone"
)

// Request DTOs

// CreateRequestResponse — ответ на приём запроса.
type CreateRequestResponse struct {
	Protocol string `json:"protocol"`

	// Schedule — созданное расписание (если были заголовки x-cron-*).
	Schedule *ScheduleResponse `json:"schedule,omitempty"`

	// Warnings — плейсхолдеры первого шага, которые не будут привязаны.
	Warnings map[int][]string `json:"warnings,omitempty"`
}

// RequestResponse — ответ с запросом.
type RequestResponse struct {
	Protocol   string               `json:"protocol"`
	Status     domain.RequestStatus `json:"status"`
	Error      string               `json:"error,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	StartedAt  *time.Time           `json:"started_at,omitempty"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
	DurationMs int64                `json:"duration_ms,omitempty"`
}

// RequestFromDomain конвертирует domain.Request в RequestResponse.
func RequestFromDomain(r domain.Request) RequestResponse {
	return RequestResponse{
		Protocol:   r.Protocol,
		Status:     r.Status,
		Error:      r.Error,
		CreatedAt:  r.CreatedAt,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMs: r.Duration().Milliseconds(),
	}
}

// StepProgress — состояние одного шага.
type StepProgress struct {
	Order       int        `json:"order"`
	Engine      string     `json:"engine"`
	Model       string     `json:"model,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ProgressResponse — прогресс выполнения запроса.
type ProgressResponse struct {
	Protocol       string               `json:"protocol"`
	Status         domain.RequestStatus `json:"status"`
	Error          string               `json:"error,omitempty"`
	TotalSteps     int                  `json:"total_steps"`
	CompletedSteps int                  `json:"completed_steps"`
	Steps          []StepProgress       `json:"steps"`
	Schedules      []ScheduleResponse   `json:"schedules,omitempty"`
}

// BuildProgress собирает прогресс из шагов и сохранённых результатов.
func BuildProgress(req domain.Request, steps []domain.Step, results []domain.StepResult) ProgressResponse {
	done := make(map[int]time.Time, len(results))
	for _, r := range results {
		done[r.Order] = r.CreatedAt
	}

	progress := ProgressResponse{
		Protocol:   req.Protocol,
		Status:     req.Status,
		Error:      req.Error,
		TotalSteps: len(steps),
		Steps:      make([]StepProgress, len(steps)),
	}

	for i, s := range steps {
		sp := StepProgress{Order: s.Order, Engine: s.Engine, Model: s.Model}
		if at, ok := done[s.Order]; ok {
			sp.Completed = true
			sp.CompletedAt = &at
			progress.CompletedSteps++
		}
		progress.Steps[i] = sp
	}

	return progress
}

// Schedule DTOs

// ScheduleResponse — ответ с расписанием.
type ScheduleResponse struct {
	ID        int64      `json:"id"`
	CronExpr  string     `json:"cron_expr"`
	Timezone  string     `json:"timezone"`
	StartAt   *time.Time `json:"start_at,omitempty"`
	EndAt     *time.Time `json:"end_at,omitempty"`
	Enabled   bool       `json:"enabled"`
	NextDueAt *time.Time `json:"next_due_at,omitempty"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
}

// ScheduleFromDomain конвертирует domain.Schedule в ScheduleResponse.
func ScheduleFromDomain(s domain.Schedule) ScheduleResponse {
	return ScheduleResponse{
		ID:        s.ID,
		CronExpr:  s.CronExpr,
		Timezone:  s.Timezone,
		StartAt:   s.StartAt,
		EndAt:     s.EndAt,
		Enabled:   s.Enabled,
		NextDueAt: s.NextDueAt,
		LastRunAt: s.LastRunAt,
	}
}

// EnginesResponse — список зарегистрированных движков.
type EnginesResponse struct {
	Engines []string `json:"engines"`
}
