package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/promptflow/internal/domain"
)

// cronParser — парсер cron-выражений из 5 полей.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CalculateNextDue вычисляет следующее время срабатывания после from.
// Учитывает timezone schedule; невалидный timezone трактуется как UTC.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc, err := time.LoadLocation(sched.Timezone)
	if err != nil || sched.Timezone == "" {
		loc = time.UTC
	}

	schedule, err := cronParser.Parse(sched.CronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", sched.CronExpr, err)
	}

	next := schedule.Next(from.In(loc))
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("cron expression %q never fires", sched.CronExpr)
	}
	return next.UTC(), nil // возвращаем в UTC для хранения в БД
}

// ValidateCronExpr проверяет валидность cron-выражения.
func ValidateCronExpr(cronExpr string) error {
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// CalculateInitialNextDue вычисляет первое срабатывание нового schedule.
// Срабатывания до StartAt не планируются.
func CalculateInitialNextDue(sched *domain.Schedule, now time.Time) (time.Time, error) {
	from := now
	if sched.StartAt != nil && sched.StartAt.After(now) {
		from = sched.StartAt.Add(-time.Second)
	}
	return CalculateNextDue(sched, from)
}

// NewSchedule строит включённое расписание с вычисленным NextDueAt.
// Используется при приёме запроса с заголовком x-cron-expression.
func NewSchedule(cronExpr, timezone string, startAt, endAt *time.Time, now time.Time) (*domain.Schedule, error) {
	if err := ValidateCronExpr(cronExpr); err != nil {
		return nil, err
	}
	if startAt != nil && endAt != nil && endAt.Before(*startAt) {
		return nil, fmt.Errorf("schedule end %s is before start %s", endAt.Format(time.RFC3339), startAt.Format(time.RFC3339))
	}
	if timezone == "" {
		timezone = "UTC"
	}

	sched := &domain.Schedule{
		CronExpr:  cronExpr,
		Timezone:  timezone,
		StartAt:   startAt,
		EndAt:     endAt,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	next, err := CalculateInitialNextDue(sched, now)
	if err != nil {
		return nil, err
	}
	sched.NextDueAt = &next

	return sched, nil
}
