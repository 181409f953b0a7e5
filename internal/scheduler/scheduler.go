package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/promptflow/internal/domain"
	"github.com/shaiso/promptflow/internal/orchestrator"
	"github.com/shaiso/promptflow/internal/telemetry"
)

// ScheduleStore — хранилище расписаний. Реализуется *repo.ScheduleRepo.
type ScheduleStore interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Schedule, error)
	Update(ctx context.Context, schedule *domain.Schedule) error
}

// Locker — блокировка лидера. Tick выполняет только держатель блокировки.
type Locker interface {
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// Scheduler — планировщик, обрабатывающий due schedules.
type Scheduler struct {
	schedules ScheduleStore
	trigger   orchestrator.Trigger
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Schedules ScheduleStore
	Trigger   orchestrator.Trigger // очередь или оркестратор в том же процессе
	Logger    *slog.Logger
	BatchSize int // количество schedules за один тик (default: 100)

	// Now — источник времени (default: time.Now).
	Now func() time.Time
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		schedules: cfg.Schedules,
		trigger:   cfg.Trigger,
		logger:    telemetry.WithComponent(logger, "scheduler"),
		batchSize: batchSize,
		now:       now,
	}
}

// TickResult — итоги одного тика.
type TickResult struct {
	Due       int
	Fired     int
	Postponed int
	Disabled  int
	Failed    int
}

// Tick выполняет один тик планировщика.
//
//  1. Находит due schedules (enabled=true, next_due_at <= now)
//  2. Выключает истёкшие (now > EndAt) и переносит ранние (now < StartAt)
//  3. Для остальных запускает reprocess запроса
//  4. Обновляет next_due_at
//
// Ошибки одного schedule не блокируют обработку остальных.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult
	now := s.now()

	schedules, err := s.schedules.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return res, fmt.Errorf("list due schedules: %w", err)
	}

	res.Due = len(schedules)
	if res.Due == 0 {
		return res, nil
	}

	s.logger.Debug("found due schedules", "count", res.Due)

	for i := range schedules {
		sched := &schedules[i]

		outcome, err := s.processSchedule(ctx, sched, now)
		if err != nil {
			res.Failed++
			s.logger.Error("failed to process schedule",
				"schedule_id", sched.ID,
				"protocol", sched.Protocol,
				"error", err,
			)
			// Продолжаем обработку остальных
			continue
		}

		switch outcome {
		case outcomeFired:
			res.Fired++
		case outcomePostponed:
			res.Postponed++
		case outcomeDisabled:
			res.Disabled++
		}
	}

	s.logger.Info("scheduler tick completed",
		"due", res.Due,
		"fired", res.Fired,
		"postponed", res.Postponed,
		"disabled", res.Disabled,
		"failed", res.Failed,
	)

	return res, nil
}

type outcome int

const (
	outcomeFired outcome = iota
	outcomePostponed
	outcomeDisabled
)

// processSchedule обрабатывает один schedule.
func (s *Scheduler) processSchedule(ctx context.Context, sched *domain.Schedule, now time.Time) (outcome, error) {
	if sched.Expired(now) {
		sched.Disable()
		if err := s.schedules.Update(ctx, sched); err != nil {
			return outcomeDisabled, fmt.Errorf("disable expired schedule: %w", err)
		}
		s.logger.Info("schedule expired, disabled", "schedule_id", sched.ID, "protocol", sched.Protocol)
		return outcomeDisabled, nil
	}

	if !sched.IsActiveAt(now) {
		next, err := CalculateInitialNextDue(sched, now)
		if err != nil {
			return s.disableInvalid(ctx, sched, err)
		}
		sched.Postpone(next)
		if err := s.schedules.Update(ctx, sched); err != nil {
			return outcomePostponed, fmt.Errorf("postpone schedule: %w", err)
		}
		return outcomePostponed, nil
	}

	nextDue, err := CalculateNextDue(sched, now)
	if err != nil {
		return s.disableInvalid(ctx, sched, err)
	}

	// Если запуск не удался, next_due_at не трогаем: следующий тик повторит
	if err := s.trigger.Trigger(ctx, sched.Protocol, orchestrator.ActionReprocess); err != nil {
		return outcomeFired, fmt.Errorf("trigger reprocess: %w", err)
	}

	telemetry.SchedulesFired.Inc()

	sched.RecordRun(nextDue)
	if err := s.schedules.Update(ctx, sched); err != nil {
		return outcomeFired, fmt.Errorf("update schedule: %w", err)
	}

	s.logger.Info("schedule fired",
		"schedule_id", sched.ID,
		"protocol", sched.Protocol,
		"next_due_at", nextDue,
	)

	return outcomeFired, nil
}

// disableInvalid выключает schedule с невычислимым cron-выражением.
func (s *Scheduler) disableInvalid(ctx context.Context, sched *domain.Schedule, cause error) (outcome, error) {
	s.logger.Error("failed to calculate next due, disabling schedule",
		"schedule_id", sched.ID,
		"error", cause,
	)
	sched.Disable()
	if err := s.schedules.Update(ctx, sched); err != nil {
		return outcomeDisabled, fmt.Errorf("disable invalid schedule: %w", err)
	}
	return outcomeDisabled, nil
}

// Run вызывает Tick каждые interval, пока ctx не отменён.
//
// Если locker задан, тик выполняет только процесс, удерживающий
// блокировку; остальные экземпляры пропускают тики.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, locker Locker) {
	tk := time.NewTicker(interval)
	defer tk.Stop()

	var hasLock bool
	defer func() {
		if hasLock {
			if err := locker.Unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("failed to release leader lock", "error", err)
			}
		}
	}()

	for {
		select {
		case <-tk.C:
			// пытаемся стать лидером (или подтвердить лидерство)
			if locker != nil && !hasLock {
				ok, err := locker.TryLock(ctx)
				if err != nil {
					s.logger.Error("leader lock error", "error", err)
					continue
				}
				hasLock = ok
				if ok {
					s.logger.Info("acquired scheduler leadership")
				}
			}

			if locker != nil && !hasLock {
				// не лидер — пропускаем тик
				continue
			}

			if _, err := s.Tick(ctx); err != nil {
				s.logger.Error("scheduler tick failed", "error", err)
			}

		case <-ctx.Done():
			return
		}
	}
}
