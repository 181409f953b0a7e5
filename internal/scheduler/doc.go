// Package scheduler периодически перезапускает запросы по cron-расписанию.
//
// Scheduler проверяет schedules с истекшим next_due_at и запускает
// reprocess соответствующего запроса через orchestrator.Trigger.
//
// Структура:
//   - scheduler.go — основная логика Scheduler (Tick, processSchedule, Run)
//   - cron.go      — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Schedules: store.Schedules,
//	    Trigger:   &orchestrator.QueueTrigger{Publisher: publisher},
//	    Logger:    logger,
//	})
//
//	go sched.Run(ctx, time.Second, repo.NewAdvisoryLock(pool, lockKey))
//
// Leader Election:
//
// Несколько экземпляров могут работать одновременно: Run выполняет Tick
// только при удержании Locker (pg_try_advisory_lock в repo.AdvisoryLock).
package scheduler
