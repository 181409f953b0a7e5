// PromptFlow Scheduler — запускает запросы по cron-расписанию.
//
// Тики выполняет только лидер: экземпляр, удерживающий advisory lock
// в PostgreSQL. Сработавшее расписание отправляет команду reprocess.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/promptflow/internal/config"
	"github.com/shaiso/promptflow/internal/engines"
	"github.com/shaiso/promptflow/internal/mq"
	"github.com/shaiso/promptflow/internal/orchestrator"
	"github.com/shaiso/promptflow/internal/repo"
	"github.com/shaiso/promptflow/internal/scheduler"
	"github.com/shaiso/promptflow/internal/telemetry"
)

const schedLockKey int64 = 424242

func main() {
	cfg, err := config.Load(os.Getenv("PROMPTFLOW_CONFIG"))
	if err != nil {
		telemetry.SetupLogger(telemetry.LogConfig{Service: "promptflow-scheduler"}).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.Log("promptflow-scheduler"))
	logger.Info("starting promptflow-scheduler")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	store := repo.NewStore(pool)

	// Команды уходят в очередь; без RabbitMQ запросы выполняются здесь же.
	var trigger orchestrator.Trigger
	var orch *orchestrator.Orchestrator

	mqConn, err := mq.Dial(cfg.RabbitMQURL, "promptflow-scheduler", logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, executing scheduled requests in-process", "error", err)

		orch = orchestrator.New(orchestrator.Config{
			Store:         store,
			Engines:       engines.DefaultRegistry(cfg.Engines()),
			PollInterval:  cfg.PollInterval,
			StaleAfter:    cfg.StaleAfter,
			Lease:         cfg.RequestLease,
			MaxConcurrent: cfg.MaxConcurrent,
			Logger:        logger,
		})
		if err := orch.Start(ctx); err != nil {
			logger.Error("failed to start orchestrator", "error", err)
			os.Exit(1)
		}
		trigger = orch
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		trigger = &orchestrator.QueueTrigger{Publisher: mq.NewPublisher(mqConn, logger)}
		logger.Info("RabbitMQ connected")
	}

	sched := scheduler.New(scheduler.Config{
		Schedules: store.Schedules,
		Trigger:   trigger,
		Logger:    logger,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		sched.Run(ctx, cfg.SchedulerTick, repo.NewAdvisoryLock(pool, schedLockKey))
	}()

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.Addr(cfg.SchedulerPort)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	// Run освобождает блокировку лидера при выходе
	<-done
	if orch != nil {
		orch.Stop()
	}
	logger.Info("promptflow-scheduler stopped")
}
