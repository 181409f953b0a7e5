// PromptFlow API — HTTP-интерфейс приёма и управления запросами.
//
// Если RabbitMQ доступен, команды process/resume/reprocess публикуются
// в очередь и выполняются отдельным оркестратором. Иначе оркестратор
// запускается в этом же процессе, и становится доступна отмена.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/promptflow/internal/api"
	"github.com/shaiso/promptflow/internal/config"
	"github.com/shaiso/promptflow/internal/engines"
	"github.com/shaiso/promptflow/internal/mq"
	"github.com/shaiso/promptflow/internal/orchestrator"
	"github.com/shaiso/promptflow/internal/repo"
	"github.com/shaiso/promptflow/internal/telemetry"
)

func main() {
	cfg, err := config.Load(os.Getenv("PROMPTFLOW_CONFIG"))
	if err != nil {
		telemetry.SetupLogger(telemetry.LogConfig{Service: "promptflow-api"}).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log("promptflow-api"))
	logger.Info("starting promptflow-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DBURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	store := repo.NewStore(pool)
	registry := engines.DefaultRegistry(cfg.Engines())
	logger.Info("engines registered", "engines", registry.Names())

	handlerCfg := api.Config{
		Store:   store,
		Engines: registry,
		APIKey:  cfg.APIKey,
		Logger:  logger,
	}

	// RabbitMQ или встроенный оркестратор
	var orch *orchestrator.Orchestrator
	mqConn, err := mq.Dial(cfg.RabbitMQURL, "promptflow-api", logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, executing requests in-process", "error", err)

		orch = orchestrator.New(orchestrator.Config{
			Store:         store,
			Engines:       registry,
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
		handlerCfg.Trigger = orch
		handlerCfg.Canceller = orch
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		handlerCfg.Trigger = &orchestrator.QueueTrigger{Publisher: mq.NewPublisher(mqConn, logger)}
		logger.Info("RabbitMQ connected")
	}

	mux := http.NewServeMux()
	api.NewHandler(handlerCfg).RegisterRoutes(mux)

	addr := config.Addr(cfg.APIPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	if orch != nil {
		orch.Stop()
	}

	logger.Info("stopped")
}
