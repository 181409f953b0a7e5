// PromptFlow Orchestrator — выполняет конвейеры запросов.
//
// Orchestrator:
//   - Получает команды process/resume/reprocess из RabbitMQ
//   - Подбирает зависшие created-запросы через polling
//   - Выполняет шаги по порядку и сохраняет результаты
//   - Переводит запрос в completed или failed
package main

import (
	"context"
	"errors"
	"fmt"
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
	"github.com/shaiso/promptflow/internal/telemetry"
)

func main() {
	cfg, err := config.Load(os.Getenv("PROMPTFLOW_CONFIG"))
	if err != nil {
		telemetry.SetupLogger(telemetry.LogConfig{Service: "promptflow-orchestrator"}).Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Инициализируем structured logging
	logger := telemetry.SetupLogger(cfg.Log("promptflow-orchestrator"))
	logger.Info("starting promptflow-orchestrator")

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

	// RabbitMQ
	mqConn, err := mq.Dial(cfg.RabbitMQURL, "promptflow-orchestrator", logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		// Создаём топологию
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		} else {
			logger.Debug("topology ready", "topology", mq.TopologyInfo())
		}
	}

	registry := engines.DefaultRegistry(cfg.Engines())
	logger.Info("engines registered", "engines", registry.Names())

	orch := orchestrator.New(orchestrator.Config{
		Store:         repo.NewStore(pool),
		Engines:       registry,
		Conn:          mqConn,
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

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if mqConn != nil && !mqConn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("rabbitmq disconnected"))
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok active=%d", orch.ActiveRunsCount())
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := config.Addr(cfg.OrchPort)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	// Останавливаем orchestrator: активные запросы переходят в failed
	orch.Stop()
	logger.Info("promptflow-orchestrator stopped")
}
