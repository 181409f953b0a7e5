package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/shaiso/promptflow/internal/mq"
	"github.com/shaiso/promptflow/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval  = 10 * time.Second
	defaultStaleAfter    = time.Minute
	defaultBatchSize     = 100
	defaultMaxConcurrent = 16
	defaultPrefetch      = 10
	defaultLease         = time.Minute
)

// Orchestrator выполняет запросы.
//
// Orchestrator — центральный компонент системы, который:
//   - Получает команды process/resume/reprocess из RabbitMQ (event-driven)
//   - Периодически подбирает зависшие в created запросы (polling fallback)
//   - Выполняет шаги запроса строго по порядку
//   - Сохраняет результат каждого шага и финализирует запрос
//
// Разные запросы выполняются параллельно (не больше MaxConcurrent),
// один и тот же запрос — не больше одного раза одновременно.
type Orchestrator struct {
	store   Store
	engines Dispatcher

	// MQ (опционально)
	conn *mq.Connection

	// Active runs — выполнения в процессе (protocol → state)
	active map[string]*RunState
	mu     sync.RWMutex

	// Configuration
	pollInterval time.Duration
	staleAfter   time.Duration
	batchSize    int
	lease        time.Duration
	sem          chan struct{}

	// Lifecycle
	logger    *slog.Logger
	tracer    trace.Tracer
	now       func() time.Time
	rootCtx   context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopped   bool
	stoppedMu sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Store — хранилище запросов (обязательно).
	Store Store

	// Engines — реестр движков (обязательно).
	Engines Dispatcher

	// Conn — соединение с RabbitMQ; nil — только polling и Submit.
	Conn *mq.Connection

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	StaleAfter   time.Duration // возраст created-запроса для polling (default: 1m)
	BatchSize    int           // количество запросов за один poll (default: 100)

	// MaxConcurrent — одновременные выполнения (default: 16).
	MaxConcurrent int

	// Lease — срок, после которого processing-запрос без продления
	// считается брошенным и может быть подхвачен resume/reprocess
	// (default: 1m). Пока шаги выполняются, аренда продлевается каждые Lease/3.
	Lease time.Duration

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}

	lease := cfg.Lease
	if lease <= 0 {
		lease = defaultLease
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rootCtx, cancel := context.WithCancel(context.Background())

	return &Orchestrator{
		store:        cfg.Store,
		engines:      cfg.Engines,
		conn:         cfg.Conn,
		active:       make(map[string]*RunState),
		pollInterval: pollInterval,
		staleAfter:   staleAfter,
		batchSize:    batchSize,
		lease:        lease,
		sem:          make(chan struct{}, maxConcurrent),
		logger:       telemetry.WithComponent(logger, "orchestrator"),
		tracer:       telemetry.Tracer("orchestrator"),
		now:          time.Now,
		rootCtx:      rootCtx,
		cancel:       cancel,
	}
}

// Start запускает Orchestrator.
//
// Запускает:
//   - Consumer для requests.pending (если есть соединение с RabbitMQ)
//   - Polling горутину для fallback
//
// Отмена ctx равносильна Stop без ожидания.
func (o *Orchestrator) Start(ctx context.Context) error {
	context.AfterFunc(ctx, o.cancel)
	ctx = o.rootCtx

	o.logger.Info("starting orchestrator",
		"poll_interval", o.pollInterval,
		"stale_after", o.staleAfter,
		"batch_size", o.batchSize,
		"max_concurrent", cap(o.sem),
		"mq", o.conn != nil,
	)

	if o.conn != nil {
		consumer := mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    mq.QueueRequestsPending,
			Handler:  o.handleRequestCommand,
			Prefetch: defaultPrefetch,
		})

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("request consumer error", "error", err)
			}
		}()
	}

	// Запускаем polling
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.pollLoop(ctx)
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator.
//
// Активные выполнения отменяются и переводят свои запросы в failed;
// Stop ждёт, пока они это сделают.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...", "active_runs", o.ActiveRunsCount())

	o.cancel()

	// Ждём завершения горутин
	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// Submit запускает действие асинхронно и сразу возвращает управление.
//
// Ошибки выполнения только логируются; результат наблюдается через
// статус запроса в хранилище.
func (o *Orchestrator) Submit(protocol string, action Action) error {
	if _, err := ParseAction(string(action)); err != nil {
		return err
	}

	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	if o.stopped {
		return ErrOrchestratorStopped
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		select {
		case o.sem <- struct{}{}:
		case <-o.rootCtx.Done():
			return
		}
		defer func() { <-o.sem }()

		// Ошибки уже залогированы в Execute
		_ = o.Execute(o.rootCtx, protocol, action)
	}()

	return nil
}

// Trigger реализует Trigger для запуска внутри процесса.
func (o *Orchestrator) Trigger(_ context.Context, protocol string, action Action) error {
	return o.Submit(protocol, action)
}

// Cancel отменяет активное выполнение запроса.
// Запрос переходит в failed с причиной ErrCancelled.
func (o *Orchestrator) Cancel(protocol string) error {
	o.mu.RLock()
	state, ok := o.active[protocol]
	o.mu.RUnlock()

	if !ok {
		return ErrRequestNotActive
	}

	state.cancel(ErrCancelled)
	o.logger.Info("request cancellation requested", "protocol", protocol)
	return nil
}

// acquire регистрирует выполнение. Второе выполнение того же
// запроса получает ErrRequestAlreadyActive.
func (o *Orchestrator) acquire(state *RunState) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.active[state.Protocol()]; exists {
		return ErrRequestAlreadyActive
	}

	o.active[state.Protocol()] = state
	return nil
}

// release удаляет выполнение из активных.
func (o *Orchestrator) release(protocol string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, protocol)
}

// IsActive проверяет, выполняется ли запрос в этом процессе.
func (o *Orchestrator) IsActive(protocol string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, exists := o.active[protocol]
	return exists
}

// ActiveRunsCount возвращает количество активных выполнений.
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

// GetActiveRunStats возвращает статистику по активному выполнению.
func (o *Orchestrator) GetActiveRunStats(protocol string) (RunStats, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	state, exists := o.active[protocol]
	if !exists {
		return RunStats{}, false
	}

	return state.Stats(), true
}
