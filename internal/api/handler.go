package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/promptflow/internal/domain"
	"github.com/shaiso/promptflow/internal/orchestrator"
	"github.com/shaiso/promptflow/internal/repo"
)

// RequestStore — хранилище запросов с точки зрения API.
// Реализуется *repo.Store.
type RequestStore interface {
	CreateRequestTx(ctx context.Context, protocol string, spec *domain.RequestSpec, schedule *domain.Schedule) (*domain.Request, error)
	GetRequestByProtocol(ctx context.Context, protocol string) (*domain.Request, error)
	ListRequests(ctx context.Context, filter repo.RequestFilter) ([]domain.Request, error)
	DeleteRequest(ctx context.Context, protocol string) error
	GetStepsByRequest(ctx context.Context, requestID int64) ([]domain.Step, error)
	GetAllStepResults(ctx context.Context, requestID int64) ([]domain.StepResult, error)
	ListSchedulesByRequest(ctx context.Context, requestID int64) ([]domain.Schedule, error)
}

// EngineCatalog — реестр движков. Реализуется *engines.Registry.
type EngineCatalog interface {
	Names() []string
	Has(name string) bool
}

// Canceller отменяет выполнение, идущее в этом же процессе.
type Canceller interface {
	Cancel(protocol string) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	store     RequestStore
	engines   EngineCatalog
	trigger   orchestrator.Trigger
	canceller Canceller
	apiKey    string
	logger    *slog.Logger
	now       func() time.Time
}

// Config — конфигурация для создания Handler.
type Config struct {
	Store   RequestStore
	Engines EngineCatalog
	Trigger orchestrator.Trigger

	// Canceller — nil, если выполнение идёт в отдельном процессе.
	Canceller Canceller

	// APIKey — ожидаемое значение x-api-key; пусто — проверка выключена.
	APIKey string

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		store:     cfg.Store,
		engines:   cfg.Engines,
		trigger:   cfg.Trigger,
		canceller: cfg.Canceller,
		apiKey:    cfg.APIKey,
		logger:    logger,
		now:       time.Now,
	}
}
