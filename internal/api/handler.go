package api

import (
	"context"
	"log/slog"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/scheduler"
)

// DeadLetters — Dead Letter Archive (реализуется deadletter.Archive).
type DeadLetters interface {
	List(ctx context.Context, limit, offset int) ([]domain.DeadLetterEntry, error)
	Count(ctx context.Context) (int64, error)
	Delete(ctx context.Context, lane domain.Lane, taskID string) error
	Clear(ctx context.Context) (int, error)
}

// ProviderHealth — состояние провайдеров (реализуется resilience.Breaker).
type ProviderHealth interface {
	List(ctx context.Context) ([]domain.ProviderHealth, error)
	ListDisabled(ctx context.Context) ([]domain.ProviderHealth, error)
}

// MatchScheduler — ручное планирование и отмена (реализуется scheduler.Scheduler).
type MatchScheduler interface {
	ScheduleMatchTasks(ctx context.Context, match *domain.Match) (int, error)
	CancelMatchTasks(ctx context.Context, matchID string) (int, error)
}

// MatchReader — чтение матча (реализуется repo.MatchRepo).
type MatchReader interface {
	GetByID(ctx context.Context, id string) (*domain.Match, error)
}

// Reconciler — внеплановая сверка (реализуется scheduler.Reconciler).
type Reconciler interface {
	Reconcile(ctx context.Context) (scheduler.ReconcileResult, error)
}

// QueueHealth — проверка брокера перед постановкой (реализуется queue.Router).
type QueueHealth interface {
	EnsureHealthy() error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	deadLetters DeadLetters
	providers   ProviderHealth
	scheduler   MatchScheduler
	matches     MatchReader
	reconciler  Reconciler
	queue       QueueHealth
	logger      *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	DeadLetters DeadLetters
	Providers   ProviderHealth
	Scheduler   MatchScheduler
	Matches     MatchReader
	Reconciler  Reconciler
	Queue       QueueHealth
	Logger      *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		deadLetters: cfg.DeadLetters,
		providers:   cfg.Providers,
		scheduler:   cfg.Scheduler,
		matches:     cfg.Matches,
		reconciler:  cfg.Reconciler,
		queue:       cfg.Queue,
		logger:      logger,
	}
}
