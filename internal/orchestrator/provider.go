package orchestrator

import (
	"context"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/resilience"
)

// Provider — провайдер прогнозов.
type Provider interface {
	// Name возвращает уникальное имя провайдера.
	Name() string

	// PredictBatch запрашивает прогнозы для батча матчей.
	// Ошибка означает сбой вызова; частичный ответ возвращается в BatchResult.
	PredictBatch(ctx context.Context, req BatchRequest) (*BatchResult, error)
}

// Pacer — провайдер с минимальным интервалом между вызовами.
type Pacer interface {
	CallInterval() time.Duration
}

// BatchRequest — запрос прогноза для батча матчей.
type BatchRequest struct {
	Matches []domain.Match `json:"matches"`
}

// MatchIDs возвращает идентификаторы матчей запроса.
func (r BatchRequest) MatchIDs() []string {
	ids := make([]string, len(r.Matches))
	for i := range r.Matches {
		ids[i] = r.Matches[i].ID
	}
	return ids
}

// Usage — расход на один вызов провайдера.
type Usage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// BatchResult — ответ провайдера на батч.
type BatchResult struct {
	// Predictions — прогнозы по ID матча.
	Predictions map[string]domain.Score `json:"predictions"`

	// Success — провайдер считает вызов успешным.
	Success bool `json:"success"`

	// Error — текст ошибки провайдера.
	Error string `json:"error,omitempty"`

	// ProcessingTime — длительность вызова.
	ProcessingTime time.Duration `json:"processing_time"`

	// FailedMatchIDs — матчи, которые провайдер явно не смог обработать.
	FailedMatchIDs []string `json:"failed_match_ids,omitempty"`

	// Usage — расход токенов и стоимость.
	Usage Usage `json:"usage"`
}

// PredictionStore — хранилище прогнозов.
type PredictionStore interface {
	// ExistingPredictions возвращает провайдеров, уже давших прогноз, по ID матча.
	ExistingPredictions(ctx context.Context, matchIDs []string) (map[string]map[string]bool, error)

	// SavePredictions сохраняет прогнозы (повторный прогноз пары не дублируется).
	SavePredictions(ctx context.Context, predictions []domain.Prediction) error
}

// AttemptStore — учёт неудачных попыток пар (матч, провайдер).
type AttemptStore interface {
	ListAttempts(ctx context.Context, matchIDs []string) ([]domain.PredictionAttempt, error)
	RecordFailedAttempt(ctx context.Context, matchID, provider string, kind resilience.ErrorKind, at time.Time) error
	ClearAttempts(ctx context.Context, matchID, provider string) error
}

// UsageRecorder — учёт расхода на вызовы провайдеров.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, rec domain.UsageRecord) error
}

// HealthTracker — circuit breaker провайдеров (реализуется resilience.Breaker).
type HealthTracker interface {
	IsEnabled(ctx context.Context, provider string) (bool, error)
	RecordSuccess(ctx context.Context, provider string) error
	RecordFailure(ctx context.Context, provider string, kind resilience.ErrorKind, reason string) (resilience.FailureOutcome, error)
}
