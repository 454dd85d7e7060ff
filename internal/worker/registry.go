package worker

import (
	"log/slog"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/orchestrator"
	"github.com/shaiso/Kickoff/internal/repo"
	"github.com/shaiso/Kickoff/internal/settlement"
)

// FeedClient — фид данных и live-счёта (реализуется providers.FeedClient).
type FeedClient interface {
	DataFetcher
	LiveFeed
}

// MatchStore — всё, что executor'ам нужно от хранилища матчей.
type MatchStore interface {
	MatchReader
	MatchWriter
	MatchDataStore
}

// PredictionStore — прогнозы по матчу (реализуется repo.PredictionRepo).
type PredictionStore interface {
	PredictionReader
	PredictionLister
}

// Dependencies — зависимости executor'ов жизненного цикла.
type Dependencies struct {
	Feed        FeedClient
	Matches     MatchStore
	Predictions PredictionStore
	Settlements SettlementStore
	Health      ProviderHealth
	Wave        WaveRunner
	Providers   []orchestrator.Provider
	Queue       Enqueuer
	Scorer      settlement.Scorer
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewLifecycleRegistry регистрирует executor'ы всех типов задач.
func NewLifecycleRegistry(d Dependencies) *Registry {
	r := NewRegistry()

	r.Register(domain.TaskTypeAnalyze, NewFeedExecutor(repo.DataAnalysis, d.Feed, d.Matches, d.Matches, d.Now))
	r.Register(domain.TaskTypeRefreshOdds, NewFeedExecutor(repo.DataOdds, d.Feed, d.Matches, d.Matches, d.Now))
	r.Register(domain.TaskTypeFetchLineups, NewFeedExecutor(repo.DataLineups, d.Feed, d.Matches, d.Matches, d.Now))

	r.Register(domain.TaskTypePredict, NewPredictExecutor(PredictConfig{
		Matches:     d.Matches,
		Data:        d.Matches,
		Predictions: d.Predictions,
		Health:      d.Health,
		Wave:        d.Wave,
		Providers:   d.Providers,
		Now:         d.Now,
		Logger:      d.Logger,
	}))

	r.Register(domain.TaskTypeMonitorLive, NewLiveExecutor(LiveConfig{
		Feed:    d.Feed,
		Matches: d.Matches,
		Writer:  d.Matches,
		Data:    d.Matches,
		Queue:   d.Queue,
		Now:     d.Now,
		Logger:  d.Logger,
	}))

	r.Register(domain.TaskTypeSettle, NewSettleExecutor(d.Matches, d.Predictions, d.Settlements, d.Scorer, d.Now))

	return r
}
