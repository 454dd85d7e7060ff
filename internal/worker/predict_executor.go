package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/orchestrator"
	"github.com/shaiso/Kickoff/internal/repo"
)

// WaveRunner — запуск волны прогнозов (реализуется orchestrator.Orchestrator).
type WaveRunner interface {
	RunWaveWithOptions(ctx context.Context, matches []domain.Match, providers []orchestrator.Provider, opts orchestrator.WaveOptions) (*orchestrator.WaveSummary, error)
}

// ProviderHealth — проверка, не отключён ли провайдер (реализуется resilience.Breaker).
type ProviderHealth interface {
	FilterEnabled(ctx context.Context, providers []string) []string
}

// PredictionReader — существующие прогнозы (реализуется repo.PredictionRepo).
type PredictionReader interface {
	ExistingPredictions(ctx context.Context, matchIDs []string) (map[string]map[string]bool, error)
}

// PredictExecutor выполняет одну попытку прогноза матча.
//
// Политика попыток:
//   - попытка 1 выполняется всегда;
//   - попытка 2 (SkipIfPredicted) пропускается, если матч уже предсказан
//     всеми включёнными провайдерами или ещё нет составов;
//   - попытка 3 (Force) выполняется без составов и запрашивает даже пары,
//     исчерпавшие лимит попыток.
type PredictExecutor struct {
	matches     MatchReader
	data        MatchDataStore
	predictions PredictionReader
	health      ProviderHealth
	wave        WaveRunner
	providers   []orchestrator.Provider
	now         func() time.Time
	logger      *slog.Logger
}

// PredictConfig — зависимости PredictExecutor.
type PredictConfig struct {
	Matches     MatchReader
	Data        MatchDataStore
	Predictions PredictionReader
	Health      ProviderHealth
	Wave        WaveRunner
	Providers   []orchestrator.Provider
	Now         func() time.Time
	Logger      *slog.Logger
}

// NewPredictExecutor создаёт PredictExecutor.
func NewPredictExecutor(cfg PredictConfig) *PredictExecutor {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PredictExecutor{
		matches:     cfg.Matches,
		data:        cfg.Data,
		predictions: cfg.Predictions,
		health:      cfg.Health,
		wave:        cfg.Wave,
		providers:   cfg.Providers,
		now:         now,
		logger:      logger,
	}
}

// Execute реализует Executor.
func (e *PredictExecutor) Execute(ctx context.Context, task *Task) (*ExecutionResult, error) {
	match, err := loadMatch(ctx, e.matches, task.Payload.MatchID)
	if err != nil {
		return nil, err
	}

	if match.Status.IsTerminal() {
		return skipped("match " + string(match.Status)), nil
	}
	if match.HasStarted(e.now()) {
		return skipped("match already started"), nil
	}

	enabled := e.enabledProviders(ctx)
	if len(enabled) == 0 {
		return skipped("no enabled providers"), nil
	}

	if task.Payload.SkipIfPredicted && !task.Payload.Force {
		reason, err := e.skipReason(ctx, match.ID, enabled)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			return skipped(reason), nil
		}
	}

	summary, err := e.wave.RunWaveWithOptions(ctx, []domain.Match{*match}, enabled, orchestrator.WaveOptions{
		IgnoreAttemptLimit: task.Payload.Force,
	})
	if err != nil {
		return nil, fmt.Errorf("prediction wave: %w", err)
	}

	return &ExecutionResult{Outputs: map[string]any{
		"prediction_attempt": task.Payload.Attempt,
		"providers":          len(enabled),
		"succeeded":          summary.Succeeded,
		"failed":             summary.Failed,
		"gave_up":            summary.GaveUp,
		"skipped":            summary.Skipped,
	}}, nil
}

// skipReason возвращает причину пропуска второй попытки или "".
func (e *PredictExecutor) skipReason(ctx context.Context, matchID string, enabled []orchestrator.Provider) (string, error) {
	existing, err := e.predictions.ExistingPredictions(ctx, []string{matchID})
	if err != nil {
		return "", fmt.Errorf("load existing predictions: %w", err)
	}

	predicted := existing[matchID]
	all := true
	for _, p := range enabled {
		if !predicted[p.Name()] {
			all = false
			break
		}
	}
	if all {
		return "already predicted by all enabled providers", nil
	}

	hasLineups, err := e.data.HasData(ctx, matchID, repo.DataLineups)
	if err != nil {
		return "", err
	}
	if !hasLineups {
		return "lineups not available, deferring to forced attempt", nil
	}
	return "", nil
}

// enabledProviders оставляет провайдеров, не отключённых circuit breaker'ом.
func (e *PredictExecutor) enabledProviders(ctx context.Context) []orchestrator.Provider {
	if e.health == nil {
		return e.providers
	}

	names := make([]string, len(e.providers))
	for i, p := range e.providers {
		names[i] = p.Name()
	}

	keep := make(map[string]bool, len(names))
	for _, name := range e.health.FilterEnabled(ctx, names) {
		keep[name] = true
	}

	enabled := make([]orchestrator.Provider, 0, len(e.providers))
	for _, p := range e.providers {
		if !keep[p.Name()] {
			e.logger.Debug("provider disabled, skipping", "provider", p.Name())
			continue
		}
		enabled = append(enabled, p)
	}
	return enabled
}
