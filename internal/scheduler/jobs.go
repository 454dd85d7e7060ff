package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/orchestrator"
)

// Периодичность фоновых задач scheduler-процесса по умолчанию.
const (
	DefaultReconcileEvery = 10 * time.Minute
	DefaultRecoverEvery   = 5 * time.Minute
	DefaultWaveEvery      = 15 * time.Minute
	DefaultWaveLookahead  = 3 * time.Hour
	DefaultPruneHourUTC   = 4
	DefaultAttemptMaxAge  = 7 * 24 * time.Hour
)

// ProviderRecoverer — восстановление отключённых провайдеров (реализуется resilience.Breaker).
type ProviderRecoverer interface {
	Recover(ctx context.Context) ([]domain.ProviderHealth, error)
}

// UpcomingSource — ближайшие матчи (реализуется repo.MatchRepo).
type UpcomingSource interface {
	UpcomingMatches(ctx context.Context, window time.Duration) ([]domain.UpcomingMatch, error)
}

// WaveRunner — волна прогнозов (реализуется orchestrator.Orchestrator).
type WaveRunner interface {
	RunWave(ctx context.Context, matches []domain.Match, providers []orchestrator.Provider) (*orchestrator.WaveSummary, error)
}

// AttemptPruner — очистка старых неудачных попыток (реализуется repo.PredictionRepo).
type AttemptPruner interface {
	PruneAttempts(ctx context.Context, olderThan time.Time) (int64, error)
}

// ReconcileJob сверяет расписание при старте и затем каждые every.
func ReconcileJob(r *Reconciler, every time.Duration) Job {
	if every <= 0 {
		every = DefaultReconcileEvery
	}
	return Job{
		Name:       "reconcile",
		Every:      Every(every),
		RunOnStart: true,
		Timeout:    every,
		Run: func(ctx context.Context) error {
			_, err := r.Reconcile(ctx)
			return err
		},
	}
}

// RecoverJob возвращает в работу провайдеров, у которых прошёл cooldown.
func RecoverJob(b ProviderRecoverer, logger *slog.Logger) Job {
	if logger == nil {
		logger = slog.Default()
	}
	return Job{
		Name:    "provider_recover",
		Every:   Every(DefaultRecoverEvery),
		Timeout: time.Minute,
		Run: func(ctx context.Context) error {
			recovered, err := b.Recover(ctx)
			if err != nil {
				return fmt.Errorf("recover providers: %w", err)
			}
			for _, h := range recovered {
				logger.Info("provider recovered", "provider", h.Provider, "consecutive_failures", h.ConsecutiveFailures)
			}
			return nil
		},
	}
}

// WaveJobConfig — параметры волны по матчам без прогнозов.
type WaveJobConfig struct {
	Matches   UpcomingSource
	Wave      WaveRunner
	Providers []orchestrator.Provider

	// Lookahead — горизонт матчей (default: 3h).
	Lookahead time.Duration

	// Every — периодичность (default: 15m).
	Every time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// WaveJob запускает волну прогнозов по ближайшим pre-live матчам.
// Уже предсказанные пары и исчерпавшие попытки оркестратор пропускает сам.
func WaveJob(cfg WaveJobConfig) Job {
	lookahead := cfg.Lookahead
	if lookahead <= 0 {
		lookahead = DefaultWaveLookahead
	}
	every := cfg.Every
	if every <= 0 {
		every = DefaultWaveEvery
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return Job{
		Name:    "prediction_wave",
		Every:   Every(every),
		Timeout: every,
		Run: func(ctx context.Context) error {
			if len(cfg.Providers) == 0 {
				return nil
			}

			upcoming, err := cfg.Matches.UpcomingMatches(ctx, lookahead)
			if err != nil {
				return fmt.Errorf("list upcoming matches: %w", err)
			}

			t := now()
			matches := make([]domain.Match, 0, len(upcoming))
			for _, u := range upcoming {
				if u.Match.Status.IsPreLive() && !u.Match.HasStarted(t) {
					matches = append(matches, u.Match)
				}
			}
			if len(matches) == 0 {
				return nil
			}

			summary, err := cfg.Wave.RunWave(ctx, matches, cfg.Providers)
			if err != nil {
				return fmt.Errorf("prediction wave: %w", err)
			}

			logger.Info("prediction wave completed",
				"matches", summary.Matches,
				"succeeded", summary.Succeeded,
				"failed", summary.Failed,
				"gave_up", summary.GaveUp,
				"budget_exhausted", summary.BudgetExhausted,
			)
			return nil
		},
	}
}

// PruneJob раз в сутки удаляет попытки старше maxAge.
func PruneJob(p AttemptPruner, maxAge time.Duration, logger *slog.Logger, now func() time.Time) Job {
	if maxAge <= 0 {
		maxAge = DefaultAttemptMaxAge
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}

	return Job{
		Name:    "attempt_prune",
		Every:   DailyAt(DefaultPruneHourUTC, 0, time.UTC),
		Timeout: 5 * time.Minute,
		Run: func(ctx context.Context) error {
			removed, err := p.PruneAttempts(ctx, now().Add(-maxAge))
			if err != nil {
				return fmt.Errorf("prune attempts: %w", err)
			}
			if removed > 0 {
				logger.Info("prediction attempts pruned", "removed", removed)
			}
			return nil
		},
	}
}
