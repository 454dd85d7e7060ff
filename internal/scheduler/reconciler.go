package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/mq"
	"github.com/shaiso/Kickoff/internal/queue"
	"github.com/shaiso/Kickoff/internal/telemetry"
)

// Значения по умолчанию для Reconciler.
const (
	DefaultWindow       = 48 * time.Hour
	DefaultGrace        = 15 * time.Minute
	DefaultStuckHorizon = 24 * time.Hour
)

// MatchSource — источник матчей для сверки.
type MatchSource interface {
	// UpcomingMatches возвращает матчи с kickoff в (now, now+window].
	UpcomingMatches(ctx context.Context, window time.Duration) ([]domain.UpcomingMatch, error)

	// StuckMatches возвращает матчи в pre-live статусе с kickoff в (since, cutoff].
	StuckMatches(ctx context.Context, since, cutoff time.Time) ([]domain.Match, error)
}

// HealthChecker — проверка брокеров перед постановкой задач (реализуется queue.Router).
type HealthChecker interface {
	EnsureHealthy() error
}

// ReconcileResult — итог одного прохода сверки.
type ReconcileResult struct {
	ScheduledCount int `json:"scheduled_count"`
	MatchesSeen    int `json:"matches_seen"`
	StuckFixed     int `json:"stuck_fixed"`
	Failed         int `json:"failed"`
}

// Reconciler — Catch-Up Reconciler: добирает пропущенные задачи после
// рестартов и деплоев, возобновляет матчи, застрявшие до live.
type Reconciler struct {
	source    MatchSource
	scheduler *Scheduler
	queue     Enqueuer
	health    HealthChecker
	window    time.Duration
	grace     time.Duration
	horizon   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// ReconcilerConfig — конфигурация Reconciler.
type ReconcilerConfig struct {
	Source    MatchSource
	Scheduler *Scheduler
	Queue     Enqueuer

	// Health проверяется один раз перед сверкой. nil — без проверки.
	Health HealthChecker

	// Window — горизонт предстоящих матчей (default: 48h).
	Window time.Duration

	// Grace — через сколько после kickoff pre-live матч считается застрявшим (default: 15m).
	Grace time.Duration

	// StuckHorizon — насколько давние застрявшие матчи ещё возобновлять (default: 24h).
	// Более старые оставляются оператору.
	StuckHorizon time.Duration

	Logger *slog.Logger
	Now    func() time.Time
}

// NewReconciler создаёт новый Reconciler.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	window := cfg.Window
	if window <= 0 {
		window = DefaultWindow
	}

	grace := cfg.Grace
	if grace <= 0 {
		grace = DefaultGrace
	}

	horizon := cfg.StuckHorizon
	if horizon <= 0 {
		horizon = DefaultStuckHorizon
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Reconciler{
		source:    cfg.Source,
		scheduler: cfg.Scheduler,
		queue:     cfg.Queue,
		health:    cfg.Health,
		window:    window,
		grace:     grace,
		horizon:   horizon,
		logger:    logger,
		now:       now,
	}
}

// Reconcile выполняет один проход сверки.
//
// 1. Для каждого матча в окне вызывает ScheduleMatchTasks.
// 2. Для застрявших матчей сразу ставит monitor_live с высоким приоритетом.
//
// Ошибка одного матча не прерывает сверку остальных. Ошибка возвращается,
// если брокеры нездоровы или не удалось прочитать список предстоящих матчей.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult

	if r.health != nil {
		if err := r.health.EnsureHealthy(); err != nil {
			return result, fmt.Errorf("reconcile: %w", err)
		}
	}

	upcoming, err := r.source.UpcomingMatches(ctx, r.window)
	if err != nil {
		return result, fmt.Errorf("list upcoming matches: %w", err)
	}

	for i := range upcoming {
		m := &upcoming[i].Match
		result.MatchesSeen++

		n, err := r.scheduler.ScheduleMatchTasks(ctx, m)
		result.ScheduledCount += n
		if err != nil {
			result.Failed++
			r.logger.Error("failed to schedule match tasks",
				"match_id", m.ID,
				"competition", upcoming[i].Competition,
				"error", err,
			)
		}
	}

	now := r.now()
	cutoff := now.Add(-r.grace)
	stuck, err := r.source.StuckMatches(ctx, cutoff.Add(-r.horizon), cutoff)
	if err != nil {
		r.logger.Error("failed to list stuck matches", "error", err)
	} else {
		for i := range stuck {
			m := &stuck[i]
			if err := r.resumeStuck(ctx, m, now); err != nil {
				result.Failed++
				r.logger.Error("failed to resume stuck match",
					"match_id", m.ID,
					"kickoff_at", m.KickoffAt,
					"error", err,
				)
				continue
			}
			result.StuckFixed++
		}
	}

	telemetry.ReconcileScheduled.Add(float64(result.ScheduledCount))
	telemetry.ReconcileStuckFixed.Add(float64(result.StuckFixed))

	r.logger.Info("reconcile completed",
		"matches_seen", result.MatchesSeen,
		"scheduled", result.ScheduledCount,
		"stuck_fixed", result.StuckFixed,
		"failed", result.Failed,
	)

	return result, nil
}

// resumeStuck ставит monitor_live в обход таблицы смещений.
// Ключ содержит номер минуты, поэтому параллельные сверки в одну минуту
// схлопываются в одну задачу.
func (r *Reconciler) resumeStuck(ctx context.Context, m *domain.Match, now time.Time) error {
	bucket := strconv.FormatInt(now.Unix()/60, 10)
	key := domain.IdempotencyKey(domain.TaskTypeMonitorLive, m.ID, bucket)

	created, err := r.queue.Enqueue(ctx, domain.LaneLive, domain.TaskTypeMonitorLive,
		domain.TaskPayload{MatchID: m.ID, KickoffAt: m.KickoffAt},
		queue.EnqueueOptions{
			IdempotencyKey: key,
			Priority:       mq.MaxPriority,
		},
	)
	if err != nil {
		return err
	}

	if created {
		r.logger.Warn("stuck match force-resumed",
			"match_id", m.ID,
			"kickoff_at", m.KickoffAt,
			"status", m.Status,
			"idempotency_key", key,
		)
	}
	return nil
}
