package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/queue"
)

// markerRetention — сколько после kickoff хранится маркер идемпотентности.
const markerRetention = 24 * time.Hour

// Enqueuer — постановка и отмена задач (реализуется queue.Router).
type Enqueuer interface {
	Enqueue(ctx context.Context, lane domain.Lane, taskType domain.TaskType, payload any, opts queue.EnqueueOptions) (bool, error)
	Cancel(ctx context.Context, lane domain.Lane, key string) (bool, error)
}

// Scheduler — планировщик задач жизненного цикла матча.
type Scheduler struct {
	queue  Enqueuer
	logger *slog.Logger
	now    func() time.Time
}

// Config — конфигурация Scheduler.
type Config struct {
	Queue  Enqueuer
	Logger *slog.Logger

	// Now — источник времени (для тестов).
	Now func() time.Time
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Scheduler{
		queue:  cfg.Queue,
		logger: logger,
		now:    now,
	}
}

// ScheduleMatchTasks ставит в очередь задачи жизненного цикла матча.
// Возвращает число новых задач; уже поставленные задачи не дублируются.
//
// Безопасно вызывать повторно: так работает Catch-Up Reconciler.
// Ошибка постановки одной задачи не мешает поставить остальные.
func (s *Scheduler) ScheduleMatchTasks(ctx context.Context, match *domain.Match) (int, error) {
	now := s.now()

	tasks := Plan(match, now)
	if len(tasks) == 0 {
		s.logger.Debug("match already started, nothing to schedule",
			"match_id", match.ID,
			"kickoff_at", match.KickoffAt,
			"status", match.Status,
		)
		return 0, nil
	}

	created := 0
	late := 0
	var errs []error

	for i := range tasks {
		task := &tasks[i]

		delay := task.Delay(now)
		if delay <= 0 {
			late++
		}

		ok, err := s.queue.Enqueue(ctx, task.Lane, task.Type, task.Payload, queue.EnqueueOptions{
			Delay:          delay,
			IdempotencyKey: task.IdempotencyKey,
			Priority:       task.Priority,
			MarkerTTL:      match.KickoffAt.Sub(task.FireAt) + markerRetention,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s: %w", task.IdempotencyKey, err))
			continue
		}
		if ok {
			created++
		}
	}

	s.logger.Info("match tasks scheduled",
		"match_id", match.ID,
		"kickoff_at", match.KickoffAt,
		"planned", len(tasks),
		"created", created,
		"late", late,
		"failed", len(errs),
	)

	return created, errors.Join(errs...)
}

// CancelMatchTasks отменяет все ожидающие задачи матча.
// Уже запущенные и несуществующие задачи пропускаются без ошибки.
// Возвращает число отменённых задач.
func (s *Scheduler) CancelMatchTasks(ctx context.Context, matchID string) (int, error) {
	cancelled := 0
	var errs []error

	for _, o := range OffsetTable {
		key := o.Key(matchID)
		removed, err := s.queue.Cancel(ctx, o.Type.Lane(), key)
		if err != nil {
			errs = append(errs, fmt.Errorf("cancel %s: %w", key, err))
			continue
		}
		if removed {
			cancelled++
		}
	}

	s.logger.Info("match tasks cancelled",
		"match_id", matchID,
		"cancelled", cancelled,
		"failed", len(errs),
	)

	return cancelled, errors.Join(errs...)
}
