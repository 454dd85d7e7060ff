package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/providers"
	"github.com/shaiso/Kickoff/internal/queue"
	"github.com/shaiso/Kickoff/internal/repo"
)

// Параметры опроса live-счёта.
const (
	LivePollInterval = 2 * time.Minute
	MaxLivePolls     = 100

	livePriority   uint8 = 7
	settlePriority uint8 = 8
)

// LiveFeed — live-счёт матча (реализуется providers.FeedClient).
type LiveFeed interface {
	LiveScore(ctx context.Context, matchID string) (*providers.LiveScore, error)
}

// MatchWriter — изменение статуса и счёта матча (реализуется repo.MatchRepo).
type MatchWriter interface {
	UpdateStatus(ctx context.Context, id string, status domain.MatchStatus) error
	SetFinalScore(ctx context.Context, id string, score domain.Score) error
}

// Enqueuer — постановка задач (реализуется queue.Router).
type Enqueuer interface {
	Enqueue(ctx context.Context, lane domain.Lane, taskType domain.TaskType, payload any, opts queue.EnqueueOptions) (bool, error)
}

// LiveExecutor опрашивает live-счёт матча.
//
// Пока матч идёт (или ещё не начался по данным фида), задача ставит себя
// снова на следующую границу LivePollInterval. Ключ содержит время границы,
// поэтому параллельные цепочки (например, после force-resume) сходятся в одну.
// Когда матч завершён, записывается счёт и ставится settle.
type LiveExecutor struct {
	feed    LiveFeed
	matches MatchReader
	writer  MatchWriter
	data    MatchDataStore
	queue   Enqueuer
	now     func() time.Time
	logger  *slog.Logger
}

// LiveConfig — зависимости LiveExecutor.
type LiveConfig struct {
	Feed    LiveFeed
	Matches MatchReader
	Writer  MatchWriter
	Data    MatchDataStore
	Queue   Enqueuer
	Now     func() time.Time
	Logger  *slog.Logger
}

// NewLiveExecutor создаёт LiveExecutor.
func NewLiveExecutor(cfg LiveConfig) *LiveExecutor {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveExecutor{
		feed:    cfg.Feed,
		matches: cfg.Matches,
		writer:  cfg.Writer,
		data:    cfg.Data,
		queue:   cfg.Queue,
		now:     now,
		logger:  logger,
	}
}

// Execute реализует Executor.
func (e *LiveExecutor) Execute(ctx context.Context, task *Task) (*ExecutionResult, error) {
	match, err := loadMatch(ctx, e.matches, task.Payload.MatchID)
	if err != nil {
		return nil, err
	}

	switch match.Status {
	case domain.MatchStatusPostponed, domain.MatchStatusCancelled:
		return skipped("match " + string(match.Status)), nil
	case domain.MatchStatusFinished:
		if match.HomeScore != nil && match.AwayScore != nil {
			final := domain.Score{Home: *match.HomeScore, Away: *match.AwayScore}
			return e.finish(ctx, match, final, false)
		}
	}

	live, err := e.feed.LiveScore(ctx, match.ID)
	if err != nil {
		return nil, fmt.Errorf("live score: %w", err)
	}

	if e.data != nil {
		if snapshot, err := json.Marshal(live); err == nil {
			if err := e.data.SaveData(ctx, match.ID, repo.DataLive, snapshot, e.now()); err != nil {
				e.logger.Warn("failed to save live snapshot", "match_id", match.ID, "error", err)
			}
		}
	}

	switch live.Status {
	case domain.MatchStatusFinished:
		return e.finish(ctx, match, domain.Score{Home: live.Home, Away: live.Away}, true)

	case domain.MatchStatusPostponed, domain.MatchStatusCancelled:
		if err := e.writer.UpdateStatus(ctx, match.ID, live.Status); err != nil {
			return nil, err
		}
		return &ExecutionResult{Outputs: map[string]any{"status": live.Status, "polling": "stopped"}}, nil

	case domain.MatchStatusLive:
		if match.Status != domain.MatchStatusLive {
			if err := e.writer.UpdateStatus(ctx, match.ID, domain.MatchStatusLive); err != nil {
				return nil, err
			}
		}
	}

	return e.pollAgain(ctx, match, task.Payload.Attempt, live)
}

// pollAgain ставит следующий опрос на границу интервала.
func (e *LiveExecutor) pollAgain(ctx context.Context, match *domain.Match, poll int, live *providers.LiveScore) (*ExecutionResult, error) {
	poll = max(poll, 1)
	if poll >= MaxLivePolls {
		e.logger.Warn("live poll limit reached, stopping",
			"match_id", match.ID,
			"polls", poll,
			"status", live.Status,
		)
		return skipped("live poll limit reached"), nil
	}

	now := e.now()
	next := NextPollAt(now)
	key := domain.IdempotencyKey(domain.TaskTypeMonitorLive, match.ID, strconv.FormatInt(next.Unix(), 10))

	_, err := e.queue.Enqueue(ctx, domain.LaneLive, domain.TaskTypeMonitorLive,
		domain.TaskPayload{MatchID: match.ID, Attempt: poll + 1, KickoffAt: match.KickoffAt},
		queue.EnqueueOptions{
			Delay:          next.Sub(now),
			IdempotencyKey: key,
			Priority:       livePriority,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue next live poll: %w", err)
	}

	return &ExecutionResult{Outputs: map[string]any{
		"status": live.Status,
		"score":  fmt.Sprintf("%d-%d", live.Home, live.Away),
		"minute": live.Minute,
		"poll":   poll,
	}}, nil
}

// finish записывает финальный счёт и ставит settle.
func (e *LiveExecutor) finish(ctx context.Context, match *domain.Match, final domain.Score, write bool) (*ExecutionResult, error) {
	if write {
		if err := e.writer.SetFinalScore(ctx, match.ID, final); err != nil {
			return nil, err
		}
	}

	_, err := e.queue.Enqueue(ctx, domain.LaneSettlement, domain.TaskTypeSettle,
		domain.TaskPayload{MatchID: match.ID, KickoffAt: match.KickoffAt, Final: &final},
		queue.EnqueueOptions{
			IdempotencyKey: domain.IdempotencyKey(domain.TaskTypeSettle, match.ID, ""),
			Priority:       settlePriority,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("enqueue settle: %w", err)
	}

	return &ExecutionResult{Outputs: map[string]any{
		"status": domain.MatchStatusFinished,
		"final":  fmt.Sprintf("%d-%d", final.Home, final.Away),
	}}, nil
}

// NextPollAt возвращает следующую границу LivePollInterval после now.
func NextPollAt(now time.Time) time.Time {
	return now.Truncate(LivePollInterval).Add(LivePollInterval)
}
