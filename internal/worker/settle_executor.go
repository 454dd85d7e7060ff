package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/repo"
	"github.com/shaiso/Kickoff/internal/settlement"
)

// PredictionLister — прогнозы по матчу (реализуется repo.PredictionRepo).
type PredictionLister interface {
	ListByMatch(ctx context.Context, matchID string) ([]domain.Prediction, error)
}

// SettlementStore — сохранение итога (реализуется repo.SettlementRepo).
// Повторное сохранение возвращает repo.ErrAlreadySettled.
type SettlementStore interface {
	IsSettled(ctx context.Context, matchID string) (bool, error)
	Save(ctx context.Context, s domain.Settlement) error
}

// SettleExecutor считает очки по завершённому матчу ровно один раз.
type SettleExecutor struct {
	matches     MatchReader
	predictions PredictionLister
	store       SettlementStore
	scorer      settlement.Scorer
	now         func() time.Time
}

// NewSettleExecutor создаёт SettleExecutor. nil scorer — DefaultScorer.
func NewSettleExecutor(matches MatchReader, predictions PredictionLister, store SettlementStore, scorer settlement.Scorer, now func() time.Time) *SettleExecutor {
	if scorer == nil {
		scorer = settlement.DefaultScorer{}
	}
	if now == nil {
		now = time.Now
	}
	return &SettleExecutor{matches: matches, predictions: predictions, store: store, scorer: scorer, now: now}
}

// Execute реализует Executor.
func (e *SettleExecutor) Execute(ctx context.Context, task *Task) (*ExecutionResult, error) {
	matchID := task.Payload.MatchID

	settled, err := e.store.IsSettled(ctx, matchID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("check settled: %w", err)
	}
	if settled {
		return skipped("already settled"), nil
	}

	final := task.Payload.Final
	if final == nil {
		match, err := loadMatch(ctx, e.matches, matchID)
		if err != nil {
			return nil, err
		}
		if match.HomeScore == nil || match.AwayScore == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoFinalScore, matchID)
		}
		final = &domain.Score{Home: *match.HomeScore, Away: *match.AwayScore}
	}

	predictions, err := e.predictions.ListByMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}

	result := settlement.Settle(e.scorer, matchID, *final, predictions)
	result.SettledAt = e.now()

	if err := e.store.Save(ctx, result); err != nil {
		if errors.Is(err, repo.ErrAlreadySettled) {
			return skipped("already settled"), nil
		}
		return nil, err
	}

	return &ExecutionResult{Outputs: map[string]any{
		"predictions": len(predictions),
		"quota_total": result.Quotas.Total,
	}}, nil
}
