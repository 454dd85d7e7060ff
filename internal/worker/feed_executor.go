package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/repo"
)

// MatchReader — чтение матча (реализуется repo.MatchRepo).
type MatchReader interface {
	GetByID(ctx context.Context, id string) (*domain.Match, error)
}

// MatchDataStore — загруженные данные матча (реализуется repo.MatchRepo).
type MatchDataStore interface {
	SaveData(ctx context.Context, matchID, kind string, payload json.RawMessage, fetchedAt time.Time) error
	HasData(ctx context.Context, matchID, kind string) (bool, error)
}

// DataFetcher — upstream-фид данных матча (реализуется providers.FeedClient).
type DataFetcher interface {
	Fetch(ctx context.Context, matchID, kind string) (json.RawMessage, error)
}

// FeedExecutor загружает данные матча вида kind из фида и сохраняет их.
// Обслуживает analyze, refresh_odds и fetch_lineups.
type FeedExecutor struct {
	kind    string
	feed    DataFetcher
	matches MatchReader
	store   MatchDataStore
	now     func() time.Time
}

// NewFeedExecutor создаёт FeedExecutor.
func NewFeedExecutor(kind string, feed DataFetcher, matches MatchReader, store MatchDataStore, now func() time.Time) *FeedExecutor {
	if now == nil {
		now = time.Now
	}
	return &FeedExecutor{kind: kind, feed: feed, matches: matches, store: store, now: now}
}

// Execute реализует Executor.
func (e *FeedExecutor) Execute(ctx context.Context, task *Task) (*ExecutionResult, error) {
	match, err := loadMatch(ctx, e.matches, task.Payload.MatchID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if match.Status.IsTerminal() {
		return skipped("match " + string(match.Status)), nil
	}
	if match.HasStarted(now) {
		return skipped("match already started"), nil
	}

	data, err := e.feed.Fetch(ctx, match.ID, e.kind)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", e.kind, err)
	}
	if data == nil {
		return skipped(e.kind + " not available yet"), nil
	}

	if err := e.store.SaveData(ctx, match.ID, e.kind, data, now); err != nil {
		return nil, err
	}

	return &ExecutionResult{Outputs: map[string]any{"kind": e.kind, "bytes": len(data)}}, nil
}

// loadMatch читает матч и переводит repo.ErrNotFound в ErrMatchNotFound.
func loadMatch(ctx context.Context, matches MatchReader, id string) (*domain.Match, error) {
	match, err := matches.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("load match %s: %w", id, err)
	}
	return match, nil
}
