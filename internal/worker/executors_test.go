package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/orchestrator"
	"github.com/shaiso/Kickoff/internal/providers"
	"github.com/shaiso/Kickoff/internal/queue"
	"github.com/shaiso/Kickoff/internal/repo"
)

// --- fakes ---

type fakeMatches struct {
	mu       sync.Mutex
	matches  map[string]*domain.Match
	data     map[string]json.RawMessage
	statuses map[string]domain.MatchStatus
	finals   map[string]domain.Score
}

func newFakeMatches(ms ...domain.Match) *fakeMatches {
	f := &fakeMatches{
		matches:  make(map[string]*domain.Match),
		data:     make(map[string]json.RawMessage),
		statuses: make(map[string]domain.MatchStatus),
		finals:   make(map[string]domain.Score),
	}
	for i := range ms {
		m := ms[i]
		f.matches[m.ID] = &m
	}
	return f
}

func (f *fakeMatches) GetByID(_ context.Context, id string) (*domain.Match, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.matches[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	copied := *m
	return &copied, nil
}

func (f *fakeMatches) UpdateStatus(_ context.Context, id string, status domain.MatchStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	return nil
}

func (f *fakeMatches) SetFinalScore(_ context.Context, id string, score domain.Score) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finals[id] = score
	return nil
}

func (f *fakeMatches) SaveData(_ context.Context, matchID, kind string, payload json.RawMessage, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[matchID+"/"+kind] = payload
	return nil
}

func (f *fakeMatches) HasData(_ context.Context, matchID, kind string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[matchID+"/"+kind]
	return ok, nil
}

type fakeFeed struct {
	data map[string]json.RawMessage
	live *providers.LiveScore
	err  error
}

func (f *fakeFeed) Fetch(_ context.Context, matchID, kind string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data[matchID+"/"+kind], nil
}

func (f *fakeFeed) LiveScore(_ context.Context, _ string) (*providers.LiveScore, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.live, nil
}

type enqueued struct {
	lane     domain.Lane
	taskType domain.TaskType
	payload  domain.TaskPayload
	opts     queue.EnqueueOptions
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []enqueued
	keys  map[string]bool
}

func (q *fakeQueue) Enqueue(_ context.Context, lane domain.Lane, taskType domain.TaskType, payload any, opts queue.EnqueueOptions) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.keys == nil {
		q.keys = make(map[string]bool)
	}
	if q.keys[opts.IdempotencyKey] {
		return false, nil
	}
	q.keys[opts.IdempotencyKey] = true
	q.tasks = append(q.tasks, enqueued{lane: lane, taskType: taskType, payload: payload.(domain.TaskPayload), opts: opts})
	return true, nil
}

type fakeWave struct {
	calls     int
	matches   []domain.Match
	providers []string
	opts      orchestrator.WaveOptions
	err       error
}

func (w *fakeWave) RunWaveWithOptions(_ context.Context, matches []domain.Match, ps []orchestrator.Provider, opts orchestrator.WaveOptions) (*orchestrator.WaveSummary, error) {
	w.calls++
	w.matches = matches
	w.opts = opts
	w.providers = nil
	for _, p := range ps {
		w.providers = append(w.providers, p.Name())
	}
	if w.err != nil {
		return nil, w.err
	}
	return &orchestrator.WaveSummary{Matches: len(matches), Attempted: len(ps), Succeeded: len(ps)}, nil
}

type namedProvider string

func (p namedProvider) Name() string { return string(p) }

func (p namedProvider) PredictBatch(context.Context, orchestrator.BatchRequest) (*orchestrator.BatchResult, error) {
	return nil, errors.New("not used")
}

type fakeHealth map[string]bool

func (h fakeHealth) FilterEnabled(_ context.Context, providers []string) []string {
	var enabled []string
	for _, p := range providers {
		if !h[p] {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

type fakePredictions struct {
	existing map[string]map[string]bool
	list     []domain.Prediction
}

func (p *fakePredictions) ExistingPredictions(_ context.Context, _ []string) (map[string]map[string]bool, error) {
	return p.existing, nil
}

func (p *fakePredictions) ListByMatch(_ context.Context, _ string) ([]domain.Prediction, error) {
	return p.list, nil
}

type fakeSettlements struct {
	saved []domain.Settlement
	// stale — IsSettled не видит сохранённое (гонка двух воркеров)
	stale bool
}

func (s *fakeSettlements) IsSettled(_ context.Context, matchID string) (bool, error) {
	if s.stale {
		return false, nil
	}
	for _, prev := range s.saved {
		if prev.MatchID == matchID {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeSettlements) Save(_ context.Context, st domain.Settlement) error {
	for _, prev := range s.saved {
		if prev.MatchID == st.MatchID {
			return repo.ErrAlreadySettled
		}
	}
	s.saved = append(s.saved, st)
	return nil
}

func upcomingMatch() domain.Match {
	return domain.Match{
		ID:        "m1",
		HomeTeam:  "Arsenal",
		AwayTeam:  "Chelsea",
		KickoffAt: testNow.Add(90 * time.Minute),
		Status:    domain.MatchStatusScheduled,
	}
}

func fixedNow() time.Time { return testNow }

// --- FeedExecutor ---

func TestFeedExecutor_SavesData(t *testing.T) {
	matches := newFakeMatches(upcomingMatch())
	feed := &fakeFeed{data: map[string]json.RawMessage{"m1/odds": json.RawMessage(`{"home":1.9}`)}}
	exec := NewFeedExecutor(repo.DataOdds, feed, matches, matches, fixedNow)

	res, err := exec.Execute(context.Background(), &Task{Payload: domain.TaskPayload{MatchID: "m1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped {
		t.Fatalf("unexpected skip: %s", res.Reason)
	}
	if string(matches.data["m1/odds"]) != `{"home":1.9}` {
		t.Errorf("odds not saved: %s", matches.data["m1/odds"])
	}
}

func TestFeedExecutor_Skips(t *testing.T) {
	started := upcomingMatch()
	started.KickoffAt = testNow.Add(-time.Minute)

	cancelled := upcomingMatch()
	cancelled.Status = domain.MatchStatusCancelled

	tests := []struct {
		name  string
		match domain.Match
		data  map[string]json.RawMessage
	}{
		{"match started", started, map[string]json.RawMessage{"m1/lineups": json.RawMessage(`{}`)}},
		{"match cancelled", cancelled, map[string]json.RawMessage{"m1/lineups": json.RawMessage(`{}`)}},
		{"no data yet", upcomingMatch(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			matches := newFakeMatches(tt.match)
			exec := NewFeedExecutor(repo.DataLineups, &fakeFeed{data: tt.data}, matches, matches, fixedNow)

			res, err := exec.Execute(context.Background(), &Task{Payload: domain.TaskPayload{MatchID: "m1"}})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !res.Skipped {
				t.Error("expected skip")
			}
			if len(matches.data) != 0 {
				t.Error("nothing should be saved")
			}
		})
	}
}

func TestFeedExecutor_Errors(t *testing.T) {
	matches := newFakeMatches(upcomingMatch())

	exec := NewFeedExecutor(repo.DataOdds, &fakeFeed{err: errors.New("connection refused")}, matches, matches, fixedNow)
	if _, err := exec.Execute(context.Background(), &Task{Payload: domain.TaskPayload{MatchID: "m1"}}); err == nil {
		t.Error("feed failure should be returned for retry")
	}

	_, err := exec.Execute(context.Background(), &Task{Payload: domain.TaskPayload{MatchID: "ghost"}})
	if !errors.Is(err, ErrMatchNotFound) {
		t.Errorf("expected ErrMatchNotFound, got %v", err)
	}
}

// --- PredictExecutor ---

type predictEnv struct {
	matches     *fakeMatches
	predictions *fakePredictions
	wave        *fakeWave
	health      fakeHealth
}

func newPredictEnv() *predictEnv {
	return &predictEnv{
		matches:     newFakeMatches(upcomingMatch()),
		predictions: &fakePredictions{existing: map[string]map[string]bool{}},
		wave:        &fakeWave{},
		health:      fakeHealth{},
	}
}

func (e *predictEnv) executor() *PredictExecutor {
	return NewPredictExecutor(PredictConfig{
		Matches:     e.matches,
		Data:        e.matches,
		Predictions: e.predictions,
		Health:      e.health,
		Wave:        e.wave,
		Providers:   []orchestrator.Provider{namedProvider("alpha"), namedProvider("beta"), namedProvider("gamma")},
		Now:         fixedNow,
	})
}

func predictTask(attempt int) *Task {
	p := domain.TaskPayload{MatchID: "m1", Attempt: attempt}
	switch attempt {
	case 2:
		p.SkipIfPredicted = true
	case 3:
		p.Force = true
	}
	return &Task{Type: domain.TaskTypePredict, Payload: p}
}

func TestPredictExecutor_FirstAttemptAlwaysRuns(t *testing.T) {
	env := newPredictEnv()
	env.predictions.existing["m1"] = map[string]bool{"alpha": true, "beta": true, "gamma": true}

	res, err := env.executor().Execute(context.Background(), predictTask(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped || env.wave.calls != 1 {
		t.Fatalf("attempt 1 must run the wave, skipped=%v calls=%d", res.Skipped, env.wave.calls)
	}
	if env.wave.opts.IgnoreAttemptLimit {
		t.Error("attempt 1 must respect the attempt limit")
	}
	if len(env.wave.matches) != 1 || env.wave.matches[0].ID != "m1" {
		t.Errorf("wave should cover only the task's match, got %v", env.wave.matches)
	}
}

func TestPredictExecutor_SecondAttemptPolicy(t *testing.T) {
	tests := []struct {
		name      string
		predicted map[string]bool
		lineups   bool
		wantRun   bool
	}{
		{"all predicted", map[string]bool{"alpha": true, "beta": true, "gamma": true}, true, false},
		{"missing lineups", map[string]bool{"alpha": true}, false, false},
		{"lineups present, gaps remain", map[string]bool{"alpha": true}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newPredictEnv()
			env.predictions.existing["m1"] = tt.predicted
			if tt.lineups {
				env.matches.data["m1/"+repo.DataLineups] = json.RawMessage(`{}`)
			}

			res, err := env.executor().Execute(context.Background(), predictTask(2))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if ran := env.wave.calls == 1; ran != tt.wantRun {
				t.Errorf("wave ran = %v, want %v (reason %q)", ran, tt.wantRun, res.Reason)
			}
			if res.Skipped == tt.wantRun {
				t.Errorf("skipped = %v, want %v", res.Skipped, !tt.wantRun)
			}
		})
	}
}

func TestPredictExecutor_SecondAttemptIgnoresDisabledProviders(t *testing.T) {
	env := newPredictEnv()
	env.health["gamma"] = true
	env.predictions.existing["m1"] = map[string]bool{"alpha": true, "beta": true}

	res, err := env.executor().Execute(context.Background(), predictTask(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Skipped {
		t.Error("match predicted by every enabled provider should be skipped")
	}
}

func TestPredictExecutor_ForcedAttempt(t *testing.T) {
	env := newPredictEnv()
	env.health["beta"] = true

	res, err := env.executor().Execute(context.Background(), predictTask(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped {
		t.Fatalf("forced attempt must run without lineups, got skip %q", res.Reason)
	}
	if !env.wave.opts.IgnoreAttemptLimit {
		t.Error("forced attempt should ignore the attempt limit")
	}
	if len(env.wave.providers) != 2 || env.wave.providers[0] != "alpha" || env.wave.providers[1] != "gamma" {
		t.Errorf("disabled provider must be excluded, got %v", env.wave.providers)
	}
}

func TestPredictExecutor_Skips(t *testing.T) {
	t.Run("match started", func(t *testing.T) {
		env := newPredictEnv()
		env.matches.matches["m1"].KickoffAt = testNow.Add(-time.Minute)

		res, err := env.executor().Execute(context.Background(), predictTask(3))
		if err != nil || !res.Skipped || env.wave.calls != 0 {
			t.Errorf("started match must be skipped: res=%+v err=%v", res, err)
		}
	})

	t.Run("all providers disabled", func(t *testing.T) {
		env := newPredictEnv()
		env.health["alpha"], env.health["beta"], env.health["gamma"] = true, true, true

		res, err := env.executor().Execute(context.Background(), predictTask(1))
		if err != nil || !res.Skipped || env.wave.calls != 0 {
			t.Errorf("expected skip without providers: res=%+v err=%v", res, err)
		}
	})
}

func TestPredictExecutor_WaveErrorReturned(t *testing.T) {
	env := newPredictEnv()
	env.wave.err = errors.New("load predictions: connection reset")

	if _, err := env.executor().Execute(context.Background(), predictTask(1)); err == nil {
		t.Error("wave failure should be returned for retry")
	}
}

// --- LiveExecutor ---

func liveMatch() domain.Match {
	m := upcomingMatch()
	m.KickoffAt = testNow.Add(-30 * time.Minute)
	return m
}

func newLiveExecutor(matches *fakeMatches, feed *fakeFeed, q *fakeQueue, now time.Time) *LiveExecutor {
	return NewLiveExecutor(LiveConfig{
		Feed:    feed,
		Matches: matches,
		Writer:  matches,
		Data:    matches,
		Queue:   q,
		Now:     func() time.Time { return now },
	})
}

func TestLiveExecutor_SchedulesNextPoll(t *testing.T) {
	matches := newFakeMatches(liveMatch())
	feed := &fakeFeed{live: &providers.LiveScore{Status: domain.MatchStatusLive, Home: 1, Away: 0, Minute: 31}}
	q := &fakeQueue{}
	now := testNow.Add(45 * time.Second)

	res, err := newLiveExecutor(matches, feed, q, now).Execute(context.Background(),
		&Task{Payload: domain.TaskPayload{MatchID: "m1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped {
		t.Fatalf("unexpected skip: %s", res.Reason)
	}

	if matches.statuses["m1"] != domain.MatchStatusLive {
		t.Errorf("match should be moved to live, got %q", matches.statuses["m1"])
	}
	if _, ok := matches.data["m1/"+repo.DataLive]; !ok {
		t.Error("live snapshot should be saved")
	}

	if len(q.tasks) != 1 {
		t.Fatalf("expected next poll enqueued, got %d tasks", len(q.tasks))
	}
	next := q.tasks[0]
	boundary := testNow.Add(2 * time.Minute)
	if next.lane != domain.LaneLive || next.taskType != domain.TaskTypeMonitorLive {
		t.Errorf("unexpected task %+v", next)
	}
	if next.opts.Delay != boundary.Sub(now) {
		t.Errorf("next poll should fire at the 2m boundary, delay %s", next.opts.Delay)
	}
	wantKey := domain.IdempotencyKey(domain.TaskTypeMonitorLive, "m1", "1773511320")
	if next.opts.IdempotencyKey != wantKey {
		t.Errorf("key = %q, want %q", next.opts.IdempotencyKey, wantKey)
	}
	if next.payload.Attempt != 2 {
		t.Errorf("poll counter should advance, got %d", next.payload.Attempt)
	}
}

func TestLiveExecutor_ConcurrentChainsConverge(t *testing.T) {
	matches := newFakeMatches(liveMatch())
	feed := &fakeFeed{live: &providers.LiveScore{Status: domain.MatchStatusLive}}
	q := &fakeQueue{}

	newLiveExecutor(matches, feed, q, testNow.Add(10*time.Second)).Execute(context.Background(),
		&Task{Payload: domain.TaskPayload{MatchID: "m1", Attempt: 5}})
	newLiveExecutor(matches, feed, q, testNow.Add(70*time.Second)).Execute(context.Background(),
		&Task{Payload: domain.TaskPayload{MatchID: "m1", Attempt: 1}})

	if len(q.tasks) != 1 {
		t.Errorf("polls within one interval should share a key, got %d tasks", len(q.tasks))
	}
}

func TestLiveExecutor_FinishedEnqueuesSettle(t *testing.T) {
	matches := newFakeMatches(liveMatch())
	feed := &fakeFeed{live: &providers.LiveScore{Status: domain.MatchStatusFinished, Home: 2, Away: 2, Minute: 90}}
	q := &fakeQueue{}

	if _, err := newLiveExecutor(matches, feed, q, testNow).Execute(context.Background(),
		&Task{Payload: domain.TaskPayload{MatchID: "m1", Attempt: 40}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if matches.finals["m1"] != (domain.Score{Home: 2, Away: 2}) {
		t.Errorf("final score not written: %+v", matches.finals["m1"])
	}
	if len(q.tasks) != 1 {
		t.Fatalf("expected settle enqueued, got %d tasks", len(q.tasks))
	}
	settle := q.tasks[0]
	if settle.taskType != domain.TaskTypeSettle || settle.lane != domain.LaneSettlement {
		t.Errorf("unexpected task %+v", settle)
	}
	if settle.opts.IdempotencyKey != "settle-m1" {
		t.Errorf("unexpected settle key %q", settle.opts.IdempotencyKey)
	}
	if settle.payload.Final == nil || *settle.payload.Final != (domain.Score{Home: 2, Away: 2}) {
		t.Errorf("settle payload should carry the final score, got %+v", settle.payload.Final)
	}
}

func TestLiveExecutor_StopsOnPostponed(t *testing.T) {
	matches := newFakeMatches(liveMatch())
	feed := &fakeFeed{live: &providers.LiveScore{Status: domain.MatchStatusPostponed}}
	q := &fakeQueue{}

	if _, err := newLiveExecutor(matches, feed, q, testNow).Execute(context.Background(),
		&Task{Payload: domain.TaskPayload{MatchID: "m1"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if matches.statuses["m1"] != domain.MatchStatusPostponed {
		t.Errorf("status should be updated, got %q", matches.statuses["m1"])
	}
	if len(q.tasks) != 0 {
		t.Errorf("polling should stop, got %d tasks", len(q.tasks))
	}
}

func TestLiveExecutor_PollLimit(t *testing.T) {
	matches := newFakeMatches(liveMatch())
	feed := &fakeFeed{live: &providers.LiveScore{Status: domain.MatchStatusLive}}
	q := &fakeQueue{}

	res, err := newLiveExecutor(matches, feed, q, testNow).Execute(context.Background(),
		&Task{Payload: domain.TaskPayload{MatchID: "m1", Attempt: MaxLivePolls}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Skipped || len(q.tasks) != 0 {
		t.Errorf("chain must stop at the poll limit: res=%+v tasks=%d", res, len(q.tasks))
	}
}

func TestNextPollAt(t *testing.T) {
	base := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	tests := []struct {
		now  time.Time
		want time.Time
	}{
		{base, base.Add(2 * time.Minute)},
		{base.Add(time.Second), base.Add(2 * time.Minute)},
		{base.Add(119 * time.Second), base.Add(2 * time.Minute)},
		{base.Add(2 * time.Minute), base.Add(4 * time.Minute)},
	}

	for _, tt := range tests {
		if got := NextPollAt(tt.now); !got.Equal(tt.want) {
			t.Errorf("NextPollAt(%s) = %s, want %s", tt.now, got, tt.want)
		}
	}
}

// --- SettleExecutor ---

func TestSettleExecutor(t *testing.T) {
	matches := newFakeMatches(liveMatch())
	preds := &fakePredictions{list: []domain.Prediction{
		{MatchID: "m1", Provider: "alpha", Score: domain.Score{Home: 2, Away: 1}},
		{MatchID: "m1", Provider: "beta", Score: domain.Score{Home: 0, Away: 1}},
	}}
	store := &fakeSettlements{}
	exec := NewSettleExecutor(matches, preds, store, nil, fixedNow)

	final := domain.Score{Home: 2, Away: 1}
	task := &Task{Payload: domain.TaskPayload{MatchID: "m1", Final: &final}}

	res, err := exec.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Skipped {
		t.Fatalf("unexpected skip: %s", res.Reason)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected 1 settlement, got %d", len(store.saved))
	}

	s := store.saved[0]
	if !s.SettledAt.Equal(testNow) || len(s.Scores) != 2 || s.Quotas.Total != 2 {
		t.Errorf("unexpected settlement %+v", s)
	}
	if s.Scores[0].Provider != "alpha" || !s.Scores[0].ExactScore {
		t.Errorf("alpha should have the exact score: %+v", s.Scores[0])
	}

	res, err = exec.Execute(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected error on redelivery: %v", err)
	}
	if !res.Skipped || len(store.saved) != 1 {
		t.Error("second settlement must be a no-op")
	}
}

type failingPredictions struct{}

func (failingPredictions) ListByMatch(context.Context, string) ([]domain.Prediction, error) {
	return nil, errors.New("predictions must not be read")
}

func TestSettleExecutor_SettledMatchSkippedEarly(t *testing.T) {
	store := &fakeSettlements{saved: []domain.Settlement{{MatchID: "m1"}}}
	exec := NewSettleExecutor(newFakeMatches(liveMatch()), failingPredictions{}, store, nil, fixedNow)

	res, err := exec.Execute(context.Background(), &Task{Payload: domain.TaskPayload{MatchID: "m1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Skipped {
		t.Error("settled match should be skipped")
	}
}

func TestSettleExecutor_ConcurrentSaveIsNoop(t *testing.T) {
	store := &fakeSettlements{saved: []domain.Settlement{{MatchID: "m1"}}, stale: true}
	exec := NewSettleExecutor(newFakeMatches(liveMatch()), &fakePredictions{}, store, nil, fixedNow)

	final := domain.Score{Home: 1, Away: 0}
	res, err := exec.Execute(context.Background(), &Task{Payload: domain.TaskPayload{MatchID: "m1", Final: &final}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Skipped || len(store.saved) != 1 {
		t.Error("losing the save race must be a no-op")
	}
}

func TestSettleExecutor_ScoreFromMatch(t *testing.T) {
	m := liveMatch()
	home, away := 1, 3
	m.HomeScore, m.AwayScore = &home, &away

	store := &fakeSettlements{}
	exec := NewSettleExecutor(newFakeMatches(m), &fakePredictions{}, store, nil, fixedNow)

	if _, err := exec.Execute(context.Background(), &Task{Payload: domain.TaskPayload{MatchID: "m1"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.saved) != 1 || store.saved[0].Final != (domain.Score{Home: 1, Away: 3}) {
		t.Errorf("final score should be read from the match, got %+v", store.saved)
	}

	noScore := NewSettleExecutor(newFakeMatches(liveMatch()), &fakePredictions{}, store, nil, fixedNow)
	_, err := noScore.Execute(context.Background(), &Task{Payload: domain.TaskPayload{MatchID: "m1"}})
	if !errors.Is(err, ErrNoFinalScore) {
		t.Errorf("expected ErrNoFinalScore, got %v", err)
	}
}

func TestNewLifecycleRegistry(t *testing.T) {
	matches := newFakeMatches()
	r := NewLifecycleRegistry(Dependencies{
		Feed:        &fakeFeed{},
		Matches:     matches,
		Predictions: &fakePredictions{},
		Settlements: &fakeSettlements{},
		Wave:        &fakeWave{},
		Queue:       &fakeQueue{},
	})

	for _, tt := range domain.AllTaskTypes {
		if _, err := r.Get(tt); err != nil {
			t.Errorf("no executor for %s: %v", tt, err)
		}
	}
}
