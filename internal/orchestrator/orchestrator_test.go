package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/resilience"
)

// --- Fakes ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) error {
	c.Advance(d)
	return nil
}

type fakeProvider struct {
	name string
	fn   func(call int, req BatchRequest) (*BatchResult, error)

	mu    sync.Mutex
	calls []BatchRequest
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) PredictBatch(_ context.Context, req BatchRequest) (*BatchResult, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	n := len(p.calls)
	p.mu.Unlock()
	return p.fn(n, req)
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// predictAll отвечает прогнозом на каждый матч батча.
func predictAll(req BatchRequest) *BatchResult {
	res := &BatchResult{Success: true, Predictions: make(map[string]domain.Score)}
	for _, id := range req.MatchIDs() {
		res.Predictions[id] = domain.Score{Home: 2, Away: 1}
	}
	res.Usage = Usage{InputTokens: 100, OutputTokens: 20, CostUSD: 0.01}
	return res
}

type fakePredictions struct {
	mu       sync.Mutex
	existing map[string]map[string]bool
	saved    []domain.Prediction
}

func newFakePredictions() *fakePredictions {
	return &fakePredictions{existing: make(map[string]map[string]bool)}
}

func (s *fakePredictions) ExistingPredictions(_ context.Context, _ []string) (map[string]map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existing, nil
}

func (s *fakePredictions) SavePredictions(_ context.Context, preds []domain.Prediction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, preds...)
	return nil
}

type recordedAttempt struct {
	matchID  string
	provider string
	kind     resilience.ErrorKind
}

type fakeAttempts struct {
	mu       sync.Mutex
	existing []domain.PredictionAttempt
	recorded []recordedAttempt
	cleared  []string
}

func (s *fakeAttempts) ListAttempts(_ context.Context, _ []string) ([]domain.PredictionAttempt, error) {
	return s.existing, nil
}

func (s *fakeAttempts) RecordFailedAttempt(_ context.Context, matchID, provider string, kind resilience.ErrorKind, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorded = append(s.recorded, recordedAttempt{matchID, provider, kind})
	return nil
}

func (s *fakeAttempts) ClearAttempts(_ context.Context, matchID, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared = append(s.cleared, matchID)
	return nil
}

type fakeUsage struct {
	mu      sync.Mutex
	records []domain.UsageRecord
}

func (u *fakeUsage) RecordUsage(_ context.Context, rec domain.UsageRecord) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.records = append(u.records, rec)
	return nil
}

type fakeHealth struct {
	mu            sync.Mutex
	disabled      map[string]bool
	disableOnFail bool
	successes     int
	failures      []resilience.ErrorKind
}

func newFakeHealth() *fakeHealth {
	return &fakeHealth{disabled: make(map[string]bool)}
}

func (h *fakeHealth) IsEnabled(_ context.Context, provider string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.disabled[provider], nil
}

func (h *fakeHealth) RecordSuccess(_ context.Context, _ string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.successes++
	return nil
}

func (h *fakeHealth) RecordFailure(_ context.Context, provider string, kind resilience.ErrorKind, _ string) (resilience.FailureOutcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, kind)
	if h.disableOnFail {
		h.disabled[provider] = true
		return resilience.FailureOutcome{Kind: kind, Counted: true, Disabled: true}, nil
	}
	return resilience.FailureOutcome{Kind: kind}, nil
}

type testEnv struct {
	clock       *fakeClock
	predictions *fakePredictions
	attempts    *fakeAttempts
	usage       *fakeUsage
	health      *fakeHealth
}

func newTestEnv() *testEnv {
	return &testEnv{
		clock:       newFakeClock(),
		predictions: newFakePredictions(),
		attempts:    &fakeAttempts{},
		usage:       &fakeUsage{},
		health:      newFakeHealth(),
	}
}

func (e *testEnv) orchestrator(mod func(*Config)) *Orchestrator {
	cfg := Config{
		Predictions: e.predictions,
		Attempts:    e.attempts,
		Usage:       e.usage,
		Health:      e.health,
		Now:         e.clock.Now,
		Sleep:       e.clock.Sleep,
		Backoff:     func(resilience.ErrorKind, int) time.Duration { return time.Second },
	}
	if mod != nil {
		mod(&cfg)
	}
	return New(cfg)
}

func makeMatches(n int) []domain.Match {
	matches := make([]domain.Match, n)
	for i := range matches {
		matches[i] = domain.Match{ID: fmt.Sprintf("m%02d", i+1), HomeTeam: "Home", AwayTeam: "Away"}
	}
	return matches
}

// --- Tests ---

func TestNew_Defaults(t *testing.T) {
	o := New(Config{Predictions: newFakePredictions()})

	if o.batchSize != DefaultBatchSize {
		t.Errorf("expected batch size %d, got %d", DefaultBatchSize, o.batchSize)
	}
	if o.concurrency != DefaultConcurrency {
		t.Errorf("expected concurrency %d, got %d", DefaultConcurrency, o.concurrency)
	}
	if o.budget != DefaultBudget {
		t.Errorf("expected budget %s, got %s", DefaultBudget, o.budget)
	}
	if o.maxRetries != DefaultMaxRetries {
		t.Errorf("expected %d retries, got %d", DefaultMaxRetries, o.maxRetries)
	}

	if noRetry := New(Config{Predictions: newFakePredictions(), MaxRetries: -1}); noRetry.maxRetries != 0 {
		t.Errorf("negative MaxRetries should disable retries, got %d", noRetry.maxRetries)
	}
}

func TestChunk(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{0, 10, nil},
		{7, 10, []int{7}},
		{10, 10, []int{10}},
		{23, 10, []int{10, 10, 3}},
	}

	for _, tt := range tests {
		batches := chunk(makeMatches(tt.n), tt.size)
		if len(batches) != len(tt.want) {
			t.Errorf("chunk(%d, %d): %d batches, want %d", tt.n, tt.size, len(batches), len(tt.want))
			continue
		}
		for i, b := range batches {
			if len(b) != tt.want[i] {
				t.Errorf("chunk(%d, %d)[%d] = %d, want %d", tt.n, tt.size, i, len(b), tt.want[i])
			}
		}
	}
}

func TestRunWave_PartialBatch(t *testing.T) {
	env := newTestEnv()
	matches := makeMatches(10)

	p := &fakeProvider{name: "alpha", fn: func(_ int, req BatchRequest) (*BatchResult, error) {
		res := predictAll(req)
		for _, id := range req.MatchIDs()[7:] {
			delete(res.Predictions, id)
		}
		return res, nil
	}}

	sum, err := env.orchestrator(nil).RunWave(context.Background(), matches, []Provider{p})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(env.predictions.saved) != 7 {
		t.Errorf("expected 7 saved predictions, got %d", len(env.predictions.saved))
	}
	if len(env.attempts.recorded) != 3 {
		t.Fatalf("expected 3 failed attempts, got %d", len(env.attempts.recorded))
	}
	for _, a := range env.attempts.recorded {
		if a.kind != resilience.KindParseError {
			t.Errorf("missing prediction should be recorded as parse_error, got %s", a.kind)
		}
	}

	if env.health.successes != 1 || len(env.health.failures) != 0 {
		t.Errorf("partial batch should count as success: successes=%d failures=%v",
			env.health.successes, env.health.failures)
	}

	r := sum.Providers["alpha"]
	if r.Succeeded != 7 || r.Failed != 3 {
		t.Errorf("unexpected provider result: %+v", r)
	}
	if sum.Succeeded != 7 || sum.Failed != 3 || sum.Attempted != 10 {
		t.Errorf("unexpected summary: %+v", sum)
	}
}

func TestRunWave_TimeBudgetCutoff(t *testing.T) {
	env := newTestEnv()
	matches := makeMatches(40)

	p := &fakeProvider{name: "slow", fn: func(_ int, req BatchRequest) (*BatchResult, error) {
		env.clock.Advance(90 * time.Second)
		return predictAll(req), nil
	}}

	sum, err := env.orchestrator(nil).RunWave(context.Background(), matches, []Provider{p})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Батчи стартуют в 0s, 90s, 180s; четвёртый в 270s уже за бюджетом
	if p.callCount() != 3 {
		t.Errorf("expected 3 calls, got %d", p.callCount())
	}
	if sum.Succeeded != 30 {
		t.Errorf("expected 30 succeeded, got %d", sum.Succeeded)
	}
	if sum.GaveUp != 10 {
		t.Errorf("expected 10 gave up, got %d", sum.GaveUp)
	}
	if sum.Failed != 0 {
		t.Errorf("budget cutoff must not count as failure, got %d failed", sum.Failed)
	}
	if !sum.BudgetExhausted {
		t.Error("summary should report exhausted budget")
	}
	if len(env.attempts.recorded) != 0 {
		t.Errorf("gave-up pairs must not get failed attempts, got %v", env.attempts.recorded)
	}
}

func TestRunWave_NoRetryPastCutoff(t *testing.T) {
	env := newTestEnv()
	matches := makeMatches(20)

	p := &fakeProvider{name: "limited", fn: func(_ int, _ BatchRequest) (*BatchResult, error) {
		env.clock.Advance(250 * time.Second)
		return nil, &resilience.StatusError{Code: 429, Message: "too many requests"}
	}}

	o := env.orchestrator(func(c *Config) {
		c.Backoff = resilience.Backoff
	})
	sum, err := o.RunWave(context.Background(), matches, []Provider{p})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Вызов занял 250s: повтор после 60s backoff вышел бы за 4m
	if p.callCount() != 1 {
		t.Errorf("expected a single call, got %d", p.callCount())
	}
	r := sum.Providers["limited"]
	if r.Retries != 0 {
		t.Errorf("no retry expected past the cutoff, got %d", r.Retries)
	}
	if r.Failed != 10 || r.GaveUp != 10 {
		t.Errorf("expected 10 failed and 10 gave up, got %+v", r)
	}
	if len(env.usage.records) != 1 || env.usage.records[0].Success {
		t.Errorf("failed call should still be billed: %+v", env.usage.records)
	}
	if len(env.health.failures) != 1 || env.health.failures[0] != resilience.KindRateLimit {
		t.Errorf("expected rate_limit failure recorded, got %v", env.health.failures)
	}
}

func TestRunWave_RetryOnParseError(t *testing.T) {
	env := newTestEnv()
	matches := makeMatches(5)

	p := &fakeProvider{name: "flaky", fn: func(call int, req BatchRequest) (*BatchResult, error) {
		if call == 1 {
			return &BatchResult{Success: true, Usage: Usage{InputTokens: 100, CostUSD: 0.02}}, nil
		}
		return predictAll(req), nil
	}}

	sum, err := env.orchestrator(nil).RunWave(context.Background(), matches, []Provider{p})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.callCount() != 2 {
		t.Fatalf("expected 2 calls, got %d", p.callCount())
	}
	if r := sum.Providers["flaky"]; r.Retries != 1 || r.Succeeded != 5 {
		t.Errorf("unexpected provider result: %+v", r)
	}

	if len(env.usage.records) != 2 {
		t.Fatalf("usage should be recorded for both calls, got %d", len(env.usage.records))
	}
	if env.usage.records[0].Success || !env.usage.records[1].Success {
		t.Errorf("unexpected usage success flags: %+v", env.usage.records)
	}
	if env.usage.records[0].CostUSD != 0.02 {
		t.Errorf("failed call cost should be recorded, got %v", env.usage.records[0].CostUSD)
	}
}

func TestRunWave_TerminalErrorNotRetried(t *testing.T) {
	env := newTestEnv()

	p := &fakeProvider{name: "broke", fn: func(int, BatchRequest) (*BatchResult, error) {
		return nil, fmt.Errorf("provider call: %w", resilience.ErrBudgetExhausted)
	}}

	sum, err := env.orchestrator(nil).RunWave(context.Background(), makeMatches(3), []Provider{p})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.callCount() != 1 {
		t.Errorf("terminal error must not be retried, got %d calls", p.callCount())
	}
	if sum.Failed != 3 {
		t.Errorf("expected 3 failed, got %d", sum.Failed)
	}
	if len(env.attempts.recorded) != 3 {
		t.Errorf("expected 3 attempts recorded, got %d", len(env.attempts.recorded))
	}
}

func TestRunWave_TransientErrorNotRetried(t *testing.T) {
	env := newTestEnv()

	p := &fakeProvider{name: "down", fn: func(int, BatchRequest) (*BatchResult, error) {
		return nil, &resilience.StatusError{Code: 503, Message: "service unavailable"}
	}}

	if _, err := env.orchestrator(nil).RunWave(context.Background(), makeMatches(3), []Provider{p}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.callCount() != 1 {
		t.Errorf("server errors are not retried within a wave, got %d calls", p.callCount())
	}
	if len(env.health.failures) != 1 || env.health.failures[0] != resilience.KindServerError {
		t.Errorf("expected server_error recorded, got %v", env.health.failures)
	}
}

func TestRunWave_SkipsPredictedAndExhaustedPairs(t *testing.T) {
	env := newTestEnv()
	matches := makeMatches(3)

	env.predictions.existing["m01"] = map[string]bool{"alpha": true}
	env.attempts.existing = []domain.PredictionAttempt{
		{MatchID: "m02", Provider: "alpha", Attempts: DefaultMaxAttempts},
	}

	p := &fakeProvider{name: "alpha", fn: func(_ int, req BatchRequest) (*BatchResult, error) {
		return predictAll(req), nil
	}}

	sum, err := env.orchestrator(nil).RunWave(context.Background(), matches, []Provider{p})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.callCount() != 1 {
		t.Fatalf("expected 1 call, got %d", p.callCount())
	}
	ids := p.calls[0].MatchIDs()
	if len(ids) != 1 || ids[0] != "m03" {
		t.Errorf("only m03 should be requested, got %v", ids)
	}
	if sum.Skipped != 2 || sum.Succeeded != 1 {
		t.Errorf("unexpected summary: %+v", sum)
	}

	// Последняя попытка перед kickoff игнорирует лимит, но не уже готовые прогнозы
	p2 := &fakeProvider{name: "alpha", fn: func(_ int, req BatchRequest) (*BatchResult, error) {
		return predictAll(req), nil
	}}
	if _, err := env.orchestrator(nil).RunWaveWithOptions(context.Background(), matches, []Provider{p2}, WaveOptions{IgnoreAttemptLimit: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ids := p2.calls[0].MatchIDs(); len(ids) != 2 || ids[0] != "m02" {
		t.Errorf("forced wave should request m02 and m03, got %v", ids)
	}
}

func TestRunWave_SuccessClearsAttempts(t *testing.T) {
	env := newTestEnv()

	p := &fakeProvider{name: "alpha", fn: func(_ int, req BatchRequest) (*BatchResult, error) {
		return predictAll(req), nil
	}}
	if _, err := env.orchestrator(nil).RunWave(context.Background(), makeMatches(2), []Provider{p}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(env.attempts.cleared) != 2 {
		t.Errorf("expected attempts cleared for 2 matches, got %v", env.attempts.cleared)
	}
}

func TestRunWave_ConcurrencyLimit(t *testing.T) {
	env := newTestEnv()

	var inFlight, peak atomic.Int32
	var providers []Provider
	for i := 0; i < 8; i++ {
		providers = append(providers, &fakeProvider{
			name: fmt.Sprintf("p%d", i),
			fn: func(_ int, req BatchRequest) (*BatchResult, error) {
				n := inFlight.Add(1)
				defer inFlight.Add(-1)
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				return predictAll(req), nil
			},
		})
	}

	o := env.orchestrator(func(c *Config) { c.Concurrency = 3 })
	sum, err := o.RunWave(context.Background(), makeMatches(4), providers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if peak.Load() > 3 {
		t.Errorf("at most 3 providers should run at once, peak %d", peak.Load())
	}
	if sum.Succeeded != 8*4 {
		t.Errorf("expected %d succeeded, got %d", 8*4, sum.Succeeded)
	}
	if len(sum.Providers) != 8 {
		t.Errorf("expected 8 provider results, got %d", len(sum.Providers))
	}
}

func TestRunWave_DisabledDuringWave(t *testing.T) {
	env := newTestEnv()
	env.health.disableOnFail = true

	p := &fakeProvider{name: "garbage", fn: func(int, BatchRequest) (*BatchResult, error) {
		return &BatchResult{Success: false, Error: "invalid json in model output"}, nil
	}}

	o := env.orchestrator(func(c *Config) { c.MaxRetries = -1 })
	sum, err := o.RunWave(context.Background(), makeMatches(30), []Provider{p})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.callCount() != 1 {
		t.Errorf("provider should stop after being disabled, got %d calls", p.callCount())
	}
	r := sum.Providers["garbage"]
	if !r.Disabled {
		t.Error("provider result should be marked disabled")
	}
	if r.Failed != 10 || r.Skipped != 20 {
		t.Errorf("expected 10 failed and 20 skipped, got %+v", r)
	}
	if env.health.failures[0] != resilience.KindParseError {
		t.Errorf("expected parse_error, got %s", env.health.failures[0])
	}
}

func TestRunWave_DisabledProviderSkipped(t *testing.T) {
	env := newTestEnv()
	env.health.disabled["off"] = true

	off := &fakeProvider{name: "off", fn: func(_ int, req BatchRequest) (*BatchResult, error) {
		return predictAll(req), nil
	}}
	on := &fakeProvider{name: "on", fn: func(_ int, req BatchRequest) (*BatchResult, error) {
		return predictAll(req), nil
	}}

	sum, err := env.orchestrator(nil).RunWave(context.Background(), makeMatches(4), []Provider{off, on})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if off.callCount() != 0 {
		t.Errorf("disabled provider must not be called, got %d calls", off.callCount())
	}
	if sum.Providers["off"].Skipped != 4 || sum.Providers["on"].Succeeded != 4 {
		t.Errorf("unexpected summary: off=%+v on=%+v", sum.Providers["off"], sum.Providers["on"])
	}
}

func TestRunWave_LoadFailure(t *testing.T) {
	env := newTestEnv()
	o := env.orchestrator(func(c *Config) { c.Predictions = failingPredictions{} })

	if _, err := o.RunWave(context.Background(), makeMatches(1), nil); err == nil {
		t.Fatal("expected error when existing predictions cannot be read")
	}
}

type failingPredictions struct{}

func (failingPredictions) ExistingPredictions(context.Context, []string) (map[string]map[string]bool, error) {
	return nil, errors.New("connection refused")
}

func (failingPredictions) SavePredictions(context.Context, []domain.Prediction) error {
	return errors.New("connection refused")
}
