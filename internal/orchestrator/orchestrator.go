package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/resilience"
	"github.com/shaiso/Kickoff/internal/telemetry"
)

// Значения по умолчанию.
const (
	DefaultBatchSize   = 10
	DefaultConcurrency = 5
	DefaultBudget      = 4 * time.Minute
	DefaultMaxRetries  = 1
	DefaultMaxAttempts = 3
)

// Orchestrator — Batch Prediction Orchestrator.
type Orchestrator struct {
	predictions PredictionStore
	attempts    AttemptStore
	usage       UsageRecorder
	health      HealthTracker

	batchSize   int
	concurrency int
	budget      time.Duration
	maxRetries  int
	maxAttempts int

	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	backoff func(kind resilience.ErrorKind, attempt int) time.Duration

	limitersMu sync.Mutex
	limiters   map[string]*rate.Limiter

	logger *slog.Logger
}

// Config — конфигурация Orchestrator.
type Config struct {
	Predictions PredictionStore
	Attempts    AttemptStore
	Usage       UsageRecorder

	// Health — circuit breaker провайдеров (nil — все провайдеры включены).
	Health HealthTracker

	// BatchSize — матчей в одном запросе (default: 10).
	BatchSize int

	// Concurrency — провайдеров одновременно (default: 5).
	Concurrency int

	// Budget — бюджет времени на волну (default: 4m).
	Budget time.Duration

	// MaxRetries — повторов на батч (default: 1). Отрицательное значение — без повторов.
	MaxRetries int

	// MaxAttempts — после скольких неудач пара больше не запрашивается (default: 3).
	MaxAttempts int

	// Now, Sleep, Backoff переопределяются в тестах.
	Now     func() time.Time
	Sleep   func(ctx context.Context, d time.Duration) error
	Backoff func(kind resilience.ErrorKind, attempt int) time.Duration

	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	budget := cfg.Budget
	if budget <= 0 {
		budget = DefaultBudget
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	backoff := cfg.Backoff
	if backoff == nil {
		backoff = resilience.Backoff
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		predictions: cfg.Predictions,
		attempts:    cfg.Attempts,
		usage:       cfg.Usage,
		health:      cfg.Health,
		batchSize:   batchSize,
		concurrency: concurrency,
		budget:      budget,
		maxRetries:  maxRetries,
		maxAttempts: maxAttempts,
		now:         now,
		sleep:       sleep,
		backoff:     backoff,
		limiters:    make(map[string]*rate.Limiter),
		logger:      logger,
	}
}

// WaveOptions — параметры одной волны.
type WaveOptions struct {
	// IgnoreAttemptLimit — запрашивать пары, исчерпавшие MaxAttempts
	// (последняя попытка перед kickoff).
	IgnoreAttemptLimit bool
}

// RunWave запускает волну прогнозов по матчам и провайдерам.
//
// Ошибки отдельных пар и батчей не прерывают волну и попадают в итог.
// Ошибка возвращается только если не удалось прочитать состояние
// прогнозов или попыток, либо если отменён ctx.
func (o *Orchestrator) RunWave(ctx context.Context, matches []domain.Match, providers []Provider) (*WaveSummary, error) {
	return o.RunWaveWithOptions(ctx, matches, providers, WaveOptions{})
}

// RunWaveWithOptions — RunWave с параметрами.
func (o *Orchestrator) RunWaveWithOptions(ctx context.Context, matches []domain.Match, providers []Provider, opts WaveOptions) (*WaveSummary, error) {
	start := o.now()
	deadline := start.Add(o.budget)

	ids := make([]string, len(matches))
	for i := range matches {
		ids[i] = matches[i].ID
	}

	predicted, err := o.predictions.ExistingPredictions(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load existing predictions: %w", err)
	}

	var attempts []domain.PredictionAttempt
	if o.attempts != nil {
		attempts, err = o.attempts.ListAttempts(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("load prediction attempts: %w", err)
		}
	}

	state := newWaveState(deadline, predicted, attempts, o.maxAttempts, opts.IgnoreAttemptLimit)

	o.logger.Info("prediction wave started",
		"matches", len(matches),
		"providers", len(providers),
		"budget", o.budget,
	)

	var g errgroup.Group
	g.SetLimit(o.concurrency)

	for _, p := range providers {
		g.Go(func() error {
			o.runProvider(ctx, state, p, matches)
			return nil
		})
	}
	_ = g.Wait()

	duration := o.now().Sub(start)
	summary := state.summary(len(matches), duration)
	telemetry.WaveDuration.Observe(duration.Seconds())

	o.logger.Info("prediction wave finished",
		"matches", summary.Matches,
		"attempted", summary.Attempted,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"gave_up", summary.GaveUp,
		"skipped", summary.Skipped,
		"budget_exhausted", summary.BudgetExhausted,
		"duration", duration,
	)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// runProvider обрабатывает батчи одного провайдера последовательно.
func (o *Orchestrator) runProvider(ctx context.Context, state *waveState, p Provider, matches []domain.Match) {
	name := p.Name()
	res := state.result(name)
	logger := telemetry.WithProvider(o.logger, name)

	todo, skipped := state.pending(name, matches)
	o.count(res, OutcomeSkipped, skipped)
	if len(todo) == 0 {
		return
	}

	if o.budgetExhausted(ctx, state) {
		o.count(res, OutcomeGaveUp, len(todo))
		logger.Warn("provider abandoned: wave budget exhausted", "matches", len(todo))
		return
	}

	if !o.isEnabled(ctx, name, logger) {
		res.Disabled = true
		o.count(res, OutcomeSkipped, len(todo))
		logger.Info("provider skipped: auto-disabled", "matches", len(todo))
		return
	}

	batches := chunk(todo, o.batchSize)
	for i, batch := range batches {
		if o.budgetExhausted(ctx, state) {
			left := remainingMatches(batches[i:])
			o.count(res, OutcomeGaveUp, left)
			logger.Warn("remaining batches abandoned: wave budget exhausted",
				"batches", len(batches)-i,
				"matches", left,
			)
			return
		}

		if stop := o.runBatch(ctx, state, p, batch, res, logger); stop {
			left := remainingMatches(batches[i+1:])
			o.count(res, OutcomeSkipped, left)
			return
		}
	}
}

// runBatch выполняет один батч. Возвращает true, если провайдер нужно
// остановить до конца волны.
func (o *Orchestrator) runBatch(ctx context.Context, state *waveState, p Provider, batch []domain.Match, res *ProviderResult, logger *slog.Logger) bool {
	name := p.Name()
	req := BatchRequest{Matches: batch}
	res.Batches++
	res.Attempted += len(batch)

	result, err := o.callWithRetry(ctx, state, p, req, res, logger)

	switch {
	case err != nil && errors.Is(err, ErrBudgetExceeded):
		o.count(res, OutcomeGaveUp, len(batch))
		logger.Warn("batch cut off by wave budget", "batch_size", len(batch))
		return false

	case err != nil:
		kind := resilience.Classify(err)
		res.LastError = err.Error()
		o.count(res, OutcomeFailed, len(batch))
		o.recordAttempts(ctx, batch, name, kind, logger)

		logger.Warn("batch failed",
			"batch_size", len(batch),
			"kind", kind,
			"error", err,
		)
		return o.recordFailure(ctx, name, kind, err.Error(), res, logger)
	}

	preds := make([]domain.Prediction, 0, len(batch))
	var missing []domain.Match
	at := o.now()
	for _, m := range batch {
		score, ok := result.Predictions[m.ID]
		if !ok {
			missing = append(missing, m)
			continue
		}
		preds = append(preds, domain.Prediction{
			MatchID:   m.ID,
			Provider:  name,
			Score:     score,
			CreatedAt: at,
		})
	}

	if err := o.predictions.SavePredictions(ctx, preds); err != nil {
		// Прогнозы получены, но не сохранены: провайдер здоров, пары остаются
		// без прогноза и будут подобраны следующей волной.
		logger.Error("failed to save predictions", "count", len(preds), "error", err)
		o.count(res, OutcomeFailed, len(batch))
		return false
	}

	o.count(res, OutcomeSucceeded, len(preds))
	for _, pr := range preds {
		if o.attempts == nil {
			break
		}
		if err := o.attempts.ClearAttempts(ctx, pr.MatchID, name); err != nil {
			logger.Warn("failed to clear prediction attempts", "match_id", pr.MatchID, "error", err)
		}
	}

	if len(missing) > 0 {
		o.count(res, OutcomeFailed, len(missing))
		o.recordAttempts(ctx, missing, name, resilience.KindParseError, logger)
		logger.Warn("batch partially succeeded",
			"batch_size", len(batch),
			"predicted", len(preds),
			"missing", len(missing),
		)
	}

	if o.health != nil {
		if err := o.health.RecordSuccess(ctx, name); err != nil {
			logger.Warn("failed to record provider success", "error", err)
		}
	}
	return false
}

// callWithRetry вызывает провайдера и повторяет retryable-ошибки,
// пока позволяют MaxRetries и бюджет волны.
func (o *Orchestrator) callWithRetry(ctx context.Context, state *waveState, p Provider, req BatchRequest, res *ProviderResult, logger *slog.Logger) (*BatchResult, error) {
	var lastErr error

	for attempt := 1; attempt <= o.maxRetries+1; attempt++ {
		if attempt > 1 {
			res.Retries++
		}

		result, err := o.call(ctx, state, p, req, res)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if errors.Is(err, ErrBudgetExceeded) || ctx.Err() != nil {
			return nil, err
		}
		if !resilience.IsRetryable(err) || attempt > o.maxRetries {
			return nil, err
		}

		kind := resilience.Classify(err)
		delay := o.backoff(kind, attempt)
		if !o.now().Add(delay).Before(state.deadline) {
			logger.Info("retry skipped: would exceed wave budget", "kind", kind, "delay", delay)
			return nil, err
		}

		logger.Info("retrying batch",
			"attempt", attempt,
			"kind", kind,
			"delay", delay,
			"error", err,
		)
		if err := o.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// call выполняет один вызов провайдера в пределах оставшегося бюджета
// и записывает расход. Ответ без прогнозов превращается в ошибку.
func (o *Orchestrator) call(ctx context.Context, state *waveState, p Provider, req BatchRequest, res *ProviderResult) (*BatchResult, error) {
	remaining := state.deadline.Sub(o.now())
	if remaining <= 0 {
		return nil, ErrBudgetExceeded
	}

	callCtx, cancel := context.WithTimeout(ctx, remaining)
	defer cancel()

	if lim := o.limiter(p); lim != nil {
		if err := lim.Wait(callCtx); err != nil {
			if ctx.Err() == nil {
				return nil, ErrBudgetExceeded
			}
			return nil, err
		}
	}

	start := o.now()
	result, err := p.PredictBatch(callCtx, req)
	elapsed := o.now().Sub(start)
	res.Calls++

	if result != nil {
		if result.ProcessingTime > 0 {
			elapsed = result.ProcessingTime
		}
		res.CostUSD += result.Usage.CostUSD
	}

	if err == nil {
		switch {
		case result == nil:
			err = ErrEmptyPrediction
		case !result.Success && len(result.Predictions) == 0:
			err = fmt.Errorf("%w: %s", ErrProviderFailed, result.Error)
		case len(result.Predictions) == 0:
			err = ErrEmptyPrediction
		}
	}

	o.recordUsage(ctx, p.Name(), req, result, err == nil, elapsed)

	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrBudgetExceeded, err)
		}
		return nil, err
	}
	return result, nil
}

// recordUsage пишет расход вызова. Ошибка учёта не влияет на волну.
func (o *Orchestrator) recordUsage(ctx context.Context, provider string, req BatchRequest, result *BatchResult, success bool, elapsed time.Duration) {
	if o.usage == nil {
		return
	}

	rec := domain.UsageRecord{
		ID:             uuid.NewString(),
		Provider:       provider,
		BatchSize:      len(req.Matches),
		Success:        success,
		ProcessingTime: elapsed,
		CreatedAt:      o.now(),
	}
	if result != nil {
		rec.InputTokens = result.Usage.InputTokens
		rec.OutputTokens = result.Usage.OutputTokens
		rec.CostUSD = result.Usage.CostUSD
	}

	if err := o.usage.RecordUsage(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("failed to record usage", "provider", provider, "error", err)
	}
}

// recordAttempts пишет PredictionAttempt для каждой пары батча.
func (o *Orchestrator) recordAttempts(ctx context.Context, matches []domain.Match, provider string, kind resilience.ErrorKind, logger *slog.Logger) {
	if o.attempts == nil {
		return
	}
	at := o.now()
	for _, m := range matches {
		if err := o.attempts.RecordFailedAttempt(ctx, m.ID, provider, kind, at); err != nil {
			logger.Warn("failed to record prediction attempt", "match_id", m.ID, "error", err)
		}
	}
}

// recordFailure передаёт ошибку в circuit breaker. Возвращает true,
// если провайдер был отключён этой ошибкой.
func (o *Orchestrator) recordFailure(ctx context.Context, provider string, kind resilience.ErrorKind, reason string, res *ProviderResult, logger *slog.Logger) bool {
	if o.health == nil {
		return false
	}

	outcome, err := o.health.RecordFailure(ctx, provider, kind, reason)
	if err != nil {
		logger.Warn("failed to record provider failure", "kind", kind, "error", err)
		return false
	}
	if outcome.Disabled {
		res.Disabled = true
		logger.Error("provider auto-disabled during wave",
			"kind", kind,
			"consecutive_failures", outcome.Health.ConsecutiveFailures,
		)
		return true
	}
	return false
}

// isEnabled проверяет circuit breaker. Ошибка чтения не отключает провайдера.
func (o *Orchestrator) isEnabled(ctx context.Context, provider string, logger *slog.Logger) bool {
	if o.health == nil {
		return true
	}
	enabled, err := o.health.IsEnabled(ctx, provider)
	if err != nil {
		logger.Warn("failed to read provider health, assuming enabled", "error", err)
		return true
	}
	return enabled
}

// budgetExhausted проверяет бюджет волны и отмену контекста.
func (o *Orchestrator) budgetExhausted(ctx context.Context, state *waveState) bool {
	return ctx.Err() != nil || !o.now().Before(state.deadline)
}

// limiter возвращает ограничитель частоты вызовов провайдера (nil — без ограничения).
func (o *Orchestrator) limiter(p Provider) *rate.Limiter {
	pacer, ok := p.(Pacer)
	if !ok || pacer.CallInterval() <= 0 {
		return nil
	}

	o.limitersMu.Lock()
	defer o.limitersMu.Unlock()

	lim, ok := o.limiters[p.Name()]
	if !ok {
		lim = rate.NewLimiter(rate.Every(pacer.CallInterval()), 1)
		o.limiters[p.Name()] = lim
	}
	return lim
}

// count увеличивает счётчик исхода и метрику.
func (o *Orchestrator) count(res *ProviderResult, outcome string, n int) {
	if n <= 0 {
		return
	}
	switch outcome {
	case OutcomeSucceeded:
		res.Succeeded += n
	case OutcomeFailed:
		res.Failed += n
	case OutcomeGaveUp:
		res.GaveUp += n
	case OutcomeSkipped:
		res.Skipped += n
	}
	telemetry.WavePairs.WithLabelValues(res.Provider, outcome).Add(float64(n))
}

// chunk режет матчи на батчи.
func chunk(matches []domain.Match, size int) [][]domain.Match {
	var batches [][]domain.Match
	for size < len(matches) {
		matches, batches = matches[size:], append(batches, matches[:size:size])
	}
	if len(matches) > 0 {
		batches = append(batches, matches)
	}
	return batches
}

func remainingMatches(batches [][]domain.Match) int {
	n := 0
	for _, b := range batches {
		n += len(b)
	}
	return n
}

// sleepContext ждёт d или отмены ctx.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
