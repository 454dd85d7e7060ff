package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/mq"
	"github.com/shaiso/Kickoff/internal/queue"
	"github.com/shaiso/Kickoff/internal/resilience"
	"github.com/shaiso/Kickoff/internal/telemetry"
)

// DoneTracker — маркеры выполненных задач (реализуется queue.Router).
type DoneTracker interface {
	MarkDone(ctx context.Context, lane domain.Lane, key string) error
	IsDone(ctx context.Context, lane domain.Lane, key string) (bool, error)
}

// DeadLetterSink — архив задач, исчерпавших retry (реализуется deadletter.Archive).
type DeadLetterSink interface {
	Add(ctx context.Context, entry *domain.DeadLetterEntry) error
}

// Worker выполняет задачи жизненного цикла матчей.
//
// На каждую lane запускается свой consumer: prefetch равен concurrency lane,
// поэтому медленная lane не занимает слоты быстрых. Retry выполняется
// в процессе, в пределах таймаута lane. Задача, исчерпавшая попытки,
// уходит в Dead Letter Archive и подтверждается.
type Worker struct {
	conn     *mq.Connection
	lanes    *queue.LaneSet
	registry *Registry
	done     DoneTracker
	archive  DeadLetterSink

	backoff func(kind resilience.ErrorKind, attempt int) time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time

	logger     *slog.Logger
	consumers  []*mq.Consumer
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Worker.
type Config struct {
	Conn     *mq.Connection
	Lanes    *queue.LaneSet
	Registry *Registry
	Done     DoneTracker
	Archive  DeadLetterSink

	// Backoff — задержка перед повтором (default: resilience.Backoff).
	Backoff func(kind resilience.ErrorKind, attempt int) time.Duration

	// Sleep — ожидание с учётом context (для тестов).
	Sleep func(ctx context.Context, d time.Duration) error

	// Now — источник времени (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	backoff := cfg.Backoff
	if backoff == nil {
		backoff = resilience.Backoff
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Worker{
		conn:     cfg.Conn,
		lanes:    cfg.Lanes,
		registry: registry,
		done:     cfg.Done,
		archive:  cfg.Archive,
		backoff:  backoff,
		sleep:    sleep,
		now:      now,
		logger:   logger,
	}
}

// Start запускает consumers всех lanes и consumer очереди dlq.tasks.
func (w *Worker) Start(ctx context.Context) error {
	if w.lanes == nil {
		return fmt.Errorf("worker: lanes are not configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	for _, name := range w.lanes.Names() {
		lane, _ := w.lanes.Config(name)
		w.startConsumer(ctx, mq.ConsumerConfig{
			Queue:    string(mq.LaneQueueName(string(name))),
			Prefetch: lane.Concurrency,
			Handler: func(ctx context.Context, d *mq.Delivery) error {
				return w.HandleDelivery(ctx, lane, d)
			},
		})

		w.logger.Info("lane consumer started",
			"lane", name,
			"concurrency", lane.Concurrency,
			"timeout", lane.Timeout,
			"max_attempts", lane.MaxAttempts,
		)
	}

	w.startConsumer(ctx, mq.ConsumerConfig{
		Queue:    string(mq.QueueDLQTasks),
		Prefetch: 1,
		Handler:  w.HandleDeadLettered,
	})

	w.logger.Info("worker started", "task_types", w.registry.Types())
	return nil
}

func (w *Worker) startConsumer(ctx context.Context, cfg mq.ConsumerConfig) {
	consumer := mq.NewConsumer(w.conn, w.logger, cfg)
	w.consumers = append(w.consumers, consumer)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("consumer error", "queue", cfg.Queue, "error", err)
		}
	}()
}

// Stop останавливает consumers и ждёт завершения обработчиков.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	for _, c := range w.consumers {
		c.Stop()
	}

	w.wg.Wait()
	w.logger.Info("worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

// HandleDelivery разбирает сообщение lane и выполняет задачу.
// Возвращённая ошибка означает nack с возвратом в очередь.
func (w *Worker) HandleDelivery(ctx context.Context, lane queue.LaneConfig, d *mq.Delivery) error {
	task, err := taskFromMessage(&d.Message, lane.Name, d.IdempotencyKey())
	if err != nil {
		logger := telemetry.WithLane(w.logger, string(lane.Name))
		return w.deadLetter(ctx, task, 0, err, logger)
	}
	if d.Redelivered() {
		// Прошлая доставка не дошла до ack: done-маркер отсечёт уже выполненную задачу
		telemetry.TasksRedelivered.WithLabelValues(string(lane.Name)).Inc()
		w.logger.Info("task redelivered",
			"lane", lane.Name,
			"idempotency_key", task.IdempotencyKey,
		)
	}
	return w.Process(ctx, lane, task)
}

// taskFromMessage собирает Task из сообщения очереди.
// При ошибке возвращает частично заполненную задачу для DLQ.
func taskFromMessage(msg *mq.Message, lane domain.Lane, key string) (*Task, error) {
	task := &Task{
		ID:             msg.ID,
		Lane:           lane,
		Type:           domain.TaskType(msg.Type),
		IdempotencyKey: key,
	}

	raw, err := json.Marshal(msg.Payload)
	if err == nil {
		task.Raw = raw
	}

	if _, err := domain.ParseTaskType(string(msg.Type)); err != nil {
		return task, fmt.Errorf("%w: %s", ErrUnknownTaskType, msg.Type)
	}

	payload, err := mq.ParsePayload[domain.TaskPayload](msg)
	if err != nil {
		return task, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if payload.MatchID == "" {
		return task, fmt.Errorf("%w: match_id is required", ErrInvalidPayload)
	}
	task.Payload = payload

	return task, nil
}

// Process выполняет задачу с учётом done-маркера, retry и DLQ.
//
// Возвращает nil, если сообщение можно подтвердить: задача выполнена,
// пропущена, уже была выполнена раньше или перемещена в DLQ.
func (w *Worker) Process(ctx context.Context, lane queue.LaneConfig, task *Task) error {
	logger := telemetry.WithLane(w.logger, string(lane.Name)).With(
		"task_id", task.ID,
		"type", task.Type,
		"idempotency_key", task.IdempotencyKey,
		"match_id", task.Payload.MatchID,
	)

	if w.isDone(ctx, lane.Name, task, logger) {
		logger.Debug("completed task redelivered, acknowledging")
		telemetry.TasksExecuted.WithLabelValues(string(lane.Name), "duplicate").Inc()
		return nil
	}

	start := w.now()
	result, attempts, err := w.executeWithRetry(ctx, lane, task, logger)
	telemetry.TaskDuration.WithLabelValues(string(lane.Name)).Observe(w.now().Sub(start).Seconds())

	if err == nil {
		outcome := "succeeded"
		if result != nil && result.Skipped {
			outcome = "skipped"
			logger.Info("task skipped", "reason", result.Reason, "attempt", attempts)
		} else {
			args := []any{"attempt", attempts}
			if result != nil {
				for k, v := range result.Outputs {
					args = append(args, k, v)
				}
			}
			logger.Info("task succeeded", args...)
		}
		telemetry.TasksExecuted.WithLabelValues(string(lane.Name), outcome).Inc()
		w.markDone(ctx, lane.Name, task, logger)
		return nil
	}

	// Остановка воркера: сообщение вернётся в очередь
	if ctx.Err() != nil {
		return ctx.Err()
	}

	return w.deadLetter(ctx, task, attempts, err, logger)
}

// executeWithRetry выполняет задачу до MaxAttempts раз.
// Таймаут lane ограничивает всё выполнение, включая паузы между попытками.
func (w *Worker) executeWithRetry(ctx context.Context, lane queue.LaneConfig, task *Task, logger *slog.Logger) (*ExecutionResult, int, error) {
	executor, err := w.registry.Get(task.Type)
	if err != nil {
		return nil, 0, err
	}

	maxAttempts := max(lane.MaxAttempts, 1)

	taskCtx := ctx
	if lane.Timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, lane.Timeout)
		defer cancel()
	}

	for attempt := 1; ; attempt++ {
		task.Attempt = attempt

		result, err := executor.Execute(taskCtx, task)
		if err == nil {
			return result, attempt, nil
		}

		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}
		if taskCtx.Err() != nil {
			return nil, attempt, fmt.Errorf("%w: lane timeout %s exceeded: %w", ErrRetryExhausted, lane.Timeout, err)
		}

		if isPermanent(err) || resilience.IsTerminal(err) {
			logger.Warn("task failed permanently", "attempt", attempt, "error", err)
			return nil, attempt, err
		}

		if attempt >= maxAttempts {
			return nil, attempt, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempt, err)
		}

		kind := resilience.Classify(err)
		delay := w.backoff(kind, attempt)

		if deadline, ok := taskCtx.Deadline(); ok && time.Until(deadline) < delay {
			return nil, attempt, fmt.Errorf("%w: no time left for retry in %s: %w", ErrRetryExhausted, lane.Timeout, err)
		}

		logger.Warn("task attempt failed, retrying",
			"attempt", attempt,
			"kind", kind,
			"delay", delay,
			"error", err,
		)

		if err := w.sleep(taskCtx, delay); err != nil {
			if ctx.Err() != nil {
				return nil, attempt, ctx.Err()
			}
			return nil, attempt, fmt.Errorf("%w: lane timeout %s exceeded", ErrRetryExhausted, lane.Timeout)
		}
	}
}

// deadLetter сохраняет задачу в архив. Ошибка архива возвращает сообщение в очередь.
func (w *Worker) deadLetter(ctx context.Context, task *Task, attempts int, cause error, logger *slog.Logger) error {
	if w.archive == nil {
		logger.Error("task failed, no dead letter archive configured", "error", cause)
		return nil
	}

	entry := &domain.DeadLetterEntry{
		TaskID:         task.ID,
		Lane:           task.Lane,
		TaskType:       task.Type,
		IdempotencyKey: task.IdempotencyKey,
		Payload:        task.Raw,
		Reason:         cause.Error(),
		Attempts:       attempts,
		FailedAt:       w.now(),
	}

	if err := w.archive.Add(ctx, entry); err != nil {
		logger.Error("failed to archive dead letter", "error", err, "cause", cause)
		return fmt.Errorf("archive dead letter: %w", err)
	}

	telemetry.TasksExecuted.WithLabelValues(string(task.Lane), "dead_letter").Inc()
	return nil
}

func (w *Worker) isDone(ctx context.Context, lane domain.Lane, task *Task, logger *slog.Logger) bool {
	if w.done == nil || task.IdempotencyKey == "" {
		return false
	}
	done, err := w.done.IsDone(ctx, lane, task.IdempotencyKey)
	if err != nil {
		logger.Warn("failed to read done marker", "error", err)
		return false
	}
	return done
}

func (w *Worker) markDone(ctx context.Context, lane domain.Lane, task *Task, logger *slog.Logger) {
	if w.done == nil || task.IdempotencyKey == "" {
		return
	}
	if err := w.done.MarkDone(ctx, lane, task.IdempotencyKey); err != nil {
		logger.Warn("failed to write done marker", "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
