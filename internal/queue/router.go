package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/mq"
	"github.com/shaiso/Kickoff/internal/telemetry"
)

// Значения по умолчанию для Router.
const (
	DefaultImmediateDelay = time.Second
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultPromoteBatch   = 100
	DefaultMarkerTTL      = 24 * time.Hour
	DefaultDoneTTL        = 48 * time.Hour
)

// Publisher — отправка задач в брокер.
type Publisher interface {
	PublishToLane(ctx context.Context, lane string, msg *mq.Message, priority uint8) error
	IsHealthy() bool
}

// EnqueueOptions — параметры постановки задачи.
type EnqueueOptions struct {
	// Delay — через сколько задача должна сработать. Delay <= 0 означает
	// «как можно скорее» (с минимальной буферной задержкой).
	Delay time.Duration

	// IdempotencyKey — ключ задачи. Пустой — сгенерировать уникальный.
	IdempotencyKey string

	// Priority — приоритет доставки (0..9).
	Priority uint8

	// MarkerTTL — сколько хранить маркер идемпотентности после запуска
	// (default: 24h).
	MarkerTTL time.Duration
}

// Router — Queue Router: именованные lanes, отложенная постановка
// с идемпотентными ключами, отмена, здоровье и остановка.
type Router struct {
	lanes     *LaneSet
	store     *Store
	publisher Publisher
	closers   []io.Closer
	logger    *slog.Logger
	now       func() time.Time

	immediateDelay time.Duration
	pollInterval   time.Duration
	batch          int64
	markerTTL      time.Duration
	doneTTL        time.Duration

	shutdownOnce sync.Once
	shutdownErr  error
	stopCh       chan struct{}
	wg           sync.WaitGroup
}

// Config — конфигурация Router.
type Config struct {
	Lanes     *LaneSet
	Store     *Store
	Publisher Publisher

	// Closers закрываются при Shutdown в указанном порядке
	// (обычно соединение RabbitMQ и клиент Redis).
	Closers []io.Closer

	Logger *slog.Logger

	// Now — источник времени (для тестов).
	Now func() time.Time

	// ImmediateDelay — буфер для задач с Delay <= 0 (default: 1s).
	ImmediateDelay time.Duration

	// PollInterval — как часто промоутер проверяет отложенные задачи (default: 500ms).
	PollInterval time.Duration

	// PromoteBatch — сколько задач lane промоутер берёт за один проход (default: 100).
	PromoteBatch int64

	// MarkerTTL — TTL маркера идемпотентности после момента запуска (default: 24h).
	MarkerTTL time.Duration

	// DoneTTL — TTL маркера выполненной задачи (default: 48h).
	DoneTTL time.Duration
}

// New создаёт новый Router.
func New(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	immediate := cfg.ImmediateDelay
	if immediate <= 0 {
		immediate = DefaultImmediateDelay
	}

	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}

	batch := cfg.PromoteBatch
	if batch <= 0 {
		batch = DefaultPromoteBatch
	}

	markerTTL := cfg.MarkerTTL
	if markerTTL <= 0 {
		markerTTL = DefaultMarkerTTL
	}

	doneTTL := cfg.DoneTTL
	if doneTTL <= 0 {
		doneTTL = DefaultDoneTTL
	}

	return &Router{
		lanes:          cfg.Lanes,
		store:          cfg.Store,
		publisher:      cfg.Publisher,
		closers:        cfg.Closers,
		logger:         logger,
		now:            now,
		immediateDelay: immediate,
		pollInterval:   poll,
		batch:          batch,
		markerTTL:      markerTTL,
		doneTTL:        doneTTL,
		stopCh:         make(chan struct{}),
	}
}

// Lanes возвращает набор lanes роутера.
func (r *Router) Lanes() *LaneSet {
	return r.lanes
}

// Enqueue ставит задачу в lane.
//
// Повторная постановка с существующим ключом — тихий no-op (created=false).
// Ошибка возвращается только при сбое транспорта.
func (r *Router) Enqueue(ctx context.Context, lane domain.Lane, taskType domain.TaskType, payload any, opts EnqueueOptions) (bool, error) {
	select {
	case <-r.stopCh:
		return false, ErrShutdown
	default:
	}

	l, err := r.lanes.GetOrCreateLane(lane)
	if err != nil {
		return false, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal payload: %w", err)
	}

	delay := opts.Delay
	if delay <= 0 {
		delay = r.immediateDelay
	}

	key := opts.IdempotencyKey
	if key == "" {
		key = string(taskType) + "-" + uuid.New().String()
	}

	priority := opts.Priority
	if priority > mq.MaxPriority {
		priority = mq.MaxPriority
	}

	markerTTL := opts.MarkerTTL
	if markerTTL <= 0 {
		markerTTL = r.markerTTL
	}

	job := &Job{
		ID:             uuid.New().String(),
		Lane:           lane,
		Type:           taskType,
		IdempotencyKey: key,
		Priority:       priority,
		FireAt:         r.now().Add(delay),
		Payload:        body,
	}

	created, err := r.store.Add(ctx, l, job, delay+markerTTL)
	if err != nil {
		telemetry.TasksEnqueued.WithLabelValues(string(lane), "error").Inc()
		return false, fmt.Errorf("enqueue %s: %w", key, err)
	}

	if !created {
		telemetry.TasksEnqueued.WithLabelValues(string(lane), "duplicate").Inc()
		r.logger.Debug("duplicate enqueue ignored",
			"lane", lane,
			"idempotency_key", key,
		)
		return false, nil
	}

	telemetry.TasksEnqueued.WithLabelValues(string(lane), "created").Inc()
	r.logger.Debug("task enqueued",
		"lane", lane,
		"type", taskType,
		"idempotency_key", key,
		"delay", delay,
		"priority", priority,
	)

	return true, nil
}

// Cancel удаляет ожидающую задачу. Отмена уже запущенной или неизвестной
// задачи — не ошибка (removed=false).
func (r *Router) Cancel(ctx context.Context, lane domain.Lane, key string) (bool, error) {
	l, err := r.lanes.GetOrCreateLane(lane)
	if err != nil {
		return false, err
	}

	removed, err := r.store.Remove(ctx, l, key)
	if err != nil {
		return false, fmt.Errorf("cancel %s: %w", key, err)
	}

	if removed {
		telemetry.TasksCancelled.WithLabelValues(string(lane)).Inc()
		r.logger.Debug("task cancelled", "lane", lane, "idempotency_key", key)
	}

	return removed, nil
}

// Pending возвращает число ожидающих задач по lanes и обновляет метрику.
func (r *Router) Pending(ctx context.Context) (map[domain.Lane]int64, error) {
	out := make(map[domain.Lane]int64)
	for _, name := range r.lanes.Names() {
		l, err := r.lanes.GetOrCreateLane(name)
		if err != nil {
			return nil, err
		}
		n, err := r.store.Pending(ctx, l)
		if err != nil {
			return nil, err
		}
		out[name] = n
		telemetry.TasksPending.WithLabelValues(string(name)).Set(float64(n))
	}
	return out, nil
}

// MarkDone помечает задачу выполненной, чтобы повторная доставка была no-op.
func (r *Router) MarkDone(ctx context.Context, lane domain.Lane, key string) error {
	return r.store.MarkDone(ctx, lane, key, r.doneTTL)
}

// IsDone проверяет, выполнена ли задача.
func (r *Router) IsDone(ctx context.Context, lane domain.Lane, key string) (bool, error) {
	return r.store.IsDone(ctx, lane, key)
}

// IsHealthy сообщает, доступны ли брокер и Redis.
func (r *Router) IsHealthy() bool {
	healthy := r.publisher.IsHealthy() && r.store.IsHealthy()
	if healthy {
		telemetry.BrokerHealthy.Set(1)
	} else {
		telemetry.BrokerHealthy.Set(0)
	}
	return healthy
}

// EnsureHealthy сразу возвращает ErrUnhealthy, если роутер нездоров.
func (r *Router) EnsureHealthy() error {
	if !r.IsHealthy() {
		return ErrUnhealthy
	}
	return nil
}

// Run запускает промоутер: переносит наступившие задачи в очереди брокера.
// Блокируется до отмены контекста или Shutdown.
func (r *Router) Run(ctx context.Context) error {
	r.wg.Add(1)
	defer r.wg.Done()

	r.logger.Info("promoter started",
		"lanes", len(r.lanes.Names()),
		"poll_interval", r.pollInterval,
	)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("promoter stopped")
			return ctx.Err()
		case <-r.stopCh:
			r.logger.Info("promoter stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Promote(ctx); err != nil {
				r.logger.Warn("promote failed", "error", err)
				// Redis мог восстановиться — обновляем флаг
				r.store.Ping(ctx)
				continue
			}
			if _, err := r.Pending(ctx); err != nil {
				r.logger.Debug("pending count failed", "error", err)
			}
		}
	}
}

// Promote выполняет один проход промоутера по всем lanes.
// Возвращает число опубликованных задач.
func (r *Router) Promote(ctx context.Context) (int, error) {
	now := r.now()
	total := 0
	var errs []error

	for _, name := range r.lanes.Names() {
		l, err := r.lanes.GetOrCreateLane(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		n, err := r.promoteLane(ctx, l, now)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("lane %s: %w", name, err))
		}
	}

	return total, errors.Join(errs...)
}

// promoteLane публикует наступившие задачи одной lane.
func (r *Router) promoteLane(ctx context.Context, l *Lane, now time.Time) (int, error) {
	keys, err := r.store.Due(ctx, l, now, r.batch)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, key := range keys {
		job, ok, err := r.store.Claim(ctx, l, key)
		if err != nil {
			return published, err
		}
		if !ok {
			// Забрал другой промоутер или задачу отменили
			continue
		}

		msg := mq.NewMessage(mq.MessageType(job.Type), string(l.Name()), job.IdempotencyKey, job.Payload)
		msg.ID = job.ID

		if err := r.publisher.PublishToLane(ctx, string(l.Name()), msg, job.Priority); err != nil {
			// Возвращаем задачу, следующий проход попробует снова
			if rqErr := r.store.Requeue(ctx, l, job, now); rqErr != nil {
				r.logger.Error("failed to requeue job after publish error",
					"lane", l.Name(),
					"idempotency_key", job.IdempotencyKey,
					"error", rqErr,
				)
			}
			return published, fmt.Errorf("publish %s: %w", job.IdempotencyKey, err)
		}

		telemetry.TasksPromoted.WithLabelValues(string(l.Name())).Inc()
		published++
	}

	return published, nil
}

// Shutdown останавливает промоутер и закрывает соединения.
// Повторные вызовы безопасны и возвращают результат первого.
func (r *Router) Shutdown(ctx context.Context) error {
	r.shutdownOnce.Do(func() {
		close(r.stopCh)

		done := make(chan struct{})
		go func() {
			r.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			r.logger.Warn("promoter did not stop before shutdown deadline")
		}

		var errs []error
		for _, c := range r.closers {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		r.shutdownErr = errors.Join(errs...)

		telemetry.BrokerHealthy.Set(0)
		r.logger.Info("queue router shut down")
	})

	return r.shutdownErr
}
