package deadletter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/telemetry"
)

// Значения по умолчанию.
const (
	DefaultTTL        = 30 * 24 * time.Hour
	DefaultMaxEntries = 1000

	keyPrefix = "dlq:"
	indexKey  = "dlq:index"
)

// addScript вставляет запись и обрезает индекс атомарно.
//
// KEYS[1] — ключ записи, KEYS[2] — индекс.
// ARGV: body, ttl (s), score, member, max, prefix.
var addScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1], 'EX', ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
local excess = redis.call('ZCARD', KEYS[2]) - tonumber(ARGV[5])
if excess > 0 then
  local old = redis.call('ZRANGE', KEYS[2], 0, excess - 1)
  for _, m in ipairs(old) do
    redis.call('DEL', ARGV[6] .. m)
  end
  redis.call('ZREMRANGEBYRANK', KEYS[2], 0, excess - 1)
  return excess
end
return 0
`)

// Archive — Dead Letter Archive в Redis.
type Archive struct {
	rdb        *redis.Client
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	logger     *slog.Logger
}

// Config — конфигурация Archive.
type Config struct {
	Redis *redis.Client

	// TTL — сколько хранится запись (default: 30 дней).
	TTL time.Duration

	// MaxEntries — предел индекса; старые записи вытесняются (default: 1000).
	MaxEntries int

	// Now — источник времени (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// New создаёт новый Archive.
func New(cfg Config) *Archive {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Archive{
		rdb:        cfg.Redis,
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        now,
		logger:     logger,
	}
}

// member — элемент индекса "{lane}:{taskId}".
func member(lane domain.Lane, taskID string) string {
	return string(lane) + ":" + taskID
}

// EntryKey возвращает ключ записи "dlq:{lane}:{taskId}".
func EntryKey(lane domain.Lane, taskID string) string {
	return keyPrefix + member(lane, taskID)
}

// Add сохраняет запись в архив.
func (a *Archive) Add(ctx context.Context, entry *domain.DeadLetterEntry) error {
	if entry.TaskID == "" {
		entry.TaskID = uuid.New().String()
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = a.now()
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	trimmed, err := addScript.Run(ctx, a.rdb,
		[]string{EntryKey(entry.Lane, entry.TaskID), indexKey},
		body,
		int64(a.ttl/time.Second),
		entry.FailedAt.UnixMilli(),
		member(entry.Lane, entry.TaskID),
		a.maxEntries,
		keyPrefix,
	).Int64()
	if err != nil {
		return fmt.Errorf("add dead letter: %w", err)
	}

	telemetry.DeadLetters.WithLabelValues(string(entry.Lane)).Inc()
	a.logger.Warn("task moved to dead letter archive",
		"lane", entry.Lane,
		"task_id", entry.TaskID,
		"type", entry.TaskType,
		"idempotency_key", entry.IdempotencyKey,
		"attempts", entry.Attempts,
		"reason", entry.Reason,
	)
	if trimmed > 0 {
		a.logger.Info("dead letter index trimmed", "removed", trimmed)
	}

	return nil
}

// pruneExpired убирает из индекса записи старше TTL.
func (a *Archive) pruneExpired(ctx context.Context) error {
	cutoff := a.now().Add(-a.ttl).UnixMilli()
	return a.rdb.ZRemRangeByScore(ctx, indexKey, "-inf", "("+strconv.FormatInt(cutoff, 10)).Err()
}

// List возвращает записи от новых к старым.
func (a *Archive) List(ctx context.Context, limit, offset int) ([]domain.DeadLetterEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	if err := a.pruneExpired(ctx); err != nil {
		return nil, fmt.Errorf("prune dead letters: %w", err)
	}

	members, err := a.rdb.ZRevRange(ctx, indexKey, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list dead letter index: %w", err)
	}
	if len(members) == 0 {
		return []domain.DeadLetterEntry{}, nil
	}

	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = keyPrefix + m
	}

	values, err := a.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load dead letters: %w", err)
	}

	entries := make([]domain.DeadLetterEntry, 0, len(values))
	var stale []any
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Ключ истёк раньше индекса
			stale = append(stale, members[i])
			continue
		}

		var e domain.DeadLetterEntry
		if err := json.Unmarshal([]byte(s), &e); err != nil {
			a.logger.Warn("corrupt dead letter entry", "key", keys[i], "error", err)
			continue
		}
		entries = append(entries, e)
	}

	if len(stale) > 0 {
		a.rdb.ZRem(ctx, indexKey, stale...)
	}

	return entries, nil
}

// Get возвращает одну запись.
func (a *Archive) Get(ctx context.Context, lane domain.Lane, taskID string) (*domain.DeadLetterEntry, error) {
	body, err := a.rdb.Get(ctx, EntryKey(lane, taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dead letter: %w", err)
	}

	var e domain.DeadLetterEntry
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("unmarshal dead letter: %w", err)
	}
	return &e, nil
}

// Count возвращает число записей в архиве.
func (a *Archive) Count(ctx context.Context) (int64, error) {
	if err := a.pruneExpired(ctx); err != nil {
		return 0, fmt.Errorf("prune dead letters: %w", err)
	}

	n, err := a.rdb.ZCard(ctx, indexKey).Result()
	if err != nil {
		return 0, fmt.Errorf("count dead letters: %w", err)
	}
	return n, nil
}

// Delete удаляет одну запись.
func (a *Archive) Delete(ctx context.Context, lane domain.Lane, taskID string) error {
	var del, zrem *redis.IntCmd

	_, err := a.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, EntryKey(lane, taskID))
		zrem = pipe.ZRem(ctx, indexKey, member(lane, taskID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete dead letter: %w", err)
	}

	if del.Val() == 0 && zrem.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// Clear удаляет все записи. Возвращает число удалённых.
func (a *Archive) Clear(ctx context.Context) (int, error) {
	members, err := a.rdb.ZRange(ctx, indexKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("list dead letter index: %w", err)
	}

	const chunk = 500
	for start := 0; start < len(members); start += chunk {
		end := min(start+chunk, len(members))
		keys := make([]string, 0, end-start)
		for _, m := range members[start:end] {
			keys = append(keys, keyPrefix+m)
		}
		if err := a.rdb.Del(ctx, keys...).Err(); err != nil {
			return 0, fmt.Errorf("clear dead letters: %w", err)
		}
	}

	if err := a.rdb.Del(ctx, indexKey).Err(); err != nil {
		return 0, fmt.Errorf("clear dead letter index: %w", err)
	}

	a.logger.Info("dead letter archive cleared", "removed", len(members))
	return len(members), nil
}
