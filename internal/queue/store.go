package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Kickoff/internal/domain"
)

// Job — отложенная задача в хранилище lane.
type Job struct {
	ID             string          `json:"id"`
	Lane           domain.Lane     `json:"lane"`
	Type           domain.TaskType `json:"type"`
	IdempotencyKey string          `json:"idempotency_key"`
	Priority       uint8           `json:"priority,omitempty"`
	FireAt         time.Time       `json:"fire_at"`
	Payload        json.RawMessage `json:"payload"`
}

// Store — хранилище отложенных задач в Redis.
//
// На каждую lane:
//   - kickoff:delayed:{lane} — sorted set, member = ключ задачи, score = время запуска (ms)
//   - kickoff:jobs:{lane}    — hash ключ → JSON задачи
//   - kickoff:idem:{lane}:{key} — маркер идемпотентности с TTL
//   - kickoff:done:{lane}:{key} — маркер выполненной задачи
type Store struct {
	rdb     *redis.Client
	healthy atomic.Bool
}

// NewStore создаёт Store поверх клиента Redis.
func NewStore(rdb *redis.Client) *Store {
	s := &Store{rdb: rdb}
	s.healthy.Store(true)
	return s
}

func markerKey(lane domain.Lane, key string) string {
	return "kickoff:idem:" + string(lane) + ":" + key
}

func doneKey(lane domain.Lane, key string) string {
	return "kickoff:done:" + string(lane) + ":" + key
}

// observe обновляет флаг здоровья по результату операции.
func (s *Store) observe(err error) error {
	if err == nil || errors.Is(err, redis.Nil) {
		s.healthy.Store(true)
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	s.healthy.Store(false)
	return err
}

// IsHealthy возвращает флаг здоровья по последней операции.
func (s *Store) IsHealthy() bool {
	return s.healthy.Load()
}

// Ping проверяет соединение и обновляет флаг здоровья.
func (s *Store) Ping(ctx context.Context) error {
	return s.observe(s.rdb.Ping(ctx).Err())
}

// Add кладёт задачу в lane, если её ключ ещё не занят.
// Возвращает false для дубликата.
func (s *Store) Add(ctx context.Context, l *Lane, job *Job, markerTTL time.Duration) (bool, error) {
	created, err := s.rdb.SetNX(ctx, markerKey(l.Name(), job.IdempotencyKey), job.ID, markerTTL).Result()
	if s.observe(err) != nil {
		return false, fmt.Errorf("set idempotency marker: %w", err)
	}
	if !created {
		return false, nil
	}

	body, err := json.Marshal(job)
	if err != nil {
		s.rdb.Del(ctx, markerKey(l.Name(), job.IdempotencyKey))
		return false, fmt.Errorf("marshal job: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, l.jobsKey, job.IdempotencyKey, body)
		pipe.ZAdd(ctx, l.delayedKey, redis.Z{
			Score:  float64(job.FireAt.UnixMilli()),
			Member: job.IdempotencyKey,
		})
		return nil
	})
	if s.observe(err) != nil {
		// Маркер без задачи заблокировал бы повторную постановку
		s.rdb.Del(ctx, markerKey(l.Name(), job.IdempotencyKey))
		return false, fmt.Errorf("store delayed job: %w", err)
	}

	return true, nil
}

// Remove удаляет отложенную задачу, её маркер и отметку о выполнении,
// чтобы задачу с тем же ключом можно было поставить заново.
// Возвращает true, если задача ещё ждала запуска.
func (s *Store) Remove(ctx context.Context, l *Lane, key string) (bool, error) {
	var zrem *redis.IntCmd

	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		zrem = pipe.ZRem(ctx, l.delayedKey, key)
		pipe.HDel(ctx, l.jobsKey, key)
		pipe.Del(ctx, markerKey(l.Name(), key), doneKey(l.Name(), key))
		return nil
	})
	if s.observe(err) != nil {
		return false, fmt.Errorf("remove delayed job: %w", err)
	}

	return zrem.Val() > 0, nil
}

// Due возвращает ключи задач, время которых наступило.
func (s *Store) Due(ctx context.Context, l *Lane, now time.Time, limit int64) ([]string, error) {
	keys, err := s.rdb.ZRangeByScore(ctx, l.delayedKey, &redis.ZRangeBy{
		Min:    "-inf",
		Max:    strconv.FormatInt(now.UnixMilli(), 10),
		Offset: 0,
		Count:  limit,
	}).Result()
	if s.observe(err) != nil {
		return nil, fmt.Errorf("range due jobs: %w", err)
	}
	return keys, nil
}

// Claim забирает задачу из отложенных. ZREM выигрывает ровно один вызывающий,
// поэтому несколько промоутеров не опубликуют задачу дважды.
func (s *Store) Claim(ctx context.Context, l *Lane, key string) (*Job, bool, error) {
	removed, err := s.rdb.ZRem(ctx, l.delayedKey, key).Result()
	if s.observe(err) != nil {
		return nil, false, fmt.Errorf("claim job: %w", err)
	}
	if removed == 0 {
		return nil, false, nil
	}

	var get *redis.StringCmd
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.HGet(ctx, l.jobsKey, key)
		pipe.HDel(ctx, l.jobsKey, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		s.observe(err)
		return nil, false, fmt.Errorf("load claimed job: %w", err)
	}

	body, err := get.Bytes()
	if err != nil {
		// Задачу отменили между ZREM и HGET
		return nil, false, nil
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, false, fmt.Errorf("unmarshal job %s: %w", key, err)
	}

	return &job, true, nil
}

// Requeue возвращает задачу в отложенные (после неудачной публикации).
func (s *Store) Requeue(ctx context.Context, l *Lane, job *Job, fireAt time.Time) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, l.jobsKey, job.IdempotencyKey, body)
		pipe.ZAdd(ctx, l.delayedKey, redis.Z{
			Score:  float64(fireAt.UnixMilli()),
			Member: job.IdempotencyKey,
		})
		return nil
	})
	if s.observe(err) != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}

// Pending возвращает число отложенных задач lane.
func (s *Store) Pending(ctx context.Context, l *Lane) (int64, error) {
	n, err := s.rdb.ZCard(ctx, l.delayedKey).Result()
	if s.observe(err) != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

// MarkDone помечает задачу выполненной.
func (s *Store) MarkDone(ctx context.Context, lane domain.Lane, key string, ttl time.Duration) error {
	err := s.rdb.Set(ctx, doneKey(lane, key), time.Now().UTC().Format(time.RFC3339), ttl).Err()
	if s.observe(err) != nil {
		return fmt.Errorf("mark done: %w", err)
	}
	return nil
}

// IsDone проверяет маркер выполненной задачи.
func (s *Store) IsDone(ctx context.Context, lane domain.Lane, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, doneKey(lane, key)).Result()
	if s.observe(err) != nil {
		return false, fmt.Errorf("check done: %w", err)
	}
	return n > 0, nil
}

// Close закрывает клиент Redis.
func (s *Store) Close() error {
	s.healthy.Store(false)
	return s.rdb.Close()
}
