package queue

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/mq"
)

// lockSlack — на сколько lock duration по умолчанию длиннее timeout.
const lockSlack = 30 * time.Second

// LaneConfig — политика одной lane.
type LaneConfig struct {
	// Name — имя lane.
	Name domain.Lane

	// Timeout — сколько может выполняться одна задача.
	Timeout time.Duration

	// Lock — сколько задача невидима для повторной доставки. Должен быть >= Timeout.
	Lock time.Duration

	// MaxAttempts — сколько раз воркер пытается выполнить задачу до DLQ.
	MaxAttempts int

	// Concurrency — сколько задач lane воркер выполняет одновременно.
	Concurrency int
}

// Validate проверяет конфигурацию lane.
func (c LaneConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidLane)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: %s: timeout must be positive", ErrInvalidLane, c.Name)
	}
	if c.Lock < c.Timeout {
		return fmt.Errorf("%w: %s: lock %s shorter than timeout %s", ErrInvalidLane, c.Name, c.Lock, c.Timeout)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("%w: %s: max attempts must be positive", ErrInvalidLane, c.Name)
	}
	return nil
}

// laneDefault собирает конфигурацию с lock = timeout + lockSlack.
func laneDefault(name domain.Lane, timeout time.Duration, attempts, concurrency int) LaneConfig {
	return LaneConfig{
		Name:        name,
		Timeout:     timeout,
		Lock:        timeout + lockSlack,
		MaxAttempts: attempts,
		Concurrency: concurrency,
	}
}

// DefaultLanes возвращает конфигурацию lanes по умолчанию.
//
// Быстрые lanes (odds, lineups, live) — 2 минуты, analysis — 3, settlement — 5,
// predictions — 10 минут: вызовы провайдеров медленные.
func DefaultLanes() []LaneConfig {
	return []LaneConfig{
		laneDefault(domain.LaneAnalysis, 3*time.Minute, 3, 2),
		laneDefault(domain.LaneOdds, 2*time.Minute, 3, 4),
		laneDefault(domain.LaneLineups, 2*time.Minute, 3, 4),
		laneDefault(domain.LanePredictions, 10*time.Minute, 2, 1),
		laneDefault(domain.LaneLive, 2*time.Minute, 3, 4),
		laneDefault(domain.LaneSettlement, 5*time.Minute, 5, 1),
	}
}

// Lane — объявленная lane с вычисленными ключами хранилища.
type Lane struct {
	Config LaneConfig

	delayedKey string
	jobsKey    string
}

// Name возвращает имя lane.
func (l *Lane) Name() domain.Lane {
	return l.Config.Name
}

// Queue возвращает описание очереди RabbitMQ для lane.
func (l *Lane) Queue() mq.LaneQueue {
	return mq.LaneQueue{Lane: string(l.Config.Name), ConsumerTimeout: l.Config.Lock}
}

// LaneSet — фиксированный набор lanes с ленивым созданием объектов Lane.
type LaneSet struct {
	configs map[domain.Lane]LaneConfig

	mu    sync.Mutex
	lanes map[domain.Lane]*Lane
}

// NewLaneSet проверяет конфигурации и создаёт LaneSet.
func NewLaneSet(configs []LaneConfig) (*LaneSet, error) {
	set := &LaneSet{
		configs: make(map[domain.Lane]LaneConfig, len(configs)),
		lanes:   make(map[domain.Lane]*Lane, len(configs)),
	}

	for _, c := range configs {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if c.Concurrency <= 0 {
			c.Concurrency = 1
		}
		if _, dup := set.configs[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate lane %s", ErrInvalidLane, c.Name)
		}
		set.configs[c.Name] = c
	}

	return set, nil
}

// GetOrCreateLane возвращает lane по имени, создавая её при первом обращении.
func (s *LaneSet) GetOrCreateLane(name domain.Lane) (*Lane, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.lanes[name]; ok {
		return l, nil
	}

	cfg, ok := s.configs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownLane, name)
	}

	l := &Lane{
		Config:     cfg,
		delayedKey: "kickoff:delayed:" + string(name),
		jobsKey:    "kickoff:jobs:" + string(name),
	}
	s.lanes[name] = l

	return l, nil
}

// Names возвращает имена lanes в стабильном порядке.
func (s *LaneSet) Names() []domain.Lane {
	names := make([]domain.Lane, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// Queues возвращает описания очередей RabbitMQ для всех lanes.
func (s *LaneSet) Queues() []mq.LaneQueue {
	names := s.Names()
	queues := make([]mq.LaneQueue, 0, len(names))
	for _, name := range names {
		queues = append(queues, mq.LaneQueue{Lane: string(name), ConsumerTimeout: s.configs[name].Lock})
	}
	return queues
}

// Config возвращает конфигурацию lane.
func (s *LaneSet) Config(name domain.Lane) (LaneConfig, bool) {
	cfg, ok := s.configs[name]
	return cfg, ok
}
