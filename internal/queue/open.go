package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/shaiso/Kickoff/internal/mq"
	"github.com/shaiso/Kickoff/internal/telemetry"
)

// OpenConfig — адреса брокеров для Open.
type OpenConfig struct {
	RedisAddr   string
	RabbitMQURL string

	// Lanes — конфигурация lanes (default: DefaultLanes()).
	Lanes []LaneConfig

	Logger *slog.Logger
}

// Backends — соединения, общие для процессов Kickoff.
// Router.Shutdown закрывает и RabbitMQ, и Redis.
type Backends struct {
	Redis  *redis.Client
	Conn   *mq.Connection
	Lanes  *LaneSet
	Router *Router
}

// Open подключается к Redis и RabbitMQ, объявляет топологию lanes
// и собирает Router поверх них.
func Open(ctx context.Context, cfg OpenConfig) (*Backends, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	configs := cfg.Lanes
	if len(configs) == 0 {
		configs = DefaultLanes()
	}
	lanes, err := NewLaneSet(configs)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	conn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		rdb.Close()
		return nil, fmt.Errorf("rabbitmq connect: %w", err)
	}
	conn.OnHealthChange(brokerHealthReporter(logger))

	if err := mq.SetupTopology(ctx, conn, lanes.Queues()); err != nil {
		conn.Close()
		rdb.Close()
		return nil, fmt.Errorf("setup topology: %w", err)
	}

	router := New(Config{
		Lanes:     lanes,
		Store:     NewStore(rdb),
		Publisher: mq.NewPublisher(conn, logger),
		Closers:   []io.Closer{conn, rdb},
		Logger:    logger,
	})

	return &Backends{
		Redis:  rdb,
		Conn:   conn,
		Lanes:  lanes,
		Router: router,
	}, nil
}

// brokerHealthReporter переносит смену состояния соединения RabbitMQ в метрику и лог.
func brokerHealthReporter(logger *slog.Logger) func(bool) {
	return func(healthy bool) {
		if healthy {
			telemetry.RabbitMQConnected.Set(1)
			logger.Info("rabbitmq connection healthy")
			return
		}
		telemetry.RabbitMQConnected.Set(0)
		logger.Warn("rabbitmq connection lost")
	}
}
