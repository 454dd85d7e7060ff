// Kickoff Worker — выполняет задачи жизненного цикла матчей.
//
// Worker:
//   - Получает задачи из очередей lanes RabbitMQ (по consumer на lane)
//   - Выполняет analyze, refresh_odds, fetch_lineups, predict, monitor_live, settle
//   - Повторяет упавшие задачи в пределах таймаута lane
//   - Архивирует исчерпавшие попытки задачи в Dead Letter Archive
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Kickoff/internal/config"
	"github.com/shaiso/Kickoff/internal/deadletter"
	"github.com/shaiso/Kickoff/internal/orchestrator"
	"github.com/shaiso/Kickoff/internal/providers"
	"github.com/shaiso/Kickoff/internal/queue"
	"github.com/shaiso/Kickoff/internal/repo"
	"github.com/shaiso/Kickoff/internal/resilience"
	"github.com/shaiso/Kickoff/internal/telemetry"
	"github.com/shaiso/Kickoff/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting kickoff-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Redis + RabbitMQ
	backends, err := queue.Open(ctx, queue.OpenConfig{
		RedisAddr:   cfg.RedisAddr,
		RabbitMQURL: cfg.RabbitMQURL,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("failed to open task queue", "error", err)
		os.Exit(1)
	}
	router := backends.Router

	// Создаём репозитории
	matchRepo := repo.NewMatchRepo(pool)
	predictionRepo := repo.NewPredictionRepo(pool)

	breaker := resilience.NewBreaker(resilience.BreakerConfig{
		Store:            repo.NewHealthRepo(pool),
		DisableThreshold: cfg.DisableThreshold,
		Cooldown:         cfg.Cooldown,
		RecoverPartial:   cfg.RecoverPartial,
		Logger:           logger,
	})

	catalogue, err := providers.LoadCatalogue(cfg.ProvidersFile)
	if err != nil {
		logger.Warn("provider catalogue not loaded, predict tasks will be skipped", "path", cfg.ProvidersFile, "error", err)
		catalogue = &providers.Catalogue{}
	}

	orch := orchestrator.New(orchestrator.Config{
		Predictions: predictionRepo,
		Attempts:    predictionRepo,
		Usage:       predictionRepo,
		Health:      breaker,
		BatchSize:   cfg.WaveBatchSize,
		Concurrency: cfg.WaveConcurrency,
		Budget:      cfg.WaveBudget,
		MaxAttempts: cfg.WaveMaxAttempts,
		Logger:      logger,
	})

	archive := deadletter.New(deadletter.Config{
		Redis:      backends.Redis,
		TTL:        cfg.DLQTTL,
		MaxEntries: cfg.DLQMaxEntries,
		Logger:     logger,
	})

	registry := worker.NewLifecycleRegistry(worker.Dependencies{
		Feed:        providers.NewFeedClient(cfg.FeedURL, cfg.FeedAPIKey, nil),
		Matches:     matchRepo,
		Predictions: predictionRepo,
		Settlements: repo.NewSettlementRepo(pool),
		Health:      breaker,
		Wave:        orch,
		Providers:   catalogue.Build(nil),
		Queue:       router,
		Logger:      logger,
	})

	// Создаём worker
	w := worker.New(worker.Config{
		Conn:     backends.Conn,
		Lanes:    backends.Lanes,
		Registry: registry,
		Done:     router,
		Archive:  archive,
		Logger:   logger,
	})

	// Запускаем worker
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if !router.IsHealthy() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			rw.Write([]byte("queue unhealthy"))
			return
		}
		rw.WriteHeader(http.StatusOK)
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + cfg.WorkerPort,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем worker, затем закрываем соединения
	w.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", "error", err)
	}
	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Error("queue shutdown error", "error", err)
	}
	logger.Info("kickoff-worker stopped")
}
