// Kickoff Scheduler — промоутер отложенных задач и фоновые задачи.
//
// Scheduler:
//   - Переносит наступившие задачи из Redis в очереди lanes RabbitMQ
//   - Сверяет расписание при старте и каждые RECONCILE_INTERVAL
//   - Восстанавливает отключённых провайдеров после cooldown
//   - Запускает волны прогнозов по матчам без прогнозов
//   - Раз в сутки чистит старые попытки прогнозов
//
// Промоутер безопасно запускать в нескольких репликах: задачу забирает одна.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/shaiso/Kickoff/internal/config"
	"github.com/shaiso/Kickoff/internal/orchestrator"
	"github.com/shaiso/Kickoff/internal/providers"
	"github.com/shaiso/Kickoff/internal/queue"
	"github.com/shaiso/Kickoff/internal/repo"
	"github.com/shaiso/Kickoff/internal/resilience"
	"github.com/shaiso/Kickoff/internal/scheduler"
	"github.com/shaiso/Kickoff/internal/telemetry"
)

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting kickoff-scheduler")

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
	if err := repo.EnsureSchema(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
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
	logger.Info("task queue connected", "lanes", backends.Lanes.Names())

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
		logger.Warn("provider catalogue not loaded, prediction waves disabled", "path", cfg.ProvidersFile, "error", err)
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

	sched := scheduler.New(scheduler.Config{Queue: router, Logger: logger})
	reconciler := scheduler.NewReconciler(scheduler.ReconcilerConfig{
		Source:       matchRepo,
		Scheduler:    sched,
		Queue:        router,
		Health:       router,
		Window:       cfg.ReconcileWindow,
		Grace:        cfg.StuckGrace,
		StuckHorizon: cfg.StuckHorizon,
		Logger:       logger,
	})

	runner := scheduler.NewRunner(logger)
	jobs := []scheduler.Job{
		scheduler.ReconcileJob(reconciler, cfg.ReconcileInterval),
		scheduler.RecoverJob(breaker, logger),
		scheduler.WaveJob(scheduler.WaveJobConfig{
			Matches:   matchRepo,
			Wave:      orch,
			Providers: catalogue.Build(nil),
			Lookahead: cfg.WaveLookahead,
			Logger:    logger,
		}),
		scheduler.PruneJob(predictionRepo, cfg.AttemptRetention, logger, nil),
	}
	for _, job := range jobs {
		if err := runner.Add(job); err != nil {
			logger.Error("failed to register job", "error", err)
			os.Exit(1)
		}
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", healthz(router))
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + cfg.SchedulerPort,
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return router.Run(gctx)
	})
	g.Go(func() error {
		return runner.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler stopped with error", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Error("queue shutdown error", "error", err)
	}
	logger.Info("kickoff-scheduler stopped")
}

// healthz отвечает 503, пока брокер или Redis недоступны.
// В теле — число отложенных задач по lanes.
func healthz(router *queue.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !router.IsHealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("queue unhealthy"))
			return
		}

		pending, err := router.Pending(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("queue unhealthy"))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":  "ok",
			"pending": pending,
		})
	}
}
