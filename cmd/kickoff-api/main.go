// Kickoff API — операторский HTTP API: Dead Letter Archive, состояние
// провайдеров, ручное планирование, отмена и сверка.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Kickoff/internal/api"
	"github.com/shaiso/Kickoff/internal/config"
	"github.com/shaiso/Kickoff/internal/deadletter"
	"github.com/shaiso/Kickoff/internal/queue"
	"github.com/shaiso/Kickoff/internal/repo"
	"github.com/shaiso/Kickoff/internal/resilience"
	"github.com/shaiso/Kickoff/internal/scheduler"
	"github.com/shaiso/Kickoff/internal/telemetry"
)

var startTime = time.Now()

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting kickoff-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

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

	matchRepo := repo.NewMatchRepo(pool)
	sched := scheduler.New(scheduler.Config{Queue: router, Logger: logger})

	// Создаём API handler
	handler := api.NewHandler(api.Config{
		DeadLetters: deadletter.New(deadletter.Config{
			Redis:      backends.Redis,
			TTL:        cfg.DLQTTL,
			MaxEntries: cfg.DLQMaxEntries,
			Logger:     logger,
		}),
		Providers: resilience.NewBreaker(resilience.BreakerConfig{
			Store:            repo.NewHealthRepo(pool),
			DisableThreshold: cfg.DisableThreshold,
			Cooldown:         cfg.Cooldown,
			RecoverPartial:   cfg.RecoverPartial,
			Logger:           logger,
		}),
		Scheduler: sched,
		Matches:   matchRepo,
		Reconciler: scheduler.NewReconciler(scheduler.ReconcilerConfig{
			Source:       matchRepo,
			Scheduler:    sched,
			Queue:        router,
			Health:       router,
			Window:       cfg.ReconcileWindow,
			Grace:        cfg.StuckGrace,
			StuckHorizon: cfg.StuckHorizon,
			Logger:       logger,
		}),
		Queue:  router,
		Logger: logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !router.IsHealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "queue unhealthy")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	// Создаём HTTP сервер с возможностью graceful shutdown
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: mux,
	}

	// Запускаем сервер в горутине
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if err := router.Shutdown(shutdownCtx); err != nil {
		logger.Error("queue shutdown error", "error", err)
	}

	logger.Info("stopped")
}
