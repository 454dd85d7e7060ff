package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Recurrence — периодичность фоновой задачи: шаг от опорной точки
// в заданной таймзоне. Реализует cron.Schedule.
type Recurrence struct {
	// Interval — шаг повторения.
	Interval time.Duration

	// Anchor — опорная точка. Нулевая — полночь текущего дня в Timezone.
	Anchor time.Time

	// Timezone — таймзона опорной точки (default: UTC).
	Timezone *time.Location
}

// Every возвращает Recurrence с шагом d от полуночи UTC.
func Every(d time.Duration) Recurrence {
	return Recurrence{Interval: d}
}

// DailyAt возвращает ежедневную Recurrence в hour:minute указанной таймзоны.
func DailyAt(hour, minute int, tz *time.Location) Recurrence {
	if tz == nil {
		tz = time.UTC
	}
	return Recurrence{
		Interval: 24 * time.Hour,
		Anchor:   time.Date(2000, time.January, 1, hour, minute, 0, 0, tz),
		Timezone: tz,
	}
}

// Validate проверяет Recurrence.
func (r Recurrence) Validate() error {
	if r.Interval < time.Second {
		return fmt.Errorf("recurrence interval %s is shorter than 1s", r.Interval)
	}
	return nil
}

// Next возвращает первое срабатывание строго после t.
func (r Recurrence) Next(t time.Time) time.Time {
	loc := r.Timezone
	if loc == nil {
		loc = time.UTC
	}
	t = t.In(loc)

	anchor := r.Anchor
	if anchor.IsZero() {
		anchor = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	} else {
		anchor = anchor.In(loc)
	}

	if t.Before(anchor) {
		return anchor
	}

	steps := t.Sub(anchor)/r.Interval + 1
	return anchor.Add(steps * r.Interval)
}

// String возвращает описание для логов.
func (r Recurrence) String() string {
	if r.Anchor.IsZero() {
		return "every " + r.Interval.String()
	}
	return fmt.Sprintf("every %s from %s", r.Interval, r.Anchor.Format("15:04 MST"))
}

var _ cron.Schedule = Recurrence{}

// Job — фоновая задача Runner.
type Job struct {
	// Name — имя для логов.
	Name string

	// Every — периодичность.
	Every Recurrence

	// RunOnStart — выполнить сразу при старте Runner.
	RunOnStart bool

	// Timeout — предел одного запуска (0 — без предела).
	Timeout time.Duration

	// Run — тело задачи.
	Run func(ctx context.Context) error
}

// Runner запускает фоновые задачи по Recurrence поверх robfig/cron.
// Следующий запуск задачи пропускается, пока не завершился предыдущий.
type Runner struct {
	cron   *cron.Cron
	logger *slog.Logger
	jobs   []Job

	// onStart — запуски RunOnStart вне cron.
	onStart sync.WaitGroup
}

// NewRunner создаёт новый Runner.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	cl := cronLogger{logger: logger}
	return &Runner{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
	}
}

// Add регистрирует задачу.
func (r *Runner) Add(job Job) error {
	if err := job.Every.Validate(); err != nil {
		return fmt.Errorf("job %s: %w", job.Name, err)
	}
	if job.Run == nil {
		return fmt.Errorf("job %s: nil run func", job.Name)
	}
	r.jobs = append(r.jobs, job)
	return nil
}

// Run запускает задачи и блокируется до отмены контекста.
// Перед выходом дожидается завершения текущих запусков, включая стартовые.
func (r *Runner) Run(ctx context.Context) error {
	for _, job := range r.jobs {
		job := job
		r.cron.Schedule(job.Every, cron.FuncJob(func() {
			r.runJob(ctx, job)
		}))
		r.logger.Info("periodic job registered", "job", job.Name, "every", job.Every.String())
	}

	r.cron.Start()

	for _, job := range r.jobs {
		if job.RunOnStart {
			r.onStart.Add(1)
			go func() {
				defer r.onStart.Done()
				r.runJob(ctx, job)
			}()
		}
	}

	<-ctx.Done()
	<-r.cron.Stop().Done()
	r.onStart.Wait()
	return ctx.Err()
}

// runJob выполняет один запуск с таймаутом и логированием.
func (r *Runner) runJob(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}

	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	if err := job.Run(ctx); err != nil {
		r.logger.Error("periodic job failed",
			"job", job.Name,
			"duration", time.Since(start),
			"error", err,
		)
		return
	}

	r.logger.Debug("periodic job completed", "job", job.Name, "duration", time.Since(start))
}

// cronLogger адаптирует slog к cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
