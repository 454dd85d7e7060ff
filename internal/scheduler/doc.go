// Package scheduler планирует задачи жизненного цикла матча.
//
// Структура:
//   - offsets.go    — таблица смещений относительно kickoff, Plan
//   - scheduler.go  — ScheduleMatchTasks / CancelMatchTasks
//   - reconciler.go — Catch-Up Reconciler (окно 48h + застрявшие матчи)
//   - recurrence.go — Recurrence (интервал + опорная точка + таймзона) и Runner
//
// Использование:
//
//	sched := scheduler.New(scheduler.Config{
//	    Queue:  router,
//	    Logger: logger,
//	})
//
//	n, err := sched.ScheduleMatchTasks(ctx, match)
//
// Идемпотентность обеспечивает Queue Router: повторная постановка
// задачи с тем же ключом — no-op. Поэтому ScheduleMatchTasks и Reconcile
// безопасно вызывать повторно и параллельно с нескольких реплик.
package scheduler
