package scheduler

import (
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
)

// Offset — одна строка таблицы смещений относительно kickoff.
type Offset struct {
	// Type — тип задачи.
	Type domain.TaskType

	// Before — за сколько до kickoff запускать. 0 — в момент kickoff.
	Before time.Duration

	// Attempt — номер попытки в ключе (0 — без номера).
	Attempt int

	// Force — выполнить даже без составов.
	Force bool

	// SkipIfPredicted — пропустить, если прогнозы уже есть.
	SkipIfPredicted bool

	// Priority — приоритет доставки.
	Priority uint8
}

// OffsetTable — задачи жизненного цикла матча.
var OffsetTable = []Offset{
	{Type: domain.TaskTypeAnalyze, Before: 6 * time.Hour, Priority: 2},
	{Type: domain.TaskTypeRefreshOdds, Before: 2 * time.Hour, Attempt: 1, Priority: 3},
	{Type: domain.TaskTypeRefreshOdds, Before: 95 * time.Minute, Attempt: 2, Priority: 3},
	{Type: domain.TaskTypeRefreshOdds, Before: 35 * time.Minute, Attempt: 3, Priority: 3},
	{Type: domain.TaskTypeRefreshOdds, Before: 10 * time.Minute, Attempt: 4, Priority: 3},
	{Type: domain.TaskTypeFetchLineups, Before: 60 * time.Minute, Priority: 4},
	{Type: domain.TaskTypePredict, Before: 90 * time.Minute, Attempt: 1, Priority: 5},
	{Type: domain.TaskTypePredict, Before: 30 * time.Minute, Attempt: 2, SkipIfPredicted: true, Priority: 5},
	{Type: domain.TaskTypePredict, Before: 5 * time.Minute, Attempt: 3, Force: true, Priority: 6},
	{Type: domain.TaskTypeMonitorLive, Before: 0, Priority: 7},
}

// Key возвращает ключ идемпотентности задачи для матча.
func (o Offset) Key(matchID string) string {
	if o.Attempt == 0 {
		return domain.IdempotencyKey(o.Type, matchID, "")
	}
	return domain.AttemptKey(o.Type, matchID, o.Attempt)
}

// FireAt возвращает абсолютное время запуска.
func (o Offset) FireAt(kickoff time.Time) time.Time {
	return kickoff.Add(-o.Before)
}

// Plan строит задачи для матча с kickoff в момент now.
//
// Задачи с наступившим временем остаются в плане только если их тип
// допускает запуск с опозданием, а матч ещё не начался. Для начавшегося
// матча план пуст.
func Plan(match *domain.Match, now time.Time) []domain.ScheduledTask {
	if match.HasStarted(now) {
		return nil
	}

	tasks := make([]domain.ScheduledTask, 0, len(OffsetTable))
	for _, o := range OffsetTable {
		fireAt := o.FireAt(match.KickoffAt)
		if !fireAt.After(now) && !o.Type.RunsLate() {
			continue
		}

		tasks = append(tasks, domain.ScheduledTask{
			Type:           o.Type,
			MatchID:        match.ID,
			FireAt:         fireAt,
			IdempotencyKey: o.Key(match.ID),
			Lane:           o.Type.Lane(),
			Priority:       o.Priority,
			Payload: domain.TaskPayload{
				MatchID:         match.ID,
				Attempt:         o.Attempt,
				Force:           o.Force,
				SkipIfPredicted: o.SkipIfPredicted,
				KickoffAt:       match.KickoffAt,
			},
		})
	}

	return tasks
}
