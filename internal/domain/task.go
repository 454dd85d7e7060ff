package domain

import (
	"fmt"
	"strconv"
	"time"
)

// TaskType — тип задачи жизненного цикла матча.
type TaskType string

const (
	// TaskTypeAnalyze — предматчевый анализ (K-6h).
	TaskTypeAnalyze TaskType = "analyze"

	// TaskTypeRefreshOdds — обновление коэффициентов.
	TaskTypeRefreshOdds TaskType = "refresh_odds"

	// TaskTypeFetchLineups — загрузка составов (K-60m).
	TaskTypeFetchLineups TaskType = "fetch_lineups"

	// TaskTypePredict — попытка прогноза (attempt 1..3).
	TaskTypePredict TaskType = "predict"

	// TaskTypeMonitorLive — опрос live-счёта начиная с K.
	TaskTypeMonitorLive TaskType = "monitor_live"

	// TaskTypeSettle — подсчёт очков по завершённому матчу (ровно один раз).
	TaskTypeSettle TaskType = "settle"
)

// AllTaskTypes — все известные типы задач.
var AllTaskTypes = []TaskType{
	TaskTypeAnalyze,
	TaskTypeRefreshOdds,
	TaskTypeFetchLineups,
	TaskTypePredict,
	TaskTypeMonitorLive,
	TaskTypeSettle,
}

// RunsLate возвращает true, если задачу имеет смысл запустить с опозданием,
// пока матч ещё не начался (окно прошло, но kickoff впереди).
func (t TaskType) RunsLate() bool {
	switch t {
	case TaskTypeAnalyze, TaskTypeRefreshOdds, TaskTypeFetchLineups, TaskTypePredict:
		return true
	default:
		return false
	}
}

// Lane возвращает очередь, в которой исполняется задача этого типа.
func (t TaskType) Lane() Lane {
	switch t {
	case TaskTypeAnalyze:
		return LaneAnalysis
	case TaskTypeRefreshOdds:
		return LaneOdds
	case TaskTypeFetchLineups:
		return LaneLineups
	case TaskTypePredict:
		return LanePredictions
	case TaskTypeMonitorLive:
		return LaneLive
	case TaskTypeSettle:
		return LaneSettlement
	default:
		return ""
	}
}

// ParseTaskType парсит строку в TaskType.
func ParseTaskType(s string) (TaskType, error) {
	for _, t := range AllTaskTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// Lane — изолированная очередь исполнения для семейства задач.
type Lane string

const (
	LaneAnalysis    Lane = "analysis"
	LaneOdds        Lane = "odds"
	LaneLineups     Lane = "lineups"
	LanePredictions Lane = "predictions"
	LaneLive        Lane = "live"
	LaneSettlement  Lane = "settlement"
)

// AllLanes — все очереди в порядке объявления.
var AllLanes = []Lane{
	LaneAnalysis,
	LaneOdds,
	LaneLineups,
	LanePredictions,
	LaneLive,
	LaneSettlement,
}

// IdempotencyKey строит детерминированный ключ задачи.
//
// Формат: "{taskType}-{matchId}" или "{taskType}-{attempt}-{matchId}".
// Пустой attempt означает задачу без номера попытки.
func IdempotencyKey(taskType TaskType, matchID string, attempt string) string {
	if attempt == "" {
		return fmt.Sprintf("%s-%s", taskType, matchID)
	}
	return fmt.Sprintf("%s-%s-%s", taskType, attempt, matchID)
}

// AttemptKey — ключ для пронумерованной попытки.
func AttemptKey(taskType TaskType, matchID string, attempt int) string {
	return IdempotencyKey(taskType, matchID, strconv.Itoa(attempt))
}

// TaskPayload — полезная нагрузка задачи, которая уходит в очередь.
type TaskPayload struct {
	// MatchID — матч, к которому относится задача.
	MatchID string `json:"match_id"`

	// Attempt — номер попытки (для predict: 1..3, для monitor_live: номер опроса).
	Attempt int `json:"attempt,omitempty"`

	// Force — выполнить даже при неполных данных (predict attempt 3).
	Force bool `json:"force,omitempty"`

	// SkipIfPredicted — пропустить, если прогнозы уже есть (predict attempt 2).
	SkipIfPredicted bool `json:"skip_if_predicted,omitempty"`

	// KickoffAt — время начала матча на момент планирования.
	KickoffAt time.Time `json:"kickoff_at"`

	// Final — финальный счёт (для settle).
	Final *Score `json:"final,omitempty"`
}

// ScheduledTask — задача, поставленная в очередь с абсолютным временем запуска.
//
// Жизненный цикл:
//
//	delayed → fired (брокер доставил) → done
//	        ↘ cancelled (матч перенесён / отменён)
type ScheduledTask struct {
	// Type — тип задачи.
	Type TaskType `json:"type"`

	// MatchID — матч-владелец.
	MatchID string `json:"match_id"`

	// FireAt — целевое абсолютное время запуска.
	FireAt time.Time `json:"fire_at"`

	// IdempotencyKey — детерминированный ключ (см. IdempotencyKey).
	IdempotencyKey string `json:"idempotency_key"`

	// Lane — очередь исполнения.
	Lane Lane `json:"lane"`

	// Priority — приоритет доставки (0..9, выше — раньше).
	Priority uint8 `json:"priority,omitempty"`

	// Payload — данные для исполнителя.
	Payload TaskPayload `json:"payload"`
}

// Delay возвращает задержку относительно now (может быть отрицательной).
func (t *ScheduledTask) Delay(now time.Time) time.Duration {
	return t.FireAt.Sub(now)
}
