package domain

import "time"

// Quotas — распределение прогнозов матча по исходам.
// Доли считаются от Total и в сумме дают 1 (если Total > 0).
type Quotas struct {
	Home  float64 `json:"home"`
	Draw  float64 `json:"draw"`
	Away  float64 `json:"away"`
	Total int     `json:"total"`
}

// Share возвращает долю прогнозов с исходом outcome (1, 0, -1).
func (q Quotas) Share(outcome int) float64 {
	switch outcome {
	case 1:
		return q.Home
	case -1:
		return q.Away
	default:
		return q.Draw
	}
}

// ScoreBreakdown — очки провайдера за прогноз одного матча.
type ScoreBreakdown struct {
	MatchID  string `json:"match_id"`
	Provider string `json:"provider"`

	Predicted Score `json:"predicted"`
	Actual    Score `json:"actual"`

	// ExactScore — угадан точный счёт.
	ExactScore bool `json:"exact_score"`

	// GoalDifference — угадана разница мячей.
	GoalDifference bool `json:"goal_difference"`

	// Outcome — угадан исход.
	Outcome bool `json:"outcome"`

	// Base — очки за точность.
	Base int `json:"base"`

	// Bonus — надбавка за угаданный непопулярный исход.
	Bonus int `json:"bonus"`

	// Total — Base + Bonus.
	Total int `json:"total"`
}

// Settlement — итог подсчёта очков по завершённому матчу.
type Settlement struct {
	MatchID   string           `json:"match_id"`
	Final     Score            `json:"final"`
	Quotas    Quotas           `json:"quotas"`
	Scores    []ScoreBreakdown `json:"scores"`
	SettledAt time.Time        `json:"settled_at"`
}
