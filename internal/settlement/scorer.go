// Package settlement считает очки провайдеров по завершённому матчу.
package settlement

import (
	"math"

	"github.com/shaiso/Kickoff/internal/domain"
)

// Очки за точность прогноза.
const (
	PointsExactScore     = 5
	PointsGoalDifference = 3
	PointsOutcome        = 2

	// MaxBonus — надбавка за исход, который не предсказал никто, кроме провайдера.
	MaxBonus = 3
)

// Scorer — функции подсчёта очков. Реализации должны быть чистыми.
type Scorer interface {
	CalculateQuotas(predictions []domain.Prediction) domain.Quotas
	CalculateScores(prediction domain.Prediction, actual domain.Score, quotas domain.Quotas) domain.ScoreBreakdown
}

// DefaultScorer — подсчёт по точности с надбавкой за непопулярный исход.
type DefaultScorer struct{}

var _ Scorer = DefaultScorer{}

// CalculateQuotas считает доли прогнозов по исходам.
func (DefaultScorer) CalculateQuotas(predictions []domain.Prediction) domain.Quotas {
	q := domain.Quotas{Total: len(predictions)}
	if q.Total == 0 {
		return q
	}

	var home, draw, away int
	for _, p := range predictions {
		switch p.Score.Outcome() {
		case 1:
			home++
		case -1:
			away++
		default:
			draw++
		}
	}

	total := float64(q.Total)
	q.Home = float64(home) / total
	q.Draw = float64(draw) / total
	q.Away = float64(away) / total
	return q
}

// CalculateScores считает очки прогноза.
//
// Base: точный счёт 5, разница мячей 3, исход 2, иначе 0.
// Bonus начисляется только за угаданный исход: round((1 − доля исхода) × MaxBonus).
func (DefaultScorer) CalculateScores(prediction domain.Prediction, actual domain.Score, quotas domain.Quotas) domain.ScoreBreakdown {
	predicted := prediction.Score
	b := domain.ScoreBreakdown{
		MatchID:   prediction.MatchID,
		Provider:  prediction.Provider,
		Predicted: predicted,
		Actual:    actual,
	}

	b.Outcome = predicted.Outcome() == actual.Outcome()
	b.GoalDifference = predicted.Home-predicted.Away == actual.Home-actual.Away
	b.ExactScore = predicted == actual

	switch {
	case b.ExactScore:
		b.Base = PointsExactScore
	case b.GoalDifference:
		b.Base = PointsGoalDifference
	case b.Outcome:
		b.Base = PointsOutcome
	}

	if b.Outcome && quotas.Total > 0 {
		share := quotas.Share(actual.Outcome())
		b.Bonus = int(math.Round((1 - share) * MaxBonus))
	}

	b.Total = b.Base + b.Bonus
	return b
}

// Settle считает итог матча по всем прогнозам.
func Settle(s Scorer, matchID string, final domain.Score, predictions []domain.Prediction) domain.Settlement {
	quotas := s.CalculateQuotas(predictions)

	result := domain.Settlement{
		MatchID: matchID,
		Final:   final,
		Quotas:  quotas,
		Scores:  make([]domain.ScoreBreakdown, 0, len(predictions)),
	}
	for _, p := range predictions {
		result.Scores = append(result.Scores, s.CalculateScores(p, final, quotas))
	}
	return result
}
