package orchestrator

import (
	"sync"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
)

// Исход пары (матч, провайдер) в волне.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeGaveUp    = "gave_up"
	OutcomeSkipped   = "skipped"
)

// ProviderResult — итог волны по одному провайдеру.
type ProviderResult struct {
	Provider string `json:"provider"`

	// Batches — число батчей, по которым был сделан хотя бы один вызов.
	Batches int `json:"batches"`

	// Calls — число вызовов провайдера, включая повторы.
	Calls int `json:"calls"`

	// Retries — число повторов.
	Retries int `json:"retries"`

	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	GaveUp    int `json:"gave_up"`
	Skipped   int `json:"skipped"`

	// CostUSD — суммарная стоимость вызовов.
	CostUSD float64 `json:"cost_usd"`

	// Disabled — провайдер был отключён (до или во время волны).
	Disabled bool `json:"disabled"`

	// LastError — последняя ошибка провайдера.
	LastError string `json:"last_error,omitempty"`
}

// WaveSummary — структурированный итог волны.
type WaveSummary struct {
	Matches   int `json:"matches"`
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	GaveUp    int `json:"gave_up"`
	Skipped   int `json:"skipped"`

	// BudgetExhausted — часть работы брошена по бюджету времени.
	BudgetExhausted bool `json:"budget_exhausted"`

	Duration time.Duration `json:"duration"`

	Providers map[string]*ProviderResult `json:"providers"`
}

// pairKey — ключ пары (матч, провайдер).
type pairKey struct {
	matchID  string
	provider string
}

// waveState — состояние одной волны.
//
// Снимок прогнозов и попыток читается один раз в начале волны и дальше
// только читается. Итоги провайдеров пишутся горутинами провайдеров.
type waveState struct {
	deadline time.Time

	predicted map[string]map[string]bool
	attempts  map[pairKey]int

	maxAttempts      int
	ignoreAttemptCap bool

	mu      sync.Mutex
	results map[string]*ProviderResult
}

func newWaveState(deadline time.Time, predicted map[string]map[string]bool, attempts []domain.PredictionAttempt, maxAttempts int, ignoreCap bool) *waveState {
	if predicted == nil {
		predicted = make(map[string]map[string]bool)
	}

	counts := make(map[pairKey]int, len(attempts))
	for _, a := range attempts {
		counts[pairKey{a.MatchID, a.Provider}] = a.Attempts
	}

	return &waveState{
		deadline:         deadline,
		predicted:        predicted,
		attempts:         counts,
		maxAttempts:      maxAttempts,
		ignoreAttemptCap: ignoreCap,
		results:          make(map[string]*ProviderResult),
	}
}

// pending разделяет матчи провайдера на нуждающиеся в прогнозе и пропускаемые:
// уже предсказанные и исчерпавшие лимит попыток.
func (s *waveState) pending(provider string, matches []domain.Match) (todo []domain.Match, skipped int) {
	for _, m := range matches {
		if s.predicted[m.ID][provider] {
			skipped++
			continue
		}
		if !s.ignoreAttemptCap && s.maxAttempts > 0 && s.attempts[pairKey{m.ID, provider}] >= s.maxAttempts {
			skipped++
			continue
		}
		todo = append(todo, m)
	}
	return todo, skipped
}

// result возвращает (создавая) итог провайдера.
func (s *waveState) result(provider string) *ProviderResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[provider]
	if !ok {
		r = &ProviderResult{Provider: provider}
		s.results[provider] = r
	}
	return r
}

// summary собирает итог волны.
func (s *waveState) summary(matches int, duration time.Duration) *WaveSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := &WaveSummary{
		Matches:   matches,
		Duration:  duration,
		Providers: make(map[string]*ProviderResult, len(s.results)),
	}
	for name, r := range s.results {
		sum.Providers[name] = r
		sum.Attempted += r.Attempted
		sum.Succeeded += r.Succeeded
		sum.Failed += r.Failed
		sum.GaveUp += r.GaveUp
		sum.Skipped += r.Skipped
	}
	sum.BudgetExhausted = sum.GaveUp > 0
	return sum
}
