package domain

// MatchStatus — статус матча в жизненном цикле.
//
// Жизненный цикл:
//
//	scheduled → live → finished
//	          ↘ postponed
//	          ↘ cancelled
//
// Статусом владеет внешний ingestion-компонент, планировщик его только читает.
type MatchStatus string

const (
	// MatchStatusScheduled — матч ещё не начался.
	MatchStatusScheduled MatchStatus = "scheduled"

	// MatchStatusLive — матч идёт.
	MatchStatusLive MatchStatus = "live"

	// MatchStatusFinished — матч завершён, можно считать очки.
	MatchStatusFinished MatchStatus = "finished"

	// MatchStatusPostponed — матч перенесён.
	MatchStatusPostponed MatchStatus = "postponed"

	// MatchStatusCancelled — матч отменён.
	MatchStatusCancelled MatchStatus = "cancelled"
)

// IsPreLive возвращает true, если матч ещё не перешёл в live.
func (s MatchStatus) IsPreLive() bool {
	return s == MatchStatusScheduled
}

// IsTerminal возвращает true, если статус финальный.
func (s MatchStatus) IsTerminal() bool {
	switch s {
	case MatchStatusFinished, MatchStatusPostponed, MatchStatusCancelled:
		return true
	default:
		return false
	}
}

// ParseMatchStatus парсит строку в MatchStatus.
// Неизвестные значения считаются scheduled.
func ParseMatchStatus(s string) MatchStatus {
	switch s {
	case "live":
		return MatchStatusLive
	case "finished":
		return MatchStatusFinished
	case "postponed":
		return MatchStatusPostponed
	case "cancelled":
		return MatchStatusCancelled
	default:
		return MatchStatusScheduled
	}
}
