package domain

import "time"

// Match — футбольный (или любой другой) матч, для которого строится прогноз.
//
// Match создаётся и обновляется ingestion-компонентом. Планировщик читает
// только KickoffAt и Status; счёт записывает шаг settlement.
type Match struct {
	// ID — идентификатор матча.
	ID string `json:"id"`

	// HomeTeam / AwayTeam — названия команд.
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`

	// Competition — турнир (лига, кубок).
	Competition string `json:"competition,omitempty"`

	// KickoffAt — время начала матча.
	KickoffAt time.Time `json:"kickoff_at"`

	// Status — текущий статус матча.
	Status MatchStatus `json:"status"`

	// ExternalID — идентификатор матча во внешнем источнике.
	ExternalID string `json:"external_id,omitempty"`

	// HomeScore / AwayScore — финальный счёт (после settlement).
	HomeScore *int `json:"home_score,omitempty"`
	AwayScore *int `json:"away_score,omitempty"`
}

// HasStarted проверяет, начался ли матч к моменту now.
// Матч в статусе live или позже считается начавшимся независимо от времени.
func (m *Match) HasStarted(now time.Time) bool {
	if !m.Status.IsPreLive() {
		return true
	}
	return !m.KickoffAt.After(now)
}

// UpcomingMatch — матч с названием турнира, как его отдаёт источник матчей.
type UpcomingMatch struct {
	Match       Match  `json:"match"`
	Competition string `json:"competition"`
}

// Score — счёт (прогноз или фактический).
type Score struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Outcome возвращает исход: 1 — победа хозяев, 0 — ничья, -1 — победа гостей.
func (s Score) Outcome() int {
	switch {
	case s.Home > s.Away:
		return 1
	case s.Home < s.Away:
		return -1
	default:
		return 0
	}
}
