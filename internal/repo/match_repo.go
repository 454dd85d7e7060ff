package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Kickoff/internal/domain"
)

// Виды данных матча, которые загружают задачи жизненного цикла.
const (
	DataAnalysis = "analysis"
	DataOdds     = "odds"
	DataLineups  = "lineups"
	DataLive     = "live"
)

// MatchRepo — репозиторий матчей и загруженных по ним данных.
type MatchRepo struct {
	pool *pgxpool.Pool
}

// NewMatchRepo создаёт новый MatchRepo.
func NewMatchRepo(pool *pgxpool.Pool) *MatchRepo {
	return &MatchRepo{pool: pool}
}

const matchColumns = `id, home_team, away_team, competition, kickoff_at, status, external_id, home_score, away_score`

// GetByID возвращает матч по ID.
func (r *MatchRepo) GetByID(ctx context.Context, id string) (*domain.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	return scanMatch(r.pool.QueryRow(ctx, query, id))
}

// UpcomingMatches возвращает матчи в статусе scheduled с kickoff в пределах window.
func (r *MatchRepo) UpcomingMatches(ctx context.Context, window time.Duration) ([]domain.UpcomingMatch, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE status = 'scheduled'
		  AND kickoff_at > NOW()
		  AND kickoff_at <= NOW() + make_interval(secs => $1)
		ORDER BY kickoff_at ASC
	`
	matches, err := r.queryMatches(ctx, query, window.Seconds())
	if err != nil {
		return nil, fmt.Errorf("list upcoming matches: %w", err)
	}

	upcoming := make([]domain.UpcomingMatch, len(matches))
	for i, m := range matches {
		upcoming[i] = domain.UpcomingMatch{Match: m, Competition: m.Competition}
	}
	return upcoming, nil
}

// StuckMatches возвращает матчи, оставшиеся в scheduled, хотя kickoff
// был в (since, cutoff].
func (r *MatchRepo) StuckMatches(ctx context.Context, since, cutoff time.Time) ([]domain.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM matches
		WHERE status = 'scheduled'
		  AND kickoff_at > $1
		  AND kickoff_at <= $2
		ORDER BY kickoff_at ASC
	`
	matches, err := r.queryMatches(ctx, query, since, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stuck matches: %w", err)
	}
	return matches, nil
}

// UpdateStatus меняет статус матча.
func (r *MatchRepo) UpdateStatus(ctx context.Context, id string, status domain.MatchStatus) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE matches SET status = $2, updated_at = NOW() WHERE id = $1
	`, id, string(status))
	if err != nil {
		return fmt.Errorf("update match status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetFinalScore записывает финальный счёт и переводит матч в finished.
func (r *MatchRepo) SetFinalScore(ctx context.Context, id string, score domain.Score) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE matches
		SET home_score = $2, away_score = $3, status = 'finished', updated_at = NOW()
		WHERE id = $1
	`, id, score.Home, score.Away)
	if err != nil {
		return fmt.Errorf("set final score: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveData сохраняет (перезаписывает) данные матча вида kind.
func (r *MatchRepo) SaveData(ctx context.Context, matchID, kind string, payload json.RawMessage, fetchedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO match_data (match_id, kind, payload, fetched_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (match_id, kind) DO UPDATE
		SET payload = EXCLUDED.payload, fetched_at = EXCLUDED.fetched_at
	`, matchID, kind, []byte(payload), fetchedAt)
	if err != nil {
		return fmt.Errorf("save match data %s: %w", kind, err)
	}
	return nil
}

// HasData проверяет, загружены ли данные матча вида kind.
func (r *MatchRepo) HasData(ctx context.Context, matchID, kind string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM match_data WHERE match_id = $1 AND kind = $2)
	`, matchID, kind).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check match data %s: %w", kind, err)
	}
	return exists, nil
}

func (r *MatchRepo) queryMatches(ctx context.Context, query string, args ...any) ([]domain.Match, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []domain.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

// scanMatch читает матч из pgx.Row (pgx.Rows тоже реализует Row).
func scanMatch(row pgx.Row) (*domain.Match, error) {
	var m domain.Match
	var competition, externalID *string
	var status string

	err := row.Scan(
		&m.ID,
		&m.HomeTeam,
		&m.AwayTeam,
		&competition,
		&m.KickoffAt,
		&status,
		&externalID,
		&m.HomeScore,
		&m.AwayScore,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan match: %w", err)
	}

	m.Competition = derefString(competition)
	m.ExternalID = derefString(externalID)
	m.Status = domain.ParseMatchStatus(status)
	return &m, nil
}
