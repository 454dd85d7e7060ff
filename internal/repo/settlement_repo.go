package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Kickoff/internal/domain"
)

// SettlementRepo — репозиторий итогов подсчёта очков.
type SettlementRepo struct {
	pool *pgxpool.Pool
}

// NewSettlementRepo создаёт новый SettlementRepo.
func NewSettlementRepo(pool *pgxpool.Pool) *SettlementRepo {
	return &SettlementRepo{pool: pool}
}

// Save сохраняет итог матча в одной транзакции.
//
// Строка матча помечается settled_at только если поле ещё NULL;
// повторный вызов возвращает ErrAlreadySettled и ничего не пишет.
func (r *SettlementRepo) Save(ctx context.Context, s domain.Settlement) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `
		UPDATE matches
		SET settled_at = $2, home_score = $3, away_score = $4, status = 'finished', updated_at = NOW()
		WHERE id = $1 AND settled_at IS NULL
	`, s.MatchID, s.SettledAt, s.Final.Home, s.Final.Away)
	if err != nil {
		return fmt.Errorf("mark match settled: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrAlreadySettled
	}

	batch := &pgx.Batch{}
	for _, sc := range s.Scores {
		batch.Queue(`
			INSERT INTO prediction_scores (match_id, provider, exact_score, goal_difference,
			                               outcome, base_points, bonus_points, total_points, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			sc.MatchID,
			sc.Provider,
			sc.ExactScore,
			sc.GoalDifference,
			sc.Outcome,
			sc.Base,
			sc.Bonus,
			sc.Total,
			s.SettledAt,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert prediction scores: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit settlement: %w", err)
	}
	return nil
}

// IsSettled проверяет, подсчитаны ли очки по матчу.
func (r *SettlementRepo) IsSettled(ctx context.Context, matchID string) (bool, error) {
	var settled bool
	err := r.pool.QueryRow(ctx, `
		SELECT settled_at IS NOT NULL FROM matches WHERE id = $1
	`, matchID).Scan(&settled)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("check settled: %w", err)
	}
	return settled, nil
}
