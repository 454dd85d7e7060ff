package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/resilience"
)

// PredictionRepo — репозиторий прогнозов и неудачных попыток.
type PredictionRepo struct {
	pool *pgxpool.Pool
}

// NewPredictionRepo создаёт новый PredictionRepo.
func NewPredictionRepo(pool *pgxpool.Pool) *PredictionRepo {
	return &PredictionRepo{pool: pool}
}

// ExistingPredictions возвращает провайдеров, уже давших прогноз, по ID матча.
func (r *PredictionRepo) ExistingPredictions(ctx context.Context, matchIDs []string) (map[string]map[string]bool, error) {
	result := make(map[string]map[string]bool)
	if len(matchIDs) == 0 {
		return result, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT match_id, provider FROM predictions WHERE match_id = ANY($1)
	`, matchIDs)
	if err != nil {
		return nil, fmt.Errorf("list existing predictions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var matchID, provider string
		if err := rows.Scan(&matchID, &provider); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		if result[matchID] == nil {
			result[matchID] = make(map[string]bool)
		}
		result[matchID][provider] = true
	}
	return result, rows.Err()
}

// SavePredictions сохраняет прогнозы одним батчем.
// Повторный прогноз той же пары (матч, провайдер) игнорируется.
func (r *PredictionRepo) SavePredictions(ctx context.Context, predictions []domain.Prediction) error {
	if len(predictions) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range predictions {
		batch.Queue(`
			INSERT INTO predictions (match_id, provider, home, away, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (match_id, provider) DO NOTHING
		`, p.MatchID, p.Provider, p.Score.Home, p.Score.Away, p.CreatedAt)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert predictions: %w", err)
	}
	return nil
}

// ListByMatch возвращает все прогнозы матча.
func (r *PredictionRepo) ListByMatch(ctx context.Context, matchID string) ([]domain.Prediction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT match_id, provider, home, away, created_at
		FROM predictions
		WHERE match_id = $1
		ORDER BY provider
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var predictions []domain.Prediction
	for rows.Next() {
		var p domain.Prediction
		if err := rows.Scan(&p.MatchID, &p.Provider, &p.Score.Home, &p.Score.Away, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

// ListAttempts возвращает неудачные попытки по матчам.
func (r *PredictionRepo) ListAttempts(ctx context.Context, matchIDs []string) ([]domain.PredictionAttempt, error) {
	if len(matchIDs) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT match_id, provider, attempts, last_error_kind, last_attempt_at
		FROM prediction_attempts
		WHERE match_id = ANY($1)
	`, matchIDs)
	if err != nil {
		return nil, fmt.Errorf("list prediction attempts: %w", err)
	}
	defer rows.Close()

	var attempts []domain.PredictionAttempt
	for rows.Next() {
		var a domain.PredictionAttempt
		if err := rows.Scan(&a.MatchID, &a.Provider, &a.Attempts, &a.LastErrorKind, &a.LastAttemptAt); err != nil {
			return nil, fmt.Errorf("scan prediction attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}

// RecordFailedAttempt атомарно увеличивает счётчик попыток пары.
func (r *PredictionRepo) RecordFailedAttempt(ctx context.Context, matchID, provider string, kind resilience.ErrorKind, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO prediction_attempts (match_id, provider, attempts, last_error_kind, last_attempt_at)
		VALUES ($1, $2, 1, $3, $4)
		ON CONFLICT (match_id, provider) DO UPDATE
		SET attempts = prediction_attempts.attempts + 1,
		    last_error_kind = EXCLUDED.last_error_kind,
		    last_attempt_at = EXCLUDED.last_attempt_at
	`, matchID, provider, string(kind), at)
	if err != nil {
		return fmt.Errorf("record prediction attempt: %w", err)
	}
	return nil
}

// ClearAttempts удаляет попытки пары после успешного прогноза.
func (r *PredictionRepo) ClearAttempts(ctx context.Context, matchID, provider string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM prediction_attempts WHERE match_id = $1 AND provider = $2
	`, matchID, provider)
	if err != nil {
		return fmt.Errorf("clear prediction attempts: %w", err)
	}
	return nil
}

// PruneAttempts удаляет попытки старше olderThan. Возвращает число удалённых.
func (r *PredictionRepo) PruneAttempts(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM prediction_attempts WHERE last_attempt_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune prediction attempts: %w", err)
	}
	return result.RowsAffected(), nil
}

// RecordUsage сохраняет расход на вызов провайдера.
func (r *PredictionRepo) RecordUsage(ctx context.Context, rec domain.UsageRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_usage (id, provider, batch_size, success, processing_ms,
		                            input_tokens, output_tokens, cost_usd, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		rec.ID,
		rec.Provider,
		rec.BatchSize,
		rec.Success,
		rec.ProcessingTime.Milliseconds(),
		rec.InputTokens,
		rec.OutputTokens,
		rec.CostUSD,
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert usage: %w", err)
	}
	return nil
}
