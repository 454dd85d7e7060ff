package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/resilience"
)

// HealthRepo — хранилище ProviderHealth в Postgres.
//
// Каждое изменение — один UPSERT: инкремент и проверка порога выполняются
// в БД, поэтому параллельные батчи одного провайдера не теряют обновления.
type HealthRepo struct {
	pool *pgxpool.Pool
}

// NewHealthRepo создаёт новый HealthRepo.
func NewHealthRepo(pool *pgxpool.Pool) *HealthRepo {
	return &HealthRepo{pool: pool}
}

var _ resilience.HealthStore = (*HealthRepo)(nil)

const healthColumns = `provider, consecutive_failures, last_failure_at, last_success_at, auto_disabled, failure_reason`

// IncrementFailure реализует resilience.HealthStore.
func (r *HealthRepo) IncrementFailure(ctx context.Context, provider, reason string, threshold int, at time.Time) (domain.ProviderHealth, error) {
	query := `
		INSERT INTO provider_health (provider, consecutive_failures, last_failure_at, auto_disabled, failure_reason)
		VALUES ($1, 1, $3, 1 >= $4, $2)
		ON CONFLICT (provider) DO UPDATE
		SET consecutive_failures = provider_health.consecutive_failures + 1,
		    last_failure_at = EXCLUDED.last_failure_at,
		    failure_reason = EXCLUDED.failure_reason,
		    auto_disabled = provider_health.auto_disabled
		                    OR provider_health.consecutive_failures + 1 >= $4
		RETURNING ` + healthColumns

	h, err := scanHealth(r.pool.QueryRow(ctx, query, provider, reason, at, threshold))
	if err != nil {
		return domain.ProviderHealth{}, fmt.Errorf("increment provider failure: %w", err)
	}
	return *h, nil
}

// TouchFailure реализует resilience.HealthStore.
func (r *HealthRepo) TouchFailure(ctx context.Context, provider, reason string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_health (provider, consecutive_failures, last_failure_at, auto_disabled, failure_reason)
		VALUES ($1, 0, $3, false, $2)
		ON CONFLICT (provider) DO UPDATE
		SET last_failure_at = EXCLUDED.last_failure_at,
		    failure_reason = EXCLUDED.failure_reason
	`, provider, reason, at)
	if err != nil {
		return fmt.Errorf("touch provider failure: %w", err)
	}
	return nil
}

// ResetFailures реализует resilience.HealthStore.
func (r *HealthRepo) ResetFailures(ctx context.Context, provider string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provider_health (provider, consecutive_failures, last_success_at, auto_disabled)
		VALUES ($1, 0, $2, false)
		ON CONFLICT (provider) DO UPDATE
		SET consecutive_failures = 0,
		    auto_disabled = false,
		    last_success_at = EXCLUDED.last_success_at
	`, provider, at)
	if err != nil {
		return fmt.Errorf("reset provider failures: %w", err)
	}
	return nil
}

// RecoverDisabled реализует resilience.HealthStore.
func (r *HealthRepo) RecoverDisabled(ctx context.Context, cutoff time.Time, partial int) ([]domain.ProviderHealth, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE provider_health
		SET auto_disabled = false, consecutive_failures = $2
		WHERE auto_disabled = true
		  AND last_failure_at IS NOT NULL
		  AND last_failure_at <= $1
		RETURNING `+healthColumns, cutoff, partial)
	if err != nil {
		return nil, fmt.Errorf("recover providers: %w", err)
	}
	return collectHealth(rows)
}

// Get реализует resilience.HealthStore.
func (r *HealthRepo) Get(ctx context.Context, provider string) (domain.ProviderHealth, error) {
	h, err := scanHealth(r.pool.QueryRow(ctx, `
		SELECT `+healthColumns+` FROM provider_health WHERE provider = $1
	`, provider))
	if errors.Is(err, ErrNotFound) {
		return domain.ProviderHealth{Provider: provider}, resilience.ErrProviderNotFound
	}
	if err != nil {
		return domain.ProviderHealth{}, err
	}
	return *h, nil
}

// List реализует resilience.HealthStore.
func (r *HealthRepo) List(ctx context.Context) ([]domain.ProviderHealth, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+healthColumns+` FROM provider_health ORDER BY provider
	`)
	if err != nil {
		return nil, fmt.Errorf("list provider health: %w", err)
	}
	return collectHealth(rows)
}

func collectHealth(rows pgx.Rows) ([]domain.ProviderHealth, error) {
	defer rows.Close()

	var list []domain.ProviderHealth
	for rows.Next() {
		h, err := scanHealth(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *h)
	}
	return list, rows.Err()
}

func scanHealth(row pgx.Row) (*domain.ProviderHealth, error) {
	var h domain.ProviderHealth
	var reason *string

	err := row.Scan(
		&h.Provider,
		&h.ConsecutiveFailures,
		&h.LastFailureAt,
		&h.LastSuccessAt,
		&h.AutoDisabled,
		&reason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan provider health: %w", err)
	}

	h.FailureReason = derefString(reason)
	return &h, nil
}
