package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
	"github.com/shaiso/Kickoff/internal/telemetry"
)

// Значения по умолчанию для circuit breaker.
const (
	DefaultDisableThreshold = 5
	DefaultCooldown         = time.Hour
	DefaultRecoverPartial   = 2
)

// HealthStore — хранилище ProviderHealth.
//
// Все изменения атомарны на стороне хранилища: инкремент и проверка порога
// выполняются одной операцией, без read-modify-write в приложении.
type HealthStore interface {
	// IncrementFailure увеличивает счётчик, выставляет AutoDisabled при достижении
	// порога и возвращает состояние после обновления.
	IncrementFailure(ctx context.Context, provider, reason string, threshold int, at time.Time) (domain.ProviderHealth, error)

	// TouchFailure обновляет только LastFailureAt и FailureReason.
	TouchFailure(ctx context.Context, provider, reason string, at time.Time) error

	// ResetFailures обнуляет счётчик, снимает AutoDisabled, обновляет LastSuccessAt.
	ResetFailures(ctx context.Context, provider string, at time.Time) error

	// RecoverDisabled снимает AutoDisabled у провайдеров с LastFailureAt <= cutoff
	// и выставляет счётчик в partial. Возвращает восстановленных.
	RecoverDisabled(ctx context.Context, cutoff time.Time, partial int) ([]domain.ProviderHealth, error)

	// Get возвращает состояние провайдера или ErrProviderNotFound.
	Get(ctx context.Context, provider string) (domain.ProviderHealth, error)

	// List возвращает состояние всех известных провайдеров.
	List(ctx context.Context) ([]domain.ProviderHealth, error)
}

// FailureOutcome — результат RecordFailure.
type FailureOutcome struct {
	// Kind — класс ошибки.
	Kind ErrorKind

	// Counted — ошибка засчитана в порог (model-specific).
	Counted bool

	// Disabled — именно эта ошибка перевела провайдера в AutoDisabled.
	Disabled bool

	// Health — состояние после обновления (только если Counted).
	Health domain.ProviderHealth
}

// Breaker — circuit breaker провайдеров прогнозов поверх HealthStore.
type Breaker struct {
	store         HealthStore
	threshold     int
	cooldown      time.Duration
	partial       int
	modelSpecific map[ErrorKind]bool
	now           func() time.Time
	logger        *slog.Logger
}

// BreakerConfig — конфигурация Breaker.
type BreakerConfig struct {
	Store HealthStore

	// DisableThreshold — сколько model-specific ошибок подряд отключают провайдера (default: 5).
	DisableThreshold int

	// Cooldown — через сколько после последней ошибки провайдер восстанавливается (default: 1h).
	Cooldown time.Duration

	// RecoverPartial — значение счётчика после восстановления (default: 2).
	RecoverPartial int

	// ModelSpecific — классы, засчитываемые в порог (default: parse_error, client_error).
	ModelSpecific []ErrorKind

	// Now — источник времени (для тестов).
	Now func() time.Time

	Logger *slog.Logger
}

// NewBreaker создаёт новый Breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	threshold := cfg.DisableThreshold
	if threshold <= 0 {
		threshold = DefaultDisableThreshold
	}

	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}

	partial := cfg.RecoverPartial
	if partial < 0 || partial >= threshold {
		partial = min(DefaultRecoverPartial, threshold-1)
	}

	kinds := cfg.ModelSpecific
	if len(kinds) == 0 {
		kinds = DefaultModelSpecific
	}
	modelSpecific := make(map[ErrorKind]bool, len(kinds))
	for _, k := range kinds {
		modelSpecific[k] = true
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Breaker{
		store:         cfg.Store,
		threshold:     threshold,
		cooldown:      cooldown,
		partial:       partial,
		modelSpecific: modelSpecific,
		now:           now,
		logger:        logger,
	}
}

// Threshold возвращает порог отключения.
func (b *Breaker) Threshold() int {
	return b.threshold
}

// IsModelSpecific проверяет, засчитывается ли класс ошибки в порог.
func (b *Breaker) IsModelSpecific(kind ErrorKind) bool {
	return b.modelSpecific[kind]
}

// RecordFailure фиксирует ошибку провайдера.
//
// Model-specific ошибки атомарно увеличивают счётчик; при достижении порога
// провайдер отключается. Инфраструктурные ошибки только обновляют
// LastFailureAt / FailureReason.
func (b *Breaker) RecordFailure(ctx context.Context, provider string, kind ErrorKind, reason string) (FailureOutcome, error) {
	outcome := FailureOutcome{Kind: kind}
	now := b.now()

	telemetry.ProviderFailures.WithLabelValues(provider, string(kind)).Inc()

	if !b.IsModelSpecific(kind) {
		if err := b.store.TouchFailure(ctx, provider, reason, now); err != nil {
			return outcome, fmt.Errorf("touch failure: %w", err)
		}
		b.logger.Debug("provider failure recorded (transient)",
			"provider", provider,
			"kind", kind,
			"reason", reason,
		)
		return outcome, nil
	}

	health, err := b.store.IncrementFailure(ctx, provider, reason, b.threshold, now)
	if err != nil {
		return outcome, fmt.Errorf("increment failure: %w", err)
	}

	outcome.Counted = true
	outcome.Health = health
	outcome.Disabled = health.AutoDisabled && health.ConsecutiveFailures == b.threshold

	if outcome.Disabled {
		telemetry.ProviderDisabled.WithLabelValues(provider).Inc()
		b.logger.Warn("provider auto-disabled",
			"provider", provider,
			"kind", kind,
			"consecutive_failures", health.ConsecutiveFailures,
			"reason", reason,
		)
	} else {
		b.logger.Info("provider failure recorded",
			"provider", provider,
			"kind", kind,
			"consecutive_failures", health.ConsecutiveFailures,
			"threshold", b.threshold,
		)
	}

	return outcome, nil
}

// RecordSuccess сбрасывает счётчик ошибок и снимает отключение.
func (b *Breaker) RecordSuccess(ctx context.Context, provider string) error {
	if err := b.store.ResetFailures(ctx, provider, b.now()); err != nil {
		return fmt.Errorf("reset failures: %w", err)
	}
	return nil
}

// Recover восстанавливает отключённых провайдеров, у которых прошёл cooldown.
// Счётчик выставляется в partial, а не в 0: после восстановления до повторного
// отключения остаётся threshold − partial ошибок.
func (b *Breaker) Recover(ctx context.Context) ([]domain.ProviderHealth, error) {
	cutoff := b.now().Add(-b.cooldown)

	recovered, err := b.store.RecoverDisabled(ctx, cutoff, b.partial)
	if err != nil {
		return nil, fmt.Errorf("recover disabled providers: %w", err)
	}

	for _, h := range recovered {
		telemetry.ProviderRecovered.WithLabelValues(h.Provider).Inc()
		b.logger.Info("provider recovered after cooldown",
			"provider", h.Provider,
			"consecutive_failures", h.ConsecutiveFailures,
		)
	}

	return recovered, nil
}

// IsEnabled проверяет, что провайдер не отключён.
// Провайдер без записи считается здоровым.
func (b *Breaker) IsEnabled(ctx context.Context, provider string) (bool, error) {
	health, err := b.store.Get(ctx, provider)
	if err != nil {
		if isNotFound(err) {
			return true, nil
		}
		return false, err
	}
	return !health.AutoDisabled, nil
}

// FilterEnabled оставляет только включённых провайдеров.
// При ошибке чтения провайдер остаётся в списке: лучше лишний вызов, чем пропуск волны.
func (b *Breaker) FilterEnabled(ctx context.Context, providers []string) []string {
	enabled := make([]string, 0, len(providers))
	for _, p := range providers {
		ok, err := b.IsEnabled(ctx, p)
		if err != nil {
			b.logger.Warn("failed to read provider health", "provider", p, "error", err)
			enabled = append(enabled, p)
			continue
		}
		if ok {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// List возвращает состояние всех провайдеров.
func (b *Breaker) List(ctx context.Context) ([]domain.ProviderHealth, error) {
	return b.store.List(ctx)
}

// ListDisabled возвращает отключённых провайдеров.
func (b *Breaker) ListDisabled(ctx context.Context) ([]domain.ProviderHealth, error) {
	all, err := b.store.List(ctx)
	if err != nil {
		return nil, err
	}

	var disabled []domain.ProviderHealth
	for _, h := range all {
		if h.AutoDisabled {
			disabled = append(disabled, h)
		}
	}
	return disabled, nil
}
