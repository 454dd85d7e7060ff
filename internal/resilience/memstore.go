package resilience

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shaiso/Kickoff/internal/domain"
)

// MemoryHealthStore — HealthStore в памяти процесса.
// Используется в тестах и при запуске без PostgreSQL.
type MemoryHealthStore struct {
	mu     sync.Mutex
	health map[string]*domain.ProviderHealth
}

// NewMemoryHealthStore создаёт пустое хранилище.
func NewMemoryHealthStore() *MemoryHealthStore {
	return &MemoryHealthStore{health: make(map[string]*domain.ProviderHealth)}
}

func (s *MemoryHealthStore) getLocked(provider string) *domain.ProviderHealth {
	h, ok := s.health[provider]
	if !ok {
		h = &domain.ProviderHealth{Provider: provider}
		s.health[provider] = h
	}
	return h
}

// IncrementFailure реализует HealthStore.
func (s *MemoryHealthStore) IncrementFailure(_ context.Context, provider, reason string, threshold int, at time.Time) (domain.ProviderHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.getLocked(provider)
	h.ConsecutiveFailures++
	h.LastFailureAt = &at
	h.FailureReason = reason
	if h.ConsecutiveFailures >= threshold {
		h.AutoDisabled = true
	}
	return *h, nil
}

// TouchFailure реализует HealthStore.
func (s *MemoryHealthStore) TouchFailure(_ context.Context, provider, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.getLocked(provider)
	h.LastFailureAt = &at
	h.FailureReason = reason
	return nil
}

// ResetFailures реализует HealthStore.
func (s *MemoryHealthStore) ResetFailures(_ context.Context, provider string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.getLocked(provider)
	h.ConsecutiveFailures = 0
	h.AutoDisabled = false
	h.LastSuccessAt = &at
	return nil
}

// RecoverDisabled реализует HealthStore.
func (s *MemoryHealthStore) RecoverDisabled(_ context.Context, cutoff time.Time, partial int) ([]domain.ProviderHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recovered []domain.ProviderHealth
	for _, h := range s.health {
		if !h.AutoDisabled || h.LastFailureAt == nil || h.LastFailureAt.After(cutoff) {
			continue
		}
		h.AutoDisabled = false
		h.ConsecutiveFailures = partial
		recovered = append(recovered, *h)
	}
	sortHealth(recovered)
	return recovered, nil
}

// Get реализует HealthStore.
func (s *MemoryHealthStore) Get(_ context.Context, provider string) (domain.ProviderHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.health[provider]
	if !ok {
		return domain.ProviderHealth{Provider: provider}, ErrProviderNotFound
	}
	return *h, nil
}

// List реализует HealthStore.
func (s *MemoryHealthStore) List(_ context.Context) ([]domain.ProviderHealth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]domain.ProviderHealth, 0, len(s.health))
	for _, h := range s.health {
		result = append(result, *h)
	}
	sortHealth(result)
	return result, nil
}

func sortHealth(list []domain.ProviderHealth) {
	sort.Slice(list, func(i, j int) bool { return list[i].Provider < list[j].Provider })
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrProviderNotFound)
}
