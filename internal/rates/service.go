// Package rates serves exchange-rate snapshots for quoting.
//
// Rates are maintained by an external process; this service only reads them.
// Each read returns one row fetched atomically so rate and fee percentage can
// never be observed from different updates.
package rates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tumapesa/internal/domain"
	"tumapesa/pkg/logger"
)

// Service provides cached exchange-rate reads.
type Service struct {
	repo   Repository
	cache  RateCache
	logger logger.Logger
	ttl    time.Duration

	mu    sync.RWMutex
	local map[domain.Currency]cachedRate
}

type cachedRate struct {
	rate      *domain.ExchangeRate
	expiresAt time.Time
}

// NewService constructs a rates Service. cache may be nil (no distributed
// cache); ttl bounds both cache layers.
func NewService(repo Repository, cache RateCache, ttl time.Duration, log logger.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: log,
		ttl:    ttl,
		local:  make(map[domain.Currency]cachedRate),
	}
}

// GetRate returns the active rate row for from -> KES. Fails with
// ErrRateUnavailable when no row exists for the pair.
func (s *Service) GetRate(ctx context.Context, from domain.Currency) (*domain.ExchangeRate, error) {
	s.mu.RLock()
	if c, ok := s.local[from]; ok && time.Now().Before(c.expiresAt) {
		s.mu.RUnlock()
		return c.rate, nil
	}
	s.mu.RUnlock()

	if s.cache != nil {
		if rate, err := s.cache.Get(ctx, cacheKey(from)); err == nil {
			s.store(from, rate)
			return rate, nil
		}
	}

	rate, err := s.repo.GetRate(ctx, from, domain.KES)
	if err != nil {
		return nil, err
	}

	s.store(from, rate)
	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey(from), rate, s.ttl); err != nil {
			s.logger.Warn("Failed to cache exchange rate", map[string]interface{}{
				"from":  from,
				"error": err.Error(),
			})
		}
	}

	return rate, nil
}

func (s *Service) store(from domain.Currency, rate *domain.ExchangeRate) {
	s.mu.Lock()
	s.local[from] = cachedRate{rate: rate, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()
}

func cacheKey(from domain.Currency) string {
	return fmt.Sprintf("rate:%s-%s", from, domain.KES)
}

// Repository defines persistence reads for exchange rates.
type Repository interface {
	GetRate(ctx context.Context, from, to domain.Currency) (*domain.ExchangeRate, error)
}

// RateCache defines distributed cache operations for exchange rates.
type RateCache interface {
	Get(ctx context.Context, key string) (*domain.ExchangeRate, error)
	Set(ctx context.Context, key string, rate *domain.ExchangeRate, ttl time.Duration) error
}
