// Package solprice maintains the current SOL/USD price used to value
// bonding-curve trades.
package solprice

import (
	"context"
	"sync"
	"time"

	"solana-pulse-backend/internal/logging"
)

// SeedPrice is served on cold start before any provider has answered
const SeedPrice = 150.0

const refreshTTL = 30 * time.Second

// Provider returns the current SOL/USD price. Implementations wrap one
// upstream each.
type Provider interface {
	Name() string
	SolPrice(ctx context.Context) (float64, error)
}

// Service caches the SOL price with a 30 s TTL, trying providers in order.
// On total failure the last known value is kept.
type Service struct {
	providers []Provider
	log       *logging.Logger

	mu        sync.RWMutex
	price     float64
	fetchedAt time.Time
	fetching  bool

	// per-provider error log pacing, at most one line per minute
	lastErrLog map[string]time.Time
}

// NewService builds the service over an ordered provider chain
func NewService(providers ...Provider) *Service {
	return &Service{
		providers:  providers,
		log:        logging.WithComponent("solprice"),
		price:      SeedPrice,
		lastErrLog: make(map[string]time.Time),
	}
}

// GetPrice returns the cached price, refreshing it first when stale
func (s *Service) GetPrice(ctx context.Context) float64 {
	s.mu.RLock()
	fresh := time.Since(s.fetchedAt) < refreshTTL
	price := s.price
	s.mu.RUnlock()
	if fresh {
		return price
	}
	s.refresh(ctx)

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.price
}

// GetPriceSync returns the cached (or seed) value without blocking on
// upstream calls; a stale cache triggers a background refresh.
func (s *Service) GetPriceSync() float64 {
	s.mu.RLock()
	stale := time.Since(s.fetchedAt) >= refreshTTL
	price := s.price
	s.mu.RUnlock()

	if stale {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			s.refresh(ctx)
		}()
	}
	return price
}

// refresh tries each provider in order, single-flight
func (s *Service) refresh(ctx context.Context) {
	s.mu.Lock()
	if s.fetching || time.Since(s.fetchedAt) < refreshTTL {
		s.mu.Unlock()
		return
	}
	s.fetching = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.fetching = false
		s.mu.Unlock()
	}()

	for _, p := range s.providers {
		price, err := p.SolPrice(ctx)
		if err != nil {
			s.logProviderError(p.Name(), err)
			continue
		}
		if price <= 0 {
			continue
		}
		s.mu.Lock()
		s.price = price
		s.fetchedAt = time.Now()
		s.mu.Unlock()
		return
	}

	// All providers failed, keep the last known value but avoid hammering
	s.mu.Lock()
	s.fetchedAt = time.Now().Add(-refreshTTL + 5*time.Second)
	s.mu.Unlock()
}

func (s *Service) logProviderError(provider string, err error) {
	s.mu.Lock()
	last := s.lastErrLog[provider]
	shouldLog := time.Since(last) >= time.Minute
	if shouldLog {
		s.lastErrLog[provider] = time.Now()
	}
	s.mu.Unlock()

	if shouldLog {
		s.log.Warn("SOL price provider failed", "provider", provider, "error", err)
	}
}
