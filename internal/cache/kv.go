// Package cache provides the KV read-path cache: Redis-backed when
// configured, with an in-memory fallback for single-process deployments.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned when a key is absent or expired
var ErrMiss = errors.New("cache miss")

// KV is the key-value cache in front of the read services. A degraded
// backend returns errors; callers fall through to the database or upstream.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	IsHealthy() bool
	Close() error
}

// New selects the backend: Redis when a URL is configured, otherwise the
// in-memory TTL map.
func New(redisURL string, poolSize int) (KV, error) {
	if redisURL == "" {
		return NewMemoryCache(), nil
	}
	return NewCacheService(redisURL, poolSize)
}

// Key builders used by the read services
func TokenKey(address string) string          { return "token:" + address }
func OHLCVKey(address, tf, rng string) string { return fmt.Sprintf("ohlcv:%s:%s:%s", address, tf, rng) }
func TradesKey(address string, limit int) string {
	return fmt.Sprintf("trades:%s:%d", address, limit)
}
func HoldersKey(address string) string { return "holders:" + address }
func StatsKey(address string) string   { return "stats:" + address }
func PulseListKey(category string) string {
	return "pulse:list:" + category
}

const (
	TrendingKey = "trending"
	SupplyKey   = "supply:sol"
)

// Read-path TTLs
const (
	TokenTTL      = 60 * time.Second
	OHLCVDBTTL    = 5 * time.Second
	OHLCVFetchTTL = 30 * time.Second
	TradesTTL     = 5 * time.Second
	HoldersTTL    = 60 * time.Second
	StatsTTL      = 15 * time.Second
	PulseListTTL  = 3 * time.Second
	TrendingTTL   = 60 * time.Second
	SupplyTTL     = 300 * time.Second
)
