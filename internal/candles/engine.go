// Package candles manages the OHLCV cache for dashboard tokens where
// upstream history is the primary source. Historical buckets are written
// once; only the live bucket is refreshed.
package candles

import (
	"context"
	"fmt"
	"sort"
	"time"

	"solana-pulse-backend/internal/database"
	"solana-pulse-backend/internal/logging"
	"solana-pulse-backend/internal/ohlcv"
	"solana-pulse-backend/internal/upstream"
)

// IntervalMs maps the timeframe vocabulary to bucket lengths
var IntervalMs = map[string]int64{
	"1m":  60_000,
	"5m":  300_000,
	"15m": 900_000,
	"1h":  3_600_000,
	"4h":  14_400_000,
	"1d":  86_400_000,
	"1w":  604_800_000,
	"1M":  2_592_000_000, // nominal 30d, bucketing uses calendar months
}

// ValidTimeframe reports whether tf is in the fixed vocabulary
func ValidTimeframe(tf string) bool {
	_, ok := IntervalMs[tf]
	return ok
}

// FetchFunc pulls candles from upstream for [fromMs, toMs]
type FetchFunc func(ctx context.Context, address, tf string, fromMs, toMs int64) ([]upstream.OHLCV, error)

// Store is the candle slice of the repository
type Store interface {
	GetCandles(ctx context.Context, address, timeframe string, fromMs, toMs int64) ([]*database.Candle, error)
	UpsertCandles(ctx context.Context, candles []*database.Candle) (int, error)
}

// Engine serves cached candles, delegating to a fetch callable on miss
type Engine struct {
	store Store
	log   *logging.Logger

	liveRefresh time.Duration
	now         func() time.Time // injectable for tests
}

// NewEngine creates a candle cache engine. liveRefresh bounds how stale the
// live bucket may get before a refetch.
func NewEngine(store Store, liveRefresh time.Duration) *Engine {
	if liveRefresh <= 0 {
		liveRefresh = 5 * time.Minute
	}
	return &Engine{
		store:       store,
		log:         logging.WithComponent("candles"),
		liveRefresh: liveRefresh,
		now:         time.Now,
	}
}

// GetCandles serves [fromMs, toMs] for a timeframe. The cache is judged
// incomplete below half the expected bucket count; then, or when older data
// than cached is requested, the full range is refetched. Otherwise only a
// stale live bucket triggers a narrow refresh.
func (e *Engine) GetCandles(ctx context.Context, address, tf string, fromMs, toMs int64, fetch FetchFunc) ([]upstream.OHLCV, error) {
	interval, ok := IntervalMs[tf]
	if !ok {
		return nil, fmt.Errorf("unknown timeframe %q", tf)
	}
	if tf == "1w" || tf == "1M" {
		return e.getAggregated(ctx, address, tf, fromMs, toMs, fetch)
	}

	cached, err := e.store.GetCandles(ctx, address, tf, fromMs, toMs)
	if err != nil {
		return nil, fmt.Errorf("candle read: %w", err)
	}

	expected := (toMs - fromMs) / interval
	if int64(len(cached)) < expected/2 {
		return e.refetchRange(ctx, address, tf, fromMs, toMs, fetch)
	}

	needsOlder := len(cached) > 0 && cached[0].Timestamp > fromMs+interval
	needsLive := e.liveStale(cached, interval)

	switch {
	case needsOlder:
		return e.refetchRange(ctx, address, tf, fromMs, toMs, fetch)
	case needsLive:
		now := e.now().UnixMilli()
		liveStart := (now / interval) * interval
		fetched, err := fetch(ctx, address, tf, liveStart-interval, now)
		if err != nil {
			// serve the stale cache rather than failing the read
			e.log.Warn("live candle refresh failed", "address", address, "tf", tf, "error", err)
			return toOHLCV(cached), nil
		}
		if _, err := e.store.UpsertCandles(ctx, toRows(address, tf, fetched)); err != nil {
			return nil, fmt.Errorf("live candle write: %w", err)
		}
		return mergeCandles(toOHLCV(cached), fetched), nil
	default:
		return toOHLCV(cached), nil
	}
}

// liveStale reports whether the newest cached bucket covers "now" but has
// not been refreshed within the live window
func (e *Engine) liveStale(cached []*database.Candle, interval int64) bool {
	if len(cached) == 0 {
		return true
	}
	last := cached[len(cached)-1]
	now := e.now()
	liveStart := (now.UnixMilli() / interval) * interval
	if last.Timestamp < liveStart {
		return true // live bucket missing entirely
	}
	return now.Sub(last.UpdatedAt) > e.liveRefresh
}

func (e *Engine) refetchRange(ctx context.Context, address, tf string, fromMs, toMs int64, fetch FetchFunc) ([]upstream.OHLCV, error) {
	fetched, err := fetch(ctx, address, tf, fromMs, toMs)
	if err != nil {
		return nil, fmt.Errorf("candle fetch: %w", err)
	}
	if len(fetched) == 0 {
		return nil, nil
	}
	if _, err := e.store.UpsertCandles(ctx, toRows(address, tf, fetched)); err != nil {
		return nil, fmt.Errorf("candle write: %w", err)
	}
	return fetched, nil
}

// getAggregated serves weekly/monthly candles: cache first, else fetch the
// daily series and roll it up. Aggregates are not written back.
func (e *Engine) getAggregated(ctx context.Context, address, tf string, fromMs, toMs int64, fetch FetchFunc) ([]upstream.OHLCV, error) {
	cached, err := e.store.GetCandles(ctx, address, tf, fromMs, toMs)
	if err != nil {
		return nil, fmt.Errorf("candle read: %w", err)
	}
	if len(cached) > 0 {
		return toOHLCV(cached), nil
	}

	daily, err := fetch(ctx, address, "1d", fromMs, toMs)
	if err != nil {
		return nil, fmt.Errorf("daily fetch for %s: %w", tf, err)
	}
	if tf == "1w" {
		return ohlcv.AggregateWeekly(daily), nil
	}
	return ohlcv.AggregateMonthly(daily), nil
}

func toRows(address, tf string, candles []upstream.OHLCV) []*database.Candle {
	rows := make([]*database.Candle, 0, len(candles))
	for _, c := range candles {
		rows = append(rows, &database.Candle{
			TokenAddress: address,
			Timeframe:    tf,
			Timestamp:    c.Timestamp,
			Open:         c.Open,
			High:         c.High,
			Low:          c.Low,
			Close:        c.Close,
			Volume:       c.Volume,
		})
	}
	return rows
}

func toOHLCV(rows []*database.Candle) []upstream.OHLCV {
	out := make([]upstream.OHLCV, 0, len(rows))
	for _, r := range rows {
		out = append(out, upstream.OHLCV{
			Timestamp: r.Timestamp,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		})
	}
	return out
}

// mergeCandles overlays fetched buckets onto the cached series by timestamp
func mergeCandles(cached, fetched []upstream.OHLCV) []upstream.OHLCV {
	byTS := make(map[int64]upstream.OHLCV, len(cached)+len(fetched))
	order := make([]int64, 0, len(cached)+len(fetched))
	for _, c := range cached {
		if _, seen := byTS[c.Timestamp]; !seen {
			order = append(order, c.Timestamp)
		}
		byTS[c.Timestamp] = c
	}
	for _, c := range fetched {
		if _, seen := byTS[c.Timestamp]; !seen {
			order = append(order, c.Timestamp)
		}
		byTS[c.Timestamp] = c
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]upstream.OHLCV, 0, len(order))
	for _, ts := range order {
		out = append(out, byTS[ts])
	}
	return out
}
