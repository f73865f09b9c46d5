// Package ohlcv holds pure candle-building and aggregation helpers shared
// by the swap sync and candle cache engines.
package ohlcv

import (
	"sort"
	"time"

	"solana-pulse-backend/internal/upstream"
)

// AggregateWeekly rolls daily candles into weekly buckets. Week boundaries
// are UTC Sundays. Input order does not matter; output is chronological.
func AggregateWeekly(daily []upstream.OHLCV) []upstream.OHLCV {
	return aggregateBy(daily, weekStart)
}

// AggregateMonthly rolls daily candles into UTC calendar-month buckets
func AggregateMonthly(daily []upstream.OHLCV) []upstream.OHLCV {
	return aggregateBy(daily, monthStart)
}

func weekStart(tsMs int64) int64 {
	t := time.UnixMilli(tsMs).UTC()
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	t = t.AddDate(0, 0, -int(t.Weekday()))
	return t.UnixMilli()
}

func monthStart(tsMs int64) int64 {
	t := time.UnixMilli(tsMs).UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).UnixMilli()
}

func aggregateBy(candles []upstream.OHLCV, bucketOf func(int64) int64) []upstream.OHLCV {
	if len(candles) == 0 {
		return nil
	}

	sorted := make([]upstream.OHLCV, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	// De-dupe by timestamp, keeping the last observation
	deduped := sorted[:0]
	for _, c := range sorted {
		if len(deduped) > 0 && deduped[len(deduped)-1].Timestamp == c.Timestamp {
			deduped[len(deduped)-1] = c
			continue
		}
		deduped = append(deduped, c)
	}

	var out []upstream.OHLCV
	for _, c := range deduped {
		bucket := bucketOf(c.Timestamp)
		if len(out) == 0 || out[len(out)-1].Timestamp != bucket {
			out = append(out, upstream.OHLCV{
				Timestamp: bucket,
				Open:      c.Open,
				High:      c.High,
				Low:       c.Low,
				Close:     c.Close,
				Volume:    c.Volume,
			})
			continue
		}
		cur := &out[len(out)-1]
		if c.High > cur.High {
			cur.High = c.High
		}
		if c.Low < cur.Low {
			cur.Low = c.Low
		}
		cur.Close = c.Close
		cur.Volume += c.Volume
	}
	return out
}
