package ohlcv

import (
	"sort"

	"solana-pulse-backend/internal/upstream"
)

// MaxTradeGapMs breaks the open=previous-close chain in per-trade candles
const MaxTradeGapMs = int64(5000)

// Swap is the minimal swap view the candle builders need
type Swap struct {
	TimestampMs int64
	Price       float64
	VolumeUSD   float64
}

// BuildCandlesFromSwaps buckets swaps into fixed intervals, fills gaps with
// flat zero-volume candles and returns at most maxCandles, chronological.
func BuildCandlesFromSwaps(swaps []Swap, intervalMs int64, maxCandles int) []upstream.OHLCV {
	if len(swaps) == 0 || intervalMs <= 0 {
		return nil
	}

	sorted := make([]Swap, len(swaps))
	copy(sorted, swaps)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TimestampMs < sorted[j].TimestampMs })

	var buckets []upstream.OHLCV
	for _, s := range sorted {
		if s.Price <= 0 {
			continue
		}
		bucket := (s.TimestampMs / intervalMs) * intervalMs
		if len(buckets) == 0 || buckets[len(buckets)-1].Timestamp != bucket {
			buckets = append(buckets, upstream.OHLCV{
				Timestamp: bucket,
				Open:      s.Price,
				High:      s.Price,
				Low:       s.Price,
				Close:     s.Price,
				Volume:    s.VolumeUSD,
			})
			continue
		}
		cur := &buckets[len(buckets)-1]
		if s.Price > cur.High {
			cur.High = s.Price
		}
		if s.Price < cur.Low {
			cur.Low = s.Price
		}
		cur.Close = s.Price
		cur.Volume += s.VolumeUSD
	}
	if len(buckets) == 0 {
		return nil
	}

	// Gap fill: flat candles at the previous close for missing buckets
	filled := make([]upstream.OHLCV, 0, len(buckets))
	filled = append(filled, buckets[0])
	for i := 1; i < len(buckets); i++ {
		prev := filled[len(filled)-1]
		for ts := prev.Timestamp + intervalMs; ts < buckets[i].Timestamp; ts += intervalMs {
			filled = append(filled, upstream.OHLCV{
				Timestamp: ts,
				Open:      prev.Close,
				High:      prev.Close,
				Low:       prev.Close,
				Close:     prev.Close,
			})
		}
		filled = append(filled, buckets[i])
	}

	if maxCandles > 0 && len(filled) > maxCandles {
		filled = filled[len(filled)-maxCandles:]
	}
	return filled
}

// BuildPerTradeCandles emits one candle per trade. Each candle opens at the
// previous close unless the trades are more than MaxTradeGapMs apart.
// Prices outside [median/10, median*10] are dropped as outliers.
func BuildPerTradeCandles(swaps []Swap) []upstream.OHLCV {
	if len(swaps) == 0 {
		return nil
	}

	sorted := make([]Swap, 0, len(swaps))
	for _, s := range swaps {
		if s.Price > 0 {
			sorted = append(sorted, s)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].TimestampMs < sorted[j].TimestampMs })

	median := medianPrice(sorted)
	lo, hi := median/10, median*10

	var out []upstream.OHLCV
	for _, s := range sorted {
		if s.Price < lo || s.Price > hi {
			continue
		}
		open := s.Price
		if len(out) > 0 {
			prev := out[len(out)-1]
			if s.TimestampMs-prev.Timestamp <= MaxTradeGapMs {
				open = prev.Close
			}
		}
		c := upstream.OHLCV{
			Timestamp: s.TimestampMs,
			Open:      open,
			Close:     s.Price,
			Volume:    s.VolumeUSD,
		}
		if open > s.Price {
			c.High, c.Low = open, s.Price
		} else {
			c.High, c.Low = s.Price, open
		}
		out = append(out, c)
	}
	return out
}

func medianPrice(sorted []Swap) float64 {
	prices := make([]float64, len(sorted))
	for i, s := range sorted {
		prices[i] = s.Price
	}
	sort.Float64s(prices)
	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		return prices[mid]
	}
	return (prices[mid-1] + prices[mid]) / 2
}
