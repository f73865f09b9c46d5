package ingest

import (
	"sync"

	"solana-pulse-backend/internal/upstream"
)

// ringCapacity bounds the per-token 1-second candle history to 300 s
const ringCapacity = 300

// candleRing holds the rolling window of 1-second candles for one token
type candleRing struct {
	mu      sync.Mutex
	candles []upstream.OHLCV
}

// update folds a trade into the ring. Returns the affected candle and
// whether a new bucket was opened.
func (r *candleRing) update(tsMs int64, price, volumeUSD float64) (upstream.OHLCV, bool) {
	bucket := (tsMs / 1000) * 1000

	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.candles); n > 0 && r.candles[n-1].Timestamp == bucket {
		c := &r.candles[n-1]
		if price > c.High {
			c.High = price
		}
		if price < c.Low {
			c.Low = price
		}
		c.Close = price
		c.Volume += volumeUSD
		return *c, false
	}

	c := upstream.OHLCV{
		Timestamp: bucket,
		Open:      price,
		High:      price,
		Low:       price,
		Close:     price,
		Volume:    volumeUSD,
	}
	r.candles = append(r.candles, c)

	// retain only the trailing window
	cutoff := bucket - int64(ringCapacity)*1000
	trim := 0
	for trim < len(r.candles) && r.candles[trim].Timestamp <= cutoff {
		trim++
	}
	if trim > 0 {
		r.candles = append(r.candles[:0], r.candles[trim:]...)
	}
	if len(r.candles) > ringCapacity {
		r.candles = r.candles[len(r.candles)-ringCapacity:]
	}
	return c, true
}

// snapshot copies the current window, oldest first
func (r *candleRing) snapshot() []upstream.OHLCV {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]upstream.OHLCV, len(r.candles))
	copy(out, r.candles)
	return out
}
