package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const candleUpsertChunk = 100

// UpsertCandles writes fetched candles in chunks. Callers only pass buckets
// they actually fetched from upstream, so replacing an existing row is safe.
func (r *Repository) UpsertCandles(ctx context.Context, candles []*Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	query := `
		INSERT INTO candle_cache (token_address, timeframe, timestamp, open, high, low, close, volume, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (token_address, timeframe, timestamp) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume,
			updated_at = NOW()
	`
	written := 0
	for start := 0; start < len(candles); start += candleUpsertChunk {
		end := start + candleUpsertChunk
		if end > len(candles) {
			end = len(candles)
		}
		batch := &pgx.Batch{}
		for _, c := range candles[start:end] {
			batch.Queue(query, c.TokenAddress, c.Timeframe, c.Timestamp, c.Open, c.High, c.Low, c.Close, c.Volume)
		}
		br := r.db.Pool.SendBatch(ctx, batch)
		for i := start; i < end; i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return written, fmt.Errorf("candle upsert failed: %w", err)
			}
			written++
		}
		if err := br.Close(); err != nil {
			return written, err
		}
	}
	return written, nil
}

// GetCandles fetches cached candles inside [fromMs, toMs], oldest first
func (r *Repository) GetCandles(ctx context.Context, address, timeframe string, fromMs, toMs int64) ([]*Candle, error) {
	query := `
		SELECT token_address, timeframe, timestamp, open, high, low, close, volume, updated_at
		FROM candle_cache
		WHERE token_address = $1 AND timeframe = $2 AND timestamp >= $3 AND timestamp <= $4
		ORDER BY timestamp ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, address, timeframe, fromMs, toMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Candle
	for rows.Next() {
		c := &Candle{}
		err := rows.Scan(&c.TokenAddress, &c.Timeframe, &c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.UpdatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
