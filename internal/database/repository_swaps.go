package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// InsertSwap persists one swap. Duplicate (token_address, tx_hash) pairs are
// silently skipped; returns whether a row was written.
func (r *Repository) InsertSwap(ctx context.Context, s *TokenSwap) (bool, error) {
	query := `
		INSERT INTO token_swap (token_address, tx_hash, timestamp, type, wallet_address,
		                        token_amount, sol_amount, price_usd, total_value_usd)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (token_address, tx_hash) DO NOTHING
	`
	tag, err := r.db.Pool.Exec(
		ctx, query,
		s.TokenAddress, s.TxHash, s.Timestamp, s.Type, s.WalletAddress,
		s.TokenAmount, s.SolAmount, s.PriceUSD, s.TotalValueUSD,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// InsertSwapBatch persists a page of swaps in one round trip. Returns the
// number of rows actually written (duplicates skipped).
func (r *Repository) InsertSwapBatch(ctx context.Context, swaps []*TokenSwap) (int, error) {
	if len(swaps) == 0 {
		return 0, nil
	}
	query := `
		INSERT INTO token_swap (token_address, tx_hash, timestamp, type, wallet_address,
		                        token_amount, sol_amount, price_usd, total_value_usd)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (token_address, tx_hash) DO NOTHING
	`
	batch := &pgx.Batch{}
	for _, s := range swaps {
		batch.Queue(query,
			s.TokenAddress, s.TxHash, s.Timestamp, s.Type, s.WalletAddress,
			s.TokenAmount, s.SolAmount, s.PriceUSD, s.TotalValueUSD,
		)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range swaps {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("swap batch insert failed: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// GetSwaps fetches the most recent swaps of a token, newest first
func (r *Repository) GetSwaps(ctx context.Context, address string, limit int) ([]*TokenSwap, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query := swapSelect + ` WHERE token_address = $1 ORDER BY timestamp DESC LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, query, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSwaps(rows)
}

// GetSwapTimeBounds returns the oldest and newest swap timestamps plus the
// total count for a token. ok is false when no swaps exist.
func (r *Repository) GetSwapTimeBounds(ctx context.Context, address string) (oldest, newest time.Time, total int64, ok bool, err error) {
	query := `
		SELECT MIN(timestamp), MAX(timestamp), COUNT(*)
		FROM token_swap WHERE token_address = $1
	`
	var minT, maxT *time.Time
	if err = r.db.Pool.QueryRow(ctx, query, address).Scan(&minT, &maxT, &total); err != nil {
		return
	}
	if minT == nil || maxT == nil {
		return
	}
	return *minT, *maxT, total, true, nil
}

// GetSwapVolume24h sums total_value_usd over the trailing 24 hours
func (r *Repository) GetSwapVolume24h(ctx context.Context, address string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(total_value_usd), 0)
		FROM token_swap
		WHERE token_address = $1 AND timestamp >= NOW() - INTERVAL '24 hours'
	`
	var volume float64
	err := r.db.Pool.QueryRow(ctx, query, address).Scan(&volume)
	return volume, err
}

// DeleteSwapsByAddress removes every swap of a token. Used by orphan cleanup.
func (r *Repository) DeleteSwapsByAddress(ctx context.Context, address string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM token_swap WHERE token_address = $1`, address)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const swapSelect = `
	SELECT id, token_address, tx_hash, timestamp, type, wallet_address,
	       token_amount, sol_amount, price_usd, total_value_usd, created_at
	FROM token_swap`

func collectSwaps(rows pgx.Rows) ([]*TokenSwap, error) {
	var out []*TokenSwap
	for rows.Next() {
		s := &TokenSwap{}
		err := rows.Scan(
			&s.ID, &s.TokenAddress, &s.TxHash, &s.Timestamp, &s.Type,
			&s.WalletAddress, &s.TokenAmount, &s.SolAmount, &s.PriceUSD,
			&s.TotalValueUSD, &s.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
