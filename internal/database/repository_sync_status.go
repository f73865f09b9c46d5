package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// GetSyncStatus fetches the swap sync bookkeeping row; (nil, nil) when absent
func (r *Repository) GetSyncStatus(ctx context.Context, address string) (*TokenSyncStatus, error) {
	query := `
		SELECT token_address, swaps_synced, oldest_swap_time, newest_swap_time,
		       total_swaps, last_swap_sync, updated_at
		FROM token_sync_status
		WHERE token_address = $1
	`
	s := &TokenSyncStatus{}
	err := r.db.Pool.QueryRow(ctx, query, address).Scan(
		&s.TokenAddress, &s.SwapsSynced, &s.OldestSwapTime, &s.NewestSwapTime,
		&s.TotalSwaps, &s.LastSwapSync, &s.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// UpsertSyncStatus writes the bookkeeping row after a sync pass
func (r *Repository) UpsertSyncStatus(ctx context.Context, s *TokenSyncStatus) error {
	query := `
		INSERT INTO token_sync_status (token_address, swaps_synced, oldest_swap_time,
		                               newest_swap_time, total_swaps, last_swap_sync, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (token_address) DO UPDATE SET
			swaps_synced = EXCLUDED.swaps_synced,
			oldest_swap_time = EXCLUDED.oldest_swap_time,
			newest_swap_time = EXCLUDED.newest_swap_time,
			total_swaps = EXCLUDED.total_swaps,
			last_swap_sync = EXCLUDED.last_swap_sync,
			updated_at = NOW()
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		s.TokenAddress, s.SwapsSynced, s.OldestSwapTime, s.NewestSwapTime,
		s.TotalSwaps, s.LastSwapSync,
	)
	return err
}

// TouchSyncStatus bumps last_swap_sync and the swap counters in one statement
func (r *Repository) TouchSyncStatus(ctx context.Context, address string, oldest, newest time.Time, total int64, synced bool) error {
	s := &TokenSyncStatus{
		TokenAddress: address,
		SwapsSynced:  synced,
		TotalSwaps:   total,
	}
	now := time.Now()
	s.LastSwapSync = &now
	if !oldest.IsZero() {
		s.OldestSwapTime = &oldest
	}
	if !newest.IsZero() {
		s.NewestSwapTime = &newest
	}
	return r.UpsertSyncStatus(ctx, s)
}

// DeleteSyncStatus removes the bookkeeping row. Used by orphan cleanup.
func (r *Repository) DeleteSyncStatus(ctx context.Context, address string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM token_sync_status WHERE token_address = $1`, address)
	return err
}
