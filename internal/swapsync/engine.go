// Package swapsync owns the persisted swap history of pulse tokens:
// historical backfill, incremental tail sync and swap-derived OHLCV.
package swapsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"solana-pulse-backend/internal/database"
	"solana-pulse-backend/internal/logging"
	"solana-pulse-backend/internal/ohlcv"
	"solana-pulse-backend/internal/upstream"
)

// SwapSource pages historical swaps, newest first
type SwapSource interface {
	GetSwaps(ctx context.Context, address, cursor string, limit int) (*upstream.SwapPage, error)
}

// Store is the slice of the repository the engine writes through
type Store interface {
	InsertSwapBatch(ctx context.Context, swaps []*database.TokenSwap) (int, error)
	GetSwaps(ctx context.Context, address string, limit int) ([]*database.TokenSwap, error)
	GetSwapTimeBounds(ctx context.Context, address string) (oldest, newest time.Time, total int64, ok bool, err error)
	GetSyncStatus(ctx context.Context, address string) (*database.TokenSyncStatus, error)
	UpsertSyncStatus(ctx context.Context, s *database.TokenSyncStatus) error
}

// SolPricer supplies the SOL/USD price for bonding-curve price derivation
type SolPricer interface {
	GetPriceSync() float64
}

// Engine is the single non-push writer of the swap table
type Engine struct {
	source   SwapSource
	store    Store
	solPrice SolPricer
	log      *logging.Logger

	maxPages int
	pageSize int

	mu      sync.Mutex
	syncing map[string]bool // single-flight guard per address
}

// NewEngine creates a swap sync engine. maxPages and pageSize cap one
// historical backfill.
func NewEngine(source SwapSource, store Store, solPrice SolPricer, maxPages, pageSize int) *Engine {
	if maxPages <= 0 || maxPages > 200 {
		maxPages = 200
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	return &Engine{
		source:   source,
		store:    store,
		solPrice: solPrice,
		log:      logging.WithComponent("swapsync"),
		maxPages: maxPages,
		pageSize: pageSize,
		syncing:  make(map[string]bool),
	}
}

// IsSyncing reports whether a backfill for the address is in flight
func (e *Engine) IsSyncing(address string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncing[address]
}

func (e *Engine) tryAcquire(address string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.syncing[address] {
		return false
	}
	e.syncing[address] = true
	return true
}

func (e *Engine) release(address string) {
	e.mu.Lock()
	delete(e.syncing, address)
	e.mu.Unlock()
}

// SyncHistorical backfills the full upstream swap history of a token.
// Concurrent calls for the same address coalesce into one run; an already
// synced token returns immediately.
func (e *Engine) SyncHistorical(ctx context.Context, address string) error {
	if !e.tryAcquire(address) {
		return nil
	}
	defer e.release(address)

	status, err := e.store.GetSyncStatus(ctx, address)
	if err != nil {
		return fmt.Errorf("sync status lookup: %w", err)
	}
	if status != nil && status.SwapsSynced {
		return nil
	}

	start := time.Now()
	cursor := ""
	inserted, dropped := 0, 0

	for page := 0; page < e.maxPages; page++ {
		sp, err := e.source.GetSwaps(ctx, address, cursor, e.pageSize)
		if err != nil {
			if upstream.IsNotFound(err) {
				break
			}
			return fmt.Errorf("swap page %d: %w", page, err)
		}
		if sp == nil || len(sp.Swaps) == 0 {
			break
		}

		rows := make([]*database.TokenSwap, 0, len(sp.Swaps))
		for i := range sp.Swaps {
			row, ok := e.parseSwap(address, &sp.Swaps[i])
			if !ok {
				dropped++
				continue
			}
			rows = append(rows, row)
		}
		n, err := e.store.InsertSwapBatch(ctx, rows)
		if err != nil {
			return fmt.Errorf("swap insert: %w", err)
		}
		inserted += n

		if !sp.HasNext || sp.NextCursor == "" {
			break
		}
		cursor = sp.NextCursor
	}

	if err := e.markSynced(ctx, address); err != nil {
		return err
	}
	e.log.Info("historical backfill done",
		"address", address, "inserted", inserted, "dropped", dropped,
		"elapsed", time.Since(start).String())
	return nil
}

// SyncNew pulls the most recent page of swaps for an already synced token.
// Unsynced tokens fall through to a full historical backfill.
func (e *Engine) SyncNew(ctx context.Context, address string) error {
	status, err := e.store.GetSyncStatus(ctx, address)
	if err != nil {
		return fmt.Errorf("sync status lookup: %w", err)
	}
	if status == nil || !status.SwapsSynced {
		return e.SyncHistorical(ctx, address)
	}

	sp, err := e.source.GetSwaps(ctx, address, "", e.pageSize)
	if err != nil {
		if upstream.IsNotFound(err) {
			// still a successful check; stamp the clock so the tail
			// rotation moves past quiet tokens
			return e.markSynced(ctx, address)
		}
		return fmt.Errorf("tail page: %w", err)
	}
	if sp != nil && len(sp.Swaps) > 0 {
		rows := make([]*database.TokenSwap, 0, len(sp.Swaps))
		for i := range sp.Swaps {
			if row, ok := e.parseSwap(address, &sp.Swaps[i]); ok {
				rows = append(rows, row)
			}
		}
		if _, err := e.store.InsertSwapBatch(ctx, rows); err != nil {
			return fmt.Errorf("tail insert: %w", err)
		}
	}
	return e.markSynced(ctx, address)
}

// markSynced rewrites the bookkeeping row from the actual table bounds
func (e *Engine) markSynced(ctx context.Context, address string) error {
	oldest, newest, total, ok, err := e.store.GetSwapTimeBounds(ctx, address)
	if err != nil {
		return fmt.Errorf("swap bounds: %w", err)
	}
	now := time.Now()
	status := &database.TokenSyncStatus{
		TokenAddress: address,
		SwapsSynced:  true,
		TotalSwaps:   total,
		LastSwapSync: &now,
	}
	if ok {
		status.OldestSwapTime = &oldest
		status.NewestSwapTime = &newest
	}
	return e.store.UpsertSyncStatus(ctx, status)
}

// GetOHLCV builds candles from persisted swaps, the single OHLCV source for
// pulse tokens.
func (e *Engine) GetOHLCV(ctx context.Context, address string, intervalMs int64, maxCandles int) ([]upstream.OHLCV, error) {
	if maxCandles <= 0 {
		maxCandles = 300
	}
	rows, err := e.store.GetSwaps(ctx, address, maxCandles*2)
	if err != nil {
		return nil, fmt.Errorf("swap read: %w", err)
	}
	swaps := make([]ohlcv.Swap, 0, len(rows))
	// rows are newest first; the builder sorts
	for _, r := range rows {
		swaps = append(swaps, ohlcv.Swap{
			TimestampMs: r.Timestamp.UnixMilli(),
			Price:       r.PriceUSD,
			VolumeUSD:   r.TotalValueUSD,
		})
	}
	return ohlcv.BuildCandlesFromSwaps(swaps, intervalMs, maxCandles), nil
}

// GetPerTradeCandles builds one candle per swap for short-lived tokens
func (e *Engine) GetPerTradeCandles(ctx context.Context, address string, maxTrades int) ([]upstream.OHLCV, error) {
	if maxTrades <= 0 {
		maxTrades = 500
	}
	rows, err := e.store.GetSwaps(ctx, address, maxTrades)
	if err != nil {
		return nil, fmt.Errorf("swap read: %w", err)
	}
	swaps := make([]ohlcv.Swap, 0, len(rows))
	for _, r := range rows {
		swaps = append(swaps, ohlcv.Swap{
			TimestampMs: r.Timestamp.UnixMilli(),
			Price:       r.PriceUSD,
			VolumeUSD:   r.TotalValueUSD,
		})
	}
	return ohlcv.BuildPerTradeCandles(swaps), nil
}
