package pulsesync

import (
	"context"
	"sync"
	"time"

	"solana-pulse-backend/internal/database"
	"solana-pulse-backend/internal/upstream"
)

// Refresh caps per category
const (
	newListLimit        = 50
	graduatingListLimit = 100
	graduatedListLimit  = 50
)

// refreshAndClassify pulls the three category lists, supplements them with
// live observations and upserts every item under its classified category.
func (e *Engine) refreshAndClassify(ctx context.Context, liveNew []database.PulseToken, migrated []string) {
	migratedSet := make(map[string]bool, len(migrated))
	for _, addr := range migrated {
		migratedSet[addr] = true
	}

	type fetch struct {
		category string
		items    []upstream.PulseToken
		err      error
	}
	results := make([]fetch, 3)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		items, err := e.source.GetLatestTokens(ctx, newListLimit)
		results[0] = fetch{database.CategoryNew, items, err}
	}()
	go func() {
		defer wg.Done()
		items, err := e.source.GetGraduatingTokens(ctx, graduatingListLimit)
		results[1] = fetch{database.CategoryGraduating, items, err}
	}()
	go func() {
		defer wg.Done()
		items, err := e.source.GetGraduatedTokens(ctx, graduatedListLimit)
		results[2] = fetch{database.CategoryGraduated, items, err}
	}()
	wg.Wait()

	seen := make(map[string]bool)
	upserted := 0
	for _, res := range results {
		if res.err != nil {
			e.log.Warn("pulse list fetch failed", "category", res.category, "error", res.err)
			continue
		}
		for i := range res.items {
			row := toPulseRow(&res.items[i], res.category)
			e.classify(row, migratedSet)
			e.enrichLogo(row)
			if seen[row.Address] {
				continue
			}
			seen[row.Address] = true
			if err := e.store.UpsertPulseToken(ctx, row); err != nil {
				e.log.Warn("pulse upsert failed", "address", row.Address, "error", err)
				continue
			}
			upserted++
		}
	}

	// live new-token observations not present in the feed lists
	for i := range liveNew {
		row := &liveNew[i]
		if seen[row.Address] {
			continue
		}
		seen[row.Address] = true
		row.Category = database.CategoryNew
		e.classify(row, migratedSet)
		e.enrichLogo(row)
		if err := e.store.UpsertPulseToken(ctx, row); err != nil {
			e.log.Warn("live pulse upsert failed", "address", row.Address, "error", err)
			continue
		}
		upserted++
	}

	// migrations observed by the ingester move rows to GRADUATED even when
	// the feed has not caught up
	for addr := range migratedSet {
		if seen[addr] {
			continue
		}
		if err := e.store.UpdatePulseCategory(ctx, addr, database.CategoryGraduated); err != nil {
			e.log.Warn("migration reclass failed", "address", addr, "error", err)
		}
	}

	e.log.Debug("pulse refresh done", "upserted", upserted, "live_new", len(liveNew), "migrated", len(migrated))
}

// classify applies the category rules on top of the feed's own grouping
func (e *Engine) classify(row *database.PulseToken, migratedSet map[string]bool) {
	switch {
	case migratedSet[row.Address]:
		row.Category = database.CategoryGraduated
	case row.Category == database.CategoryGraduated:
		// feed-reported graduation stands
	case row.MarketCap >= e.cfg.GraduationMinUSD && row.MarketCap < e.cfg.GraduationMaxUSD:
		row.Category = database.CategoryGraduating
	}
	if row.Category == database.CategoryGraduated && row.GraduatedAt == nil {
		now := time.Now()
		row.GraduatedAt = &now
	}
}

// enrichLogo fills a missing logo from the already-resolved cache
func (e *Engine) enrichLogo(row *database.PulseToken) {
	if row.LogoURI != "" || e.logos == nil {
		return
	}
	if logo, ok := e.logos.CachedLogo(row.Address); ok {
		row.LogoURI = logo
	}
}

// persistResolvedLogos writes logos the ingester resolved since the last
// tick into rows that still lack one
func (e *Engine) persistResolvedLogos(ctx context.Context) {
	if e.live == nil {
		return
	}
	for addr, logo := range e.live.DrainResolvedLogos() {
		if err := e.store.UpdatePulseLogo(ctx, addr, logo); err != nil {
			e.log.Warn("logo persist failed", "address", addr, "error", err)
		}
	}
}

// expire deletes stale rows per category TTL
func (e *Engine) expire(ctx context.Context) {
	for _, c := range []struct {
		category string
		ttl      time.Duration
	}{
		{database.CategoryNew, e.cfg.NewTTL},
		{database.CategoryGraduating, e.cfg.GraduatingTTL},
		{database.CategoryGraduated, e.cfg.GraduatedTTL},
	} {
		deleted, err := e.store.DeleteStalePulseTokens(ctx, c.category, c.ttl)
		if err != nil {
			e.log.Warn("stale row expiry failed", "category", c.category, "error", err)
			continue
		}
		if len(deleted) > 0 {
			e.log.Info("expired pulse tokens", "category", c.category, "count", len(deleted))
		}
	}
}

// kickSwapSync schedules bounded backfill and tail work; scheduling errors
// never abort the tick.
func (e *Engine) kickSwapSync(ctx context.Context) {
	unsynced, err := e.store.ListUnsyncedPulseAddresses(ctx, e.cfg.InitialWorkers)
	if err != nil {
		e.log.Warn("unsynced lookup failed", "error", err)
	}
	for _, addr := range unsynced {
		if e.syncer.IsSyncing(addr) {
			continue
		}
		go func(address string) {
			if err := e.syncer.SyncHistorical(ctx, address); err != nil {
				e.log.Warn("historical backfill failed", "address", address, "error", err)
			}
		}(addr)
	}

	synced, err := e.store.ListSyncedPulseAddresses(ctx, e.cfg.TailWorkers)
	if err != nil {
		e.log.Warn("synced lookup failed", "error", err)
	}
	for _, addr := range synced {
		go func(address string) {
			if err := e.syncer.SyncNew(ctx, address); err != nil {
				e.log.Warn("tail sync failed", "address", address, "error", err)
			}
		}(addr)
	}
}

// cleanupOrphans removes swap history for tokens that left the pulse table
func (e *Engine) cleanupOrphans(ctx context.Context) {
	orphans, err := e.store.ListOrphanSwapAddresses(ctx, e.cfg.CleanupBatch)
	if err != nil {
		e.log.Warn("orphan lookup failed", "error", err)
		return
	}
	for _, addr := range orphans {
		deleted, err := e.store.DeleteSwapsByAddress(ctx, addr)
		if err != nil {
			e.log.Warn("orphan swap delete failed", "address", addr, "error", err)
			continue
		}
		if err := e.store.DeleteSyncStatus(ctx, addr); err != nil {
			e.log.Warn("orphan status delete failed", "address", addr, "error", err)
			continue
		}
		e.log.Info("orphan cleaned", "address", addr, "swaps_deleted", deleted)
	}
}

// toPulseRow converts a feed item to the persisted shape
func toPulseRow(t *upstream.PulseToken, category string) *database.PulseToken {
	row := &database.PulseToken{
		Address:         t.Address,
		Symbol:          t.Symbol,
		Name:            t.Name,
		Decimals:        t.Decimals,
		LogoURI:         t.LogoURI,
		Price:           t.Price,
		PriceChange24h:  t.PriceChange24h,
		Volume24h:       t.Volume24h,
		MarketCap:       t.MarketCap,
		Liquidity:       t.Liquidity,
		Category:        category,
		BondingProgress: t.BondingProgress,
		Description:     t.Description,
		Twitter:         t.Twitter,
		Telegram:        t.Telegram,
		Website:         t.Website,
		ReplyCount:      t.ReplyCount,
		TxCount:         t.TxCount,
		Source:          t.Source,
	}
	if t.CreatedAt > 0 {
		created := time.UnixMilli(t.CreatedAt)
		row.TokenCreatedAt = &created
	}
	if t.GraduatedAt != nil {
		grad := time.UnixMilli(*t.GraduatedAt)
		row.GraduatedAt = &grad
	}
	return row
}
