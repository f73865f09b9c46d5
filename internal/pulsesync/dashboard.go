package pulsesync

import (
	"context"
	"time"

	"solana-pulse-backend/internal/database"
	"solana-pulse-backend/internal/hub"
	"solana-pulse-backend/internal/logging"
	"solana-pulse-backend/internal/upstream"
)

// TrendingSource feeds the curated dashboard list
type TrendingSource interface {
	GetTrending(ctx context.Context, limit int) ([]upstream.TokenLite, error)
	GetMultiPrice(ctx context.Context, addresses []string) (map[string]float64, error)
}

// DashboardStore is the curated-token slice of the repository
type DashboardStore interface {
	UpsertToken(ctx context.Context, t *database.Token) error
	UpdateTokenPrices(ctx context.Context, prices map[string]float64) error
	ListTokens(ctx context.Context, sort, order string, page, limit int, search string) ([]*database.Token, int, error)
	ListTokenAddresses(ctx context.Context) ([]string, error)
}

// SubscriberAware lets the broadcaster skip work on an idle topic
type SubscriberAware interface {
	Publish(topic, eventType string, data interface{})
	HasSubscribers(topic string) bool
}

// DashboardSyncer is the single writer of the curated token table. It
// refreshes the trending list on a slow cadence and pushes a 1-second price
// snapshot while the dashboard topic is watched.
type DashboardSyncer struct {
	source TrendingSource
	store  DashboardStore
	hub    SubscriberAware
	log    *logging.Logger

	interval      time.Duration
	trendingLimit int
}

// NewDashboardSyncer builds the dashboard loop
func NewDashboardSyncer(source TrendingSource, store DashboardStore, broadcaster SubscriberAware, interval time.Duration) *DashboardSyncer {
	if interval <= 0 {
		interval = time.Minute
	}
	return &DashboardSyncer{
		source:        source,
		store:         store,
		hub:           broadcaster,
		log:           logging.WithComponent("dashboard"),
		interval:      interval,
		trendingLimit: 50,
	}
}

// Run refreshes the curated list until cancelled. An immediate first pass
// seeds an empty table.
func (d *DashboardSyncer) Run(ctx context.Context) {
	d.Sync(ctx)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dashboard sync stopped")
			return
		case <-ticker.C:
			d.Sync(ctx)
		}
	}
}

// Sync performs one refresh pass
func (d *DashboardSyncer) Sync(ctx context.Context) {
	trending, err := d.source.GetTrending(ctx, d.trendingLimit)
	if err != nil {
		d.log.Warn("trending fetch failed", "error", err)
		return
	}
	updated := 0
	for i := range trending {
		t := &trending[i]
		if t.Address == "" {
			continue
		}
		row := &database.Token{
			Address:        t.Address,
			Symbol:         t.Symbol,
			Name:           t.Name,
			Decimals:       t.Decimals,
			LogoURI:        t.LogoURI,
			Price:          t.Price,
			PriceChange24h: t.PriceChange24h,
			Volume24h:      t.Volume24h,
			MarketCap:      t.MarketCap,
			Liquidity:      t.Liquidity,
		}
		if err := d.store.UpsertToken(ctx, row); err != nil {
			d.log.Warn("token upsert failed", "address", t.Address, "error", err)
			continue
		}
		updated++
	}
	d.log.Debug("dashboard refresh done", "updated", updated)
}

// RunPriceBroadcast pushes a dashboard:prices snapshot every second while
// the topic has subscribers. Prices come from the multi-price feed in one
// call per tick.
func (d *DashboardSyncer) RunPriceBroadcast(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !d.hub.HasSubscribers(hub.TopicDashboard) {
				continue
			}
			d.broadcastPrices(ctx)
		}
	}
}

func (d *DashboardSyncer) broadcastPrices(ctx context.Context) {
	addresses, err := d.store.ListTokenAddresses(ctx)
	if err != nil || len(addresses) == 0 {
		return
	}
	if len(addresses) > 100 {
		addresses = addresses[:100]
	}
	prices, err := d.source.GetMultiPrice(ctx, addresses)
	if err != nil {
		d.log.Debug("multi price fetch failed", "error", err)
		return
	}
	if len(prices) == 0 {
		return
	}
	if err := d.store.UpdateTokenPrices(ctx, prices); err != nil {
		d.log.Warn("price update failed", "error", err)
	}
	d.hub.Publish(hub.TopicDashboard, "dashboard:prices", prices)
}
