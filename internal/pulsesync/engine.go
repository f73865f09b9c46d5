// Package pulsesync keeps the pulse token table in step with the list
// feed: refresh, classification, expiry and swap-sync scheduling.
package pulsesync

import (
	"context"
	"sync"
	"time"

	"solana-pulse-backend/internal/database"
	"solana-pulse-backend/internal/logging"
	"solana-pulse-backend/internal/upstream"
)

// Graduation market-cap band in USD, half-open
const (
	DefaultGraduationMinUSD = 10_000
	DefaultGraduationMaxUSD = 69_000
)

// ListSource fetches the category lists from the token data feed
type ListSource interface {
	GetLatestTokens(ctx context.Context, limit int) ([]upstream.PulseToken, error)
	GetGraduatingTokens(ctx context.Context, limit int) ([]upstream.PulseToken, error)
	GetGraduatedTokens(ctx context.Context, limit int) ([]upstream.PulseToken, error)
}

// Store is the pulse slice of the repository
type Store interface {
	UpsertPulseToken(ctx context.Context, t *database.PulseToken) error
	UpdatePulseCategory(ctx context.Context, address, category string) error
	UpdatePulseLogo(ctx context.Context, address, logoURI string) error
	DeleteStalePulseTokens(ctx context.Context, category string, ttl time.Duration) ([]string, error)
	ListUnsyncedPulseAddresses(ctx context.Context, limit int) ([]string, error)
	ListSyncedPulseAddresses(ctx context.Context, limit int) ([]string, error)
	ListOrphanSwapAddresses(ctx context.Context, limit int) ([]string, error)
	DeleteSwapsByAddress(ctx context.Context, address string) (int64, error)
	DeleteSyncStatus(ctx context.Context, address string) error
}

// SwapSyncer schedules swap backfills and tail syncs
type SwapSyncer interface {
	SyncHistorical(ctx context.Context, address string) error
	SyncNew(ctx context.Context, address string) error
	IsSyncing(address string) bool
}

// LiveFeed is the slice of the trade ingester the sync engine consults for
// real-time supplements
type LiveFeed interface {
	DrainObserved() (newTokens []database.PulseToken, migrated []string)
	DrainResolvedLogos() map[string]string
}

// LogoSource looks up already resolved logos for rows the feed returns
// without one
type LogoSource interface {
	CachedLogo(mint string) (string, bool)
}

// Config tunes the engine
type Config struct {
	Interval         time.Duration // tick spacing, default 5s
	GraduationMinUSD float64
	GraduationMaxUSD float64
	NewTTL           time.Duration // default 24h
	GraduatingTTL    time.Duration // default 48h
	GraduatedTTL     time.Duration // default 7d
	InitialWorkers   int           // historical backfills per tick, default 5
	TailWorkers      int           // tail syncs per tick, default 20
	CleanupInterval  time.Duration // orphan sweep spacing, default 5m
	CleanupBatch     int           // orphans per sweep, default 10
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.GraduationMinUSD <= 0 {
		c.GraduationMinUSD = DefaultGraduationMinUSD
	}
	if c.GraduationMaxUSD <= 0 {
		c.GraduationMaxUSD = DefaultGraduationMaxUSD
	}
	if c.NewTTL <= 0 {
		c.NewTTL = 24 * time.Hour
	}
	if c.GraduatingTTL <= 0 {
		c.GraduatingTTL = 48 * time.Hour
	}
	if c.GraduatedTTL <= 0 {
		c.GraduatedTTL = 7 * 24 * time.Hour
	}
	if c.InitialWorkers <= 0 {
		c.InitialWorkers = 5
	}
	if c.TailWorkers <= 0 {
		c.TailWorkers = 20
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = 5 * time.Minute
	}
	if c.CleanupBatch <= 0 {
		c.CleanupBatch = 10
	}
}

// Engine drives the 5-second pulse cycle
type Engine struct {
	source ListSource
	store  Store
	syncer SwapSyncer
	live   LiveFeed
	logos  LogoSource
	cfg    Config
	log    *logging.Logger

	mu          sync.Mutex
	ticking     bool
	lastCleanup time.Time
}

// NewEngine builds the pulse sync engine. live and logos may be nil when no
// push ingester runs.
func NewEngine(source ListSource, store Store, syncer SwapSyncer, live LiveFeed, logos LogoSource, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		source: source,
		store:  store,
		syncer: syncer,
		live:   live,
		logos:  logos,
		cfg:    cfg,
		log:    logging.WithComponent("pulsesync"),
	}
}

// Run ticks until the context is cancelled
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	e.log.Info("pulse sync started", "interval", e.cfg.Interval.String())
	for {
		select {
		case <-ctx.Done():
			e.log.Info("pulse sync stopped")
			return
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick executes one sync cycle. Overlapping calls return immediately.
func (e *Engine) Tick(ctx context.Context) {
	e.mu.Lock()
	if e.ticking {
		e.mu.Unlock()
		return
	}
	e.ticking = true
	runCleanup := time.Since(e.lastCleanup) >= e.cfg.CleanupInterval
	if runCleanup {
		e.lastCleanup = time.Now()
	}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.ticking = false
		e.mu.Unlock()
	}()

	var liveNew []database.PulseToken
	var migrated []string
	if e.live != nil {
		liveNew, migrated = e.live.DrainObserved()
	}

	e.refreshAndClassify(ctx, liveNew, migrated)
	e.persistResolvedLogos(ctx)
	e.expire(ctx)
	e.kickSwapSync(ctx)
	if runCleanup {
		e.cleanupOrphans(ctx)
	}
}
