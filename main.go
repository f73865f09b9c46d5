package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"solana-pulse-backend/config"
	"solana-pulse-backend/internal/api"
	"solana-pulse-backend/internal/cache"
	"solana-pulse-backend/internal/candles"
	"solana-pulse-backend/internal/database"
	"solana-pulse-backend/internal/hub"
	"solana-pulse-backend/internal/images"
	"solana-pulse-backend/internal/ingest"
	"solana-pulse-backend/internal/logging"
	"solana-pulse-backend/internal/pulsesync"
	"solana-pulse-backend/internal/solprice"
	"solana-pulse-backend/internal/swapsync"
	"solana-pulse-backend/internal/upstream"
)

// maxTrackedTokens bounds the live trade subscriptions held at once
const maxTrackedTokens = 100

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)

	// Database and migrations
	db, err := database.NewDB(cfg.DatabaseConfig.URL, cfg.DatabaseConfig.PoolSize)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.RunMigrations(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	repo := database.NewRepository(db)

	// KV cache: Redis when configured, in-memory otherwise
	kv, err := cache.New(cfg.RedisConfig.URL, cfg.RedisConfig.PoolSize)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer kv.Close()

	// Upstream feed clients
	up := cfg.UpstreamConfig
	tracker := upstream.NewSolanaTrackerClient(up.SolanaTrackerBaseURL, up.SolanaTrackerAPIKey, up.RequestTimeout)
	dexscreener := upstream.NewDexScreenerClient(up.DexScreenerBaseURL, up.RequestTimeout)
	birdeye := upstream.NewBirdeyeClient(up.BirdeyeBaseURL, up.BirdeyeAPIKey, up.RequestTimeout)
	coingecko := upstream.NewCoinGeckoClient(up.CoinGeckoBaseURL, up.CoinGeckoAPIKey, up.RequestTimeout)

	// SOL price chain, cheapest feed first
	solPrice := solprice.NewService(
		&solprice.CoinGeckoProvider{Client: coingecko},
		&solprice.BirdeyeProvider{Client: birdeye},
		&solprice.TrackerProvider{Client: tracker},
	)

	// IPFS logo fetcher
	logos := images.NewFetcher(cfg.ImageConfig.Gateways, cfg.ImageConfig.Timeout)

	// Fan-out hub
	fanout := hub.New()

	// Live trade ingest over the push stream
	push := upstream.NewPumpPortalClient(up.PumpPortalWSURL)
	ingester := ingest.NewIngester(push, repo, logos, solPrice, fanout, maxTrackedTokens, cfg.PulseConfig.GraduationProximitySolMC)

	// Swap backfill and swap-derived candles
	swapEngine := swapsync.NewEngine(tracker, repo, solPrice, cfg.SwapSyncConfig.MaxPages, cfg.SwapSyncConfig.PageSize)

	// Dashboard candle cache
	candleEngine := candles.NewEngine(repo, cfg.CandleConfig.LiveRefresh)

	// Pulse category sync
	pulseEngine := pulsesync.NewEngine(tracker, repo, swapEngine, ingester, logos, pulsesync.Config{
		Interval:         cfg.PulseConfig.SyncInterval,
		GraduationMinUSD: cfg.PulseConfig.GraduationMCMinUSD,
		GraduationMaxUSD: cfg.PulseConfig.GraduationMCMaxUSD,
		NewTTL:           cfg.PulseConfig.NewTTL,
		GraduatingTTL:    cfg.PulseConfig.GraduatingTTL,
		GraduatedTTL:     cfg.PulseConfig.GraduatedTTL,
		InitialWorkers:   cfg.PulseConfig.InitialSyncWorkers,
		TailWorkers:      cfg.PulseConfig.TailSyncWorkers,
	})

	// Curated dashboard sync and its 1s price broadcast
	dashboard := pulsesync.NewDashboardSyncer(birdeye, repo, fanout, cfg.DashboardConfig.SyncInterval)

	// HTTP read services and server
	svc := api.NewService(repo, kv, tracker, dexscreener, birdeye, coingecko, swapEngine, candleEngine, ingester)
	server := api.NewServer(&cfg.ServerConfig, svc, fanout, repo, kv, ingester)

	// Background loops
	loopCtx, cancelLoops := context.WithCancel(ctx)
	ingester.Start(loopCtx)
	go pulseEngine.Run(loopCtx)
	go dashboard.Run(loopCtx)
	go dashboard.RunPriceBroadcast(loopCtx)

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Failed to start web server: %v", err)
		}
	}()
	logger.Info("solana pulse backend started",
		"port", cfg.ServerConfig.Port,
		"redis", cfg.RedisConfig.URL != "")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")

	// Shutdown order: stop accepting subscribers and drain HTTP, close the
	// push stream, then cancel the periodic loops and give in-flight DB
	// writes a grace period.
	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", "error", err)
	}
	ingester.Stop()
	cancelLoops()

	// grace for DB writes the loops kicked off before cancellation
	time.Sleep(500 * time.Millisecond)
	logger.Info("shutdown complete")
}
