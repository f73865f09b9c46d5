// Package api serves the HTTP read surface and the WebSocket fan-out
// endpoint. Every read goes KV cache -> database -> upstream, in that order.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"solana-pulse-backend/internal/cache"
	"solana-pulse-backend/internal/candles"
	"solana-pulse-backend/internal/database"
	"solana-pulse-backend/internal/logging"
	"solana-pulse-backend/internal/upstream"
)

// errBadTimeframe rejects timeframes outside the fixed vocabulary
var errBadTimeframe = errors.New("unknown timeframe")

// Store is the repository slice the read services use
type Store interface {
	GetPulseTokenByAddress(ctx context.Context, address string) (*database.PulseToken, error)
	UpsertPulseToken(ctx context.Context, t *database.PulseToken) error
	ListPulseTokensByCategory(ctx context.Context, category string, limit int) ([]*database.PulseToken, error)
	GetTokenByAddress(ctx context.Context, address string) (*database.Token, error)
	ListTokens(ctx context.Context, sort, order string, page, limit int, search string) ([]*database.Token, int, error)
	GetSwaps(ctx context.Context, address string, limit int) ([]*database.TokenSwap, error)
	GetSyncStatus(ctx context.Context, address string) (*database.TokenSyncStatus, error)
	GetSwapVolume24h(ctx context.Context, address string) (float64, error)
}

// MetadataFeed is the primary token-detail and holder source
type MetadataFeed interface {
	GetToken(ctx context.Context, address string) (*upstream.PulseToken, error)
	GetHolderStats(ctx context.Context, address string) (*upstream.HolderStats, error)
	GetTopHolders(ctx context.Context, address string, limit int) ([]upstream.TopHolder, error)
}

// FallbackFeed is the second token-detail source in the fallback chain
type FallbackFeed interface {
	GetToken(ctx context.Context, address string) (*upstream.TokenLite, error)
}

// DashFeed serves dashboard token detail, candles and the trending list
type DashFeed interface {
	GetTokenOverview(ctx context.Context, address string) (*upstream.TokenLite, error)
	GetOHLCV(ctx context.Context, address, interval string, fromMs, toMs int64) ([]upstream.OHLCV, error)
	GetTrending(ctx context.Context, limit int) ([]upstream.TokenLite, error)
}

// SupplyFeed serves SOL supply figures
type SupplyFeed interface {
	GetSupply(ctx context.Context, coinID string) (*upstream.Supply, error)
}

// SwapEngine is the swap-derived OHLCV and backfill surface
type SwapEngine interface {
	GetOHLCV(ctx context.Context, address string, intervalMs int64, maxCandles int) ([]upstream.OHLCV, error)
	GetPerTradeCandles(ctx context.Context, address string, maxTrades int) ([]upstream.OHLCV, error)
	SyncHistorical(ctx context.Context, address string) error
	IsSyncing(address string) bool
}

// CandleEngine is the cached dashboard OHLCV surface
type CandleEngine interface {
	GetCandles(ctx context.Context, address, tf string, fromMs, toMs int64, fetch candles.FetchFunc) ([]upstream.OHLCV, error)
}

// LiveCandles exposes the in-memory 1-second window of the trade ingester
type LiveCandles interface {
	GetLiveCandles(mint string) []upstream.OHLCV
}

// Service implements the read contracts behind the HTTP handlers
type Service struct {
	repo     Store
	kv       cache.KV
	metadata MetadataFeed
	fallback FallbackFeed
	dash     DashFeed
	supply   SupplyFeed
	swaps    SwapEngine
	candles  CandleEngine
	live     LiveCandles
	log      *logging.Logger

	// background backfills kicked by GetTrades run on this context so they
	// survive the triggering request
	baseCtx context.Context
}

// NewService wires the read services
func NewService(repo Store, kv cache.KV, metadata MetadataFeed, fallback FallbackFeed, dash DashFeed, supply SupplyFeed, swaps SwapEngine, candleEngine CandleEngine, live LiveCandles) *Service {
	return &Service{
		repo:     repo,
		kv:       kv,
		metadata: metadata,
		fallback: fallback,
		dash:     dash,
		supply:   supply,
		swaps:    swaps,
		candles:  candleEngine,
		live:     live,
		log:      logging.WithComponent("api"),
		baseCtx:  context.Background(),
	}
}

func (s *Service) fromCache(ctx context.Context, key string, out interface{}) bool {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return false
	}
	return json.Unmarshal([]byte(raw), out) == nil
}

func (s *Service) toCache(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if err := s.kv.Set(ctx, key, value, ttl); err != nil && err != cache.ErrMiss {
		s.log.Debug("cache write failed", "key", key, "error", err)
	}
}

// GetToken serves a pulse token: database first, then the upstream fallback
// chain. The first upstream hit is cached into pulse_token. Returns
// (nil, nil) when every source misses.
func (s *Service) GetToken(ctx context.Context, address string) (*database.PulseToken, error) {
	key := cache.TokenKey(address)
	var cached database.PulseToken
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	row, err := s.repo.GetPulseTokenByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if row != nil {
		s.toCache(ctx, key, row, cache.TokenTTL)
		return row, nil
	}

	row = s.fetchTokenFallback(ctx, address)
	if row == nil {
		return nil, nil
	}
	if err := s.repo.UpsertPulseToken(ctx, row); err != nil {
		s.log.Warn("token cache upsert failed", "address", address, "error", err)
	}
	s.toCache(ctx, key, row, cache.TokenTTL)
	return row, nil
}

// fetchTokenFallback walks the upstream chain for a token the database does
// not know yet
func (s *Service) fetchTokenFallback(ctx context.Context, address string) *database.PulseToken {
	if s.metadata != nil {
		if t, err := s.metadata.GetToken(ctx, address); err == nil && t != nil {
			return pulseRowFromUpstream(t)
		} else if err != nil && !upstream.IsNotFound(err) {
			s.log.Debug("metadata token fetch failed", "address", address, "error", err)
		}
	}
	if s.fallback != nil {
		if t, err := s.fallback.GetToken(ctx, address); err == nil && t != nil {
			return pulseRowFromLite(t)
		}
	}
	if s.dash != nil {
		if t, err := s.dash.GetTokenOverview(ctx, address); err == nil && t != nil {
			return pulseRowFromLite(t)
		}
	}
	return nil
}

func pulseRowFromUpstream(t *upstream.PulseToken) *database.PulseToken {
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
		Category:        database.CategoryNew,
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
	if t.Complete || t.GraduatedAt != nil {
		row.Category = database.CategoryGraduated
		if t.GraduatedAt != nil {
			grad := time.UnixMilli(*t.GraduatedAt)
			row.GraduatedAt = &grad
		}
	}
	return row
}

// pulseRowFromLite covers the DEX-only fallbacks: a token with a live DEX
// pair has left the bonding curve
func pulseRowFromLite(t *upstream.TokenLite) *database.PulseToken {
	return &database.PulseToken{
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
		Category:       database.CategoryGraduated,
		Source:         "dex",
	}
}

// TokenList is one page of curated dashboard tokens
type TokenList struct {
	Tokens []*database.Token `json:"tokens"`
	Total  int               `json:"total"`
	Page   int               `json:"page"`
	Limit  int               `json:"limit"`
}

// GetTokenList pages the curated token table
func (s *Service) GetTokenList(ctx context.Context, sort, order string, page, limit int, search string) (*TokenList, error) {
	tokens, total, err := s.repo.ListTokens(ctx, sort, order, page, limit, search)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		tokens = []*database.Token{}
	}
	return &TokenList{Tokens: tokens, Total: total, Page: page, Limit: limit}, nil
}

// dashCandleWindow is the default lookback in buckets when from is omitted
const dashCandleWindow = 300

// GetDashboardOHLCV serves candles for a curated token through the candle
// cache, fetching misses from the dashboard feed
func (s *Service) GetDashboardOHLCV(ctx context.Context, address, tf string, fromMs, toMs int64) ([]upstream.OHLCV, error) {
	interval, ok := candles.IntervalMs[tf]
	if !ok {
		return nil, errBadTimeframe
	}
	if toMs <= 0 {
		toMs = time.Now().UnixMilli()
	}
	if fromMs <= 0 {
		fromMs = toMs - dashCandleWindow*interval
	}

	key := cache.OHLCVKey(address, tf, rangeKey(fromMs, toMs))
	var cached []upstream.OHLCV
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}

	out, err := s.candles.GetCandles(ctx, address, tf, fromMs, toMs, s.fetchDashCandles)
	if err != nil {
		return nil, err
	}
	ttl := cache.OHLCVDBTTL
	if tf == "1w" || tf == "1M" {
		// aggregated timeframes are not cache-backed
		ttl = cache.OHLCVFetchTTL
	}
	s.toCache(ctx, key, out, ttl)
	return out, nil
}

func (s *Service) fetchDashCandles(ctx context.Context, address, tf string, fromMs, toMs int64) ([]upstream.OHLCV, error) {
	return s.dash.GetOHLCV(ctx, address, tf, fromMs, toMs)
}

// GetPulseOHLCV serves swap-derived candles for a pulse token. tf "1s" reads
// the ingester's live window; mode "trades" switches to per-trade candles.
func (s *Service) GetPulseOHLCV(ctx context.Context, address, tf, mode string) ([]upstream.OHLCV, error) {
	if tf == "1s" {
		if s.live == nil {
			return []upstream.OHLCV{}, nil
		}
		out := s.live.GetLiveCandles(address)
		if out == nil {
			out = []upstream.OHLCV{}
		}
		return out, nil
	}
	if mode == "trades" {
		return s.swaps.GetPerTradeCandles(ctx, address, 0)
	}
	interval, ok := candles.IntervalMs[tf]
	if !ok {
		return nil, errBadTimeframe
	}

	key := cache.OHLCVKey(address, tf, mode)
	var cached []upstream.OHLCV
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	out, err := s.swaps.GetOHLCV(ctx, address, interval, 0)
	if err != nil {
		return nil, err
	}
	s.toCache(ctx, key, out, cache.OHLCVDBTTL)
	return out, nil
}

// GetTrades serves recent swaps newest first. A token without a completed
// backfill gets one kicked in the background; the call still returns what the
// database holds right now.
func (s *Service) GetTrades(ctx context.Context, address string, limit int) ([]upstream.Trade, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	key := cache.TradesKey(address, limit)
	var cached []upstream.Trade
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}

	swaps, err := s.repo.GetSwaps(ctx, address, limit)
	if err != nil {
		return nil, err
	}
	s.maybeKickBackfill(ctx, address)

	out := make([]upstream.Trade, 0, len(swaps))
	for _, sw := range swaps {
		out = append(out, tradeFromSwap(sw))
	}
	s.toCache(ctx, key, out, cache.TradesTTL)
	return out, nil
}

func (s *Service) maybeKickBackfill(ctx context.Context, address string) {
	if s.swaps == nil || s.swaps.IsSyncing(address) {
		return
	}
	status, err := s.repo.GetSyncStatus(ctx, address)
	if err != nil || (status != nil && status.SwapsSynced) {
		return
	}
	go func() {
		if err := s.swaps.SyncHistorical(s.baseCtx, address); err != nil {
			s.log.Debug("background backfill failed", "address", address, "error", err)
		}
	}()
}

func tradeFromSwap(sw *database.TokenSwap) upstream.Trade {
	return upstream.Trade{
		TxHash:         sw.TxHash,
		Timestamp:      sw.Timestamp.UnixMilli(),
		Type:           sw.Type,
		Wallet:         sw.WalletAddress,
		TokenAmount:    sw.TokenAmount,
		TokenAmountUSD: sw.TokenAmount * sw.PriceUSD,
		OtherAmount:    sw.SolAmount,
		OtherSymbol:    "SOL",
		OtherAmountUSD: sw.TotalValueUSD,
		PriceUSD:       sw.PriceUSD,
		TotalValueUSD:  sw.TotalValueUSD,
	}
}

// Holders bundles the holder distribution with the largest holders
type Holders struct {
	Stats      *upstream.HolderStats `json:"stats"`
	TopHolders []upstream.TopHolder  `json:"top_holders"`
}

const topHoldersLimit = 20

// GetHolders fetches holder stats and the top-holder list in parallel
func (s *Service) GetHolders(ctx context.Context, address string) (*Holders, error) {
	key := cache.HoldersKey(address)
	var cached Holders
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	var (
		wg       sync.WaitGroup
		stats    *upstream.HolderStats
		top      []upstream.TopHolder
		statsErr error
		topErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		stats, statsErr = s.metadata.GetHolderStats(ctx, address)
	}()
	go func() {
		defer wg.Done()
		top, topErr = s.metadata.GetTopHolders(ctx, address, topHoldersLimit)
	}()
	wg.Wait()

	if statsErr != nil {
		return nil, statsErr
	}
	if topErr != nil {
		s.log.Debug("top holders fetch failed", "address", address, "error", topErr)
		top = nil
	}
	if top == nil {
		top = []upstream.TopHolder{}
	}
	out := &Holders{Stats: stats, TopHolders: top}
	s.toCache(ctx, key, out, cache.HoldersTTL)
	return out, nil
}

// TokenStats is the per-token stats payload
type TokenStats struct {
	Address         string     `json:"address"`
	Symbol          string     `json:"symbol"`
	Price           float64    `json:"price"`
	MarketCap       float64    `json:"market_cap"`
	Liquidity       float64    `json:"liquidity"`
	BondingProgress float64    `json:"bonding_progress"`
	Category        string     `json:"category"`
	TxCount         int        `json:"tx_count"`
	Volume24h       float64    `json:"volume_24h"`
	GraduatedAt     *time.Time `json:"graduated_at,omitempty"`
}

// GetStats combines the pulse row with the 24h swap volume aggregate.
// Returns (nil, nil) for an unknown token.
func (s *Service) GetStats(ctx context.Context, address string) (*TokenStats, error) {
	key := cache.StatsKey(address)
	var cached TokenStats
	if s.fromCache(ctx, key, &cached) {
		return &cached, nil
	}

	row, err := s.repo.GetPulseTokenByAddress(ctx, address)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	volume, err := s.repo.GetSwapVolume24h(ctx, address)
	if err != nil {
		s.log.Debug("swap volume aggregate failed", "address", address, "error", err)
	}
	out := &TokenStats{
		Address:         row.Address,
		Symbol:          row.Symbol,
		Price:           row.Price,
		MarketCap:       row.MarketCap,
		Liquidity:       row.Liquidity,
		BondingProgress: row.BondingProgress,
		Category:        row.Category,
		TxCount:         row.TxCount,
		Volume24h:       volume,
		GraduatedAt:     row.GraduatedAt,
	}
	s.toCache(ctx, key, out, cache.StatsTTL)
	return out, nil
}

// GetPulseList serves one category page of the pulse feed
func (s *Service) GetPulseList(ctx context.Context, category string, limit int) ([]*database.PulseToken, error) {
	key := cache.PulseListKey(category)
	var cached []*database.PulseToken
	if s.fromCache(ctx, key, &cached) {
		return cached, nil
	}
	out, err := s.repo.ListPulseTokensByCategory(ctx, category, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*database.PulseToken{}
	}
	s.toCache(ctx, key, out, cache.PulseListTTL)
	return out, nil
}

// GetTrending serves the upstream trending list
func (s *Service) GetTrending(ctx context.Context, limit int) ([]upstream.TokenLite, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var cached []upstream.TokenLite
	if s.fromCache(ctx, cache.TrendingKey, &cached) {
		return cached, nil
	}
	out, err := s.dash.GetTrending(ctx, limit)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []upstream.TokenLite{}
	}
	s.toCache(ctx, cache.TrendingKey, out, cache.TrendingTTL)
	return out, nil
}

// GetSolSupply serves SOL supply figures
func (s *Service) GetSolSupply(ctx context.Context) (*upstream.Supply, error) {
	var cached upstream.Supply
	if s.fromCache(ctx, cache.SupplyKey, &cached) {
		return &cached, nil
	}
	out, err := s.supply.GetSupply(ctx, "solana")
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	s.toCache(ctx, cache.SupplyKey, out, cache.SupplyTTL)
	return out, nil
}

func rangeKey(fromMs, toMs int64) string {
	// bucket the range key to the second so repeated chart polls share an
	// entry
	return time.UnixMilli(fromMs).UTC().Format("20060102T150405") + "-" +
		time.UnixMilli(toMs).UTC().Format("20060102T150405")
}
