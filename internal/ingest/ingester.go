// Package ingest consumes the push trade stream: it persists live swaps,
// maintains per-token 1-second candles and feeds the fan-out hub.
package ingest

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"solana-pulse-backend/internal/database"
	"solana-pulse-backend/internal/hub"
	"solana-pulse-backend/internal/upstream"
)

// PushClient is the push-stream surface the ingester drives
type PushClient interface {
	Start(ctx context.Context)
	Stop()
	SetNewTokenHandler(func(upstream.NewTokenEvent))
	SetTradeHandler(func(upstream.TradeEvent))
	SetMigrationHandler(func(upstream.MigrationEvent))
	SubscribeTokenTrades(mint string)
	UnsubscribeTokenTrades(mint string)
	State() upstream.StreamState
}

// SwapWriter persists live swaps; duplicates are absorbed by the store
type SwapWriter interface {
	InsertSwap(ctx context.Context, s *database.TokenSwap) (bool, error)
}

// LogoResolver resolves metadata URIs to logo URLs
type LogoResolver interface {
	CachedLogo(mint string) (string, bool)
	ResolveLogo(ctx context.Context, mint, uri string) (string, error)
}

// Pricer supplies SOL/USD without blocking
type Pricer interface {
	GetPriceSync() float64
}

// Broadcaster is the hub surface the ingester publishes through
type Broadcaster interface {
	Publish(topic, eventType string, data interface{})
}

// Ingester drives the push client and owns the live per-token state
type Ingester struct {
	client   PushClient
	store    SwapWriter
	logos    LogoResolver
	solPrice Pricer
	hub      Broadcaster
	log      zerolog.Logger

	tracked *tokenLRU

	// market cap (in SOL) at which a NEW token is treated as graduating
	graduationProximitySol float64

	ctx    context.Context
	cancel context.CancelFunc

	persistFailures uint64
	eventFailures   uint64

	// observations handed to the pulse sync cycle
	obsMu         sync.Mutex
	observedNew   []database.PulseToken
	observedMigr  []string
	resolvedLogos map[string]string
}

// NewIngester wires the push client callbacks. maxTracked bounds the LRU of
// live token subscriptions.
func NewIngester(client PushClient, store SwapWriter, logos LogoResolver, solPrice Pricer, broadcaster Broadcaster, maxTracked int, graduationProximitySol float64) *Ingester {
	ing := &Ingester{
		client:                 client,
		store:                  store,
		logos:                  logos,
		solPrice:               solPrice,
		hub:                    broadcaster,
		log:                    zerolog.New(os.Stderr).With().Timestamp().Str("component", "ingest").Logger(),
		graduationProximitySol: graduationProximitySol,
	}
	ing.tracked = newTokenLRU(maxTracked, func(tok *trackedToken) {
		client.UnsubscribeTokenTrades(tok.mint)
	})

	client.SetNewTokenHandler(ing.onNewToken)
	client.SetTradeHandler(ing.onTrade)
	client.SetMigrationHandler(ing.onMigration)
	return ing
}

// Start connects the push stream
func (ing *Ingester) Start(ctx context.Context) {
	ing.ctx, ing.cancel = context.WithCancel(ctx)
	ing.client.Start(ing.ctx)
	ing.log.Info().Msg("ingester started")
}

// Stop closes the stream and cancels in-flight work
func (ing *Ingester) Stop() {
	if ing.cancel != nil {
		ing.cancel()
	}
	ing.client.Stop()
	ing.log.Info().
		Uint64("persist_failures", atomic.LoadUint64(&ing.persistFailures)).
		Uint64("event_failures", atomic.LoadUint64(&ing.eventFailures)).
		Msg("ingester stopped")
}

// State reports the push connection state
func (ing *Ingester) State() upstream.StreamState {
	return ing.client.State()
}

// TrackedCount returns the number of mints with live trade subscriptions
func (ing *Ingester) TrackedCount() int {
	return ing.tracked.len()
}

// GetLiveCandles snapshots the 1-second candle window of a tracked mint
func (ing *Ingester) GetLiveCandles(mint string) []upstream.OHLCV {
	tok, ok := ing.tracked.get(mint)
	if !ok {
		return nil
	}
	return tok.ring.snapshot()
}

func (ing *Ingester) baseCtx() context.Context {
	if ing.ctx != nil {
		return ing.ctx
	}
	return context.Background()
}

// DrainObserved hands the new-token and migration observations collected
// since the last call to the pulse sync cycle
func (ing *Ingester) DrainObserved() ([]database.PulseToken, []string) {
	ing.obsMu.Lock()
	defer ing.obsMu.Unlock()
	newTokens, migrated := ing.observedNew, ing.observedMigr
	ing.observedNew, ing.observedMigr = nil, nil
	return newTokens, migrated
}

// DrainResolvedLogos hands logos resolved since the last call to the pulse
// sync cycle, which persists them.
func (ing *Ingester) DrainResolvedLogos() map[string]string {
	ing.obsMu.Lock()
	defer ing.obsMu.Unlock()
	logos := ing.resolvedLogos
	ing.resolvedLogos = nil
	return logos
}

func (ing *Ingester) onNewToken(ev upstream.NewTokenEvent) {
	ing.tracked.getOrAdd(ev.Mint)
	ing.client.SubscribeTokenTrades(ev.Mint)

	solUSD := ing.solPrice.GetPriceSync()
	out := pulseNewPair{
		Address:      ev.Mint,
		Symbol:       ev.Symbol,
		Name:         ev.Name,
		MarketCapSol: ev.MarketCapSol,
		MarketCapUSD: ev.MarketCapSol * solUSD,
		Creator:      ev.Creator,
		InitialBuy:   ev.InitialBuy,
		Timestamp:    ev.Timestamp,
	}
	if logo, ok := ing.logos.CachedLogo(ev.Mint); ok {
		out.LogoURI = logo
	}
	ing.hub.Publish(hub.TopicPulse, "pulse:new-pair", out)

	created := time.UnixMilli(ev.Timestamp)
	ing.obsMu.Lock()
	ing.observedNew = append(ing.observedNew, database.PulseToken{
		Address:        ev.Mint,
		Symbol:         ev.Symbol,
		Name:           ev.Name,
		LogoURI:        out.LogoURI,
		Price:          priceFromCurve(ev, solUSD),
		MarketCap:      ev.MarketCapSol * solUSD,
		TokenCreatedAt: &created,
		Source:         "push",
	})
	ing.obsMu.Unlock()

	if out.LogoURI == "" && ev.URI != "" {
		go ing.resolveLogoAsync(ev.Mint, ev.URI)
	}
}

// priceFromCurve derives an initial USD price from the bonding curve
// reserves when both sides are reported
func priceFromCurve(ev upstream.NewTokenEvent, solUSD float64) float64 {
	if ev.VTokensInBondingCurve <= 0 || ev.VSolInBondingCurve <= 0 {
		return 0
	}
	return ev.VSolInBondingCurve * solUSD / ev.VTokensInBondingCurve
}

func (ing *Ingester) resolveLogoAsync(mint, uri string) {
	ctx, cancel := context.WithTimeout(ing.baseCtx(), 15*time.Second)
	defer cancel()

	logo, err := ing.logos.ResolveLogo(ctx, mint, uri)
	if err != nil {
		ing.log.Debug().Str("mint", mint).Err(err).Msg("logo resolution failed")
		return
	}
	ing.obsMu.Lock()
	if ing.resolvedLogos == nil {
		ing.resolvedLogos = make(map[string]string)
	}
	ing.resolvedLogos[mint] = logo
	ing.obsMu.Unlock()
	ing.hub.Publish(hub.TopicPulse, "pulse:token-update", map[string]string{
		"address":  mint,
		"logo_uri": logo,
	})
}

func (ing *Ingester) onTrade(ev upstream.TradeEvent) {
	if ev.TokenAmount <= 0 || ev.SolAmount <= 0 {
		return
	}
	solUSD := ing.solPrice.GetPriceSync()
	if solUSD <= 0 {
		return
	}
	priceUSD := ev.SolAmount * solUSD / ev.TokenAmount
	valueUSD := ev.SolAmount * solUSD

	ing.persistTrade(ev, priceUSD, valueUSD)

	tok, _ := ing.tracked.getOrAdd(ev.Mint)
	candle, opened := tok.ring.update(ev.Timestamp, priceUSD, valueUSD)
	ing.hub.Publish(hub.OHLCVTopic(ev.Mint, "USD", "1s"), "ohlcv:update", candle)
	if opened {
		// previous bucket just closed
		if candles := tok.ring.snapshot(); len(candles) > 1 {
			ing.hub.Publish(hub.OHLCVTopic(ev.Mint, "USD", "1s"), "ohlcv:closed", candles[len(candles)-2])
		}
	}

	ing.hub.Publish(hub.TradesTopic(ev.Mint, "SOL"), "trade", liveTrade{
		TxHash:        ev.Signature,
		Timestamp:     ev.Timestamp,
		Type:          ev.Type,
		Wallet:        ev.Trader,
		TokenAmount:   ev.TokenAmount,
		SolAmount:     ev.SolAmount,
		PriceUSD:      priceUSD,
		TotalValueUSD: valueUSD,
	})
	ing.hub.Publish(hub.TokenTopic(ev.Mint), "price:update", map[string]interface{}{
		"address":        ev.Mint,
		"price":          priceUSD,
		"market_cap_sol": ev.MarketCapSol,
		"market_cap_usd": ev.MarketCapSol * solUSD,
		"timestamp":      ev.Timestamp,
	})

	// proximity reclassification; durable category moves happen in the
	// pulse sync cycle
	if !tok.graduating && ing.graduationProximitySol > 0 && ev.MarketCapSol >= ing.graduationProximitySol {
		tok.graduating = true
		ing.hub.Publish(hub.TopicPulse, "pulse:graduating", map[string]interface{}{
			"address":        ev.Mint,
			"market_cap_sol": ev.MarketCapSol,
			"market_cap_usd": ev.MarketCapSol * solUSD,
		})
	}
}

// persistTrade writes the swap row, retrying once on non-conflict failure
func (ing *Ingester) persistTrade(ev upstream.TradeEvent, priceUSD, valueUSD float64) {
	row := &database.TokenSwap{
		TokenAddress:  ev.Mint,
		TxHash:        ev.Signature,
		Timestamp:     time.UnixMilli(ev.Timestamp),
		Type:          ev.Type,
		WalletAddress: ev.Trader,
		TokenAmount:   ev.TokenAmount,
		SolAmount:     ev.SolAmount,
		PriceUSD:      priceUSD,
		TotalValueUSD: valueUSD,
	}

	ctx, cancel := context.WithTimeout(ing.baseCtx(), 5*time.Second)
	defer cancel()

	if _, err := ing.store.InsertSwap(ctx, row); err != nil {
		if _, err = ing.store.InsertSwap(ctx, row); err != nil {
			atomic.AddUint64(&ing.persistFailures, 1)
			ing.log.Warn().Str("mint", ev.Mint).Err(err).Msg("swap persist failed")
		}
	}
}

func (ing *Ingester) onMigration(ev upstream.MigrationEvent) {
	// a migrated mint stops trading on the bonding curve; drop the live
	// subscription and free its LRU slot
	if _, ok := ing.tracked.get(ev.Mint); ok {
		ing.tracked.remove(ev.Mint)
		ing.client.UnsubscribeTokenTrades(ev.Mint)
	}
	ing.obsMu.Lock()
	ing.observedMigr = append(ing.observedMigr, ev.Mint)
	ing.obsMu.Unlock()
	ing.hub.Publish(hub.TopicPulse, "pulse:migrated", map[string]interface{}{
		"address":   ev.Mint,
		"pool":      ev.Pool,
		"timestamp": ev.Timestamp,
	})
}

// pulseNewPair is the pulse:new-pair payload
type pulseNewPair struct {
	Address      string  `json:"address"`
	Symbol       string  `json:"symbol"`
	Name         string  `json:"name"`
	LogoURI      string  `json:"logo_uri,omitempty"`
	MarketCapSol float64 `json:"market_cap_sol"`
	MarketCapUSD float64 `json:"market_cap_usd"`
	Creator      string  `json:"creator"`
	InitialBuy   float64 `json:"initial_buy"`
	Timestamp    int64   `json:"timestamp"`
}

// liveTrade is the trade payload on trades:<mint>:SOL
type liveTrade struct {
	TxHash        string  `json:"tx_hash"`
	Timestamp     int64   `json:"timestamp"`
	Type          string  `json:"type"`
	Wallet        string  `json:"wallet"`
	TokenAmount   float64 `json:"token_amount"`
	SolAmount     float64 `json:"sol_amount"`
	PriceUSD      float64 `json:"price_usd"`
	TotalValueUSD float64 `json:"total_value_usd"`
}
