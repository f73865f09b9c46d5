package ingest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"solana-pulse-backend/internal/database"
	"solana-pulse-backend/internal/upstream"
)

type fakePush struct {
	mu         sync.Mutex
	subscribed map[string]bool
	onNewToken func(upstream.NewTokenEvent)
	onTrade    func(upstream.TradeEvent)
	onMigrate  func(upstream.MigrationEvent)
}

func newFakePush() *fakePush { return &fakePush{subscribed: make(map[string]bool)} }

func (f *fakePush) Start(context.Context)                              {}
func (f *fakePush) Stop()                                              {}
func (f *fakePush) SetNewTokenHandler(fn func(upstream.NewTokenEvent)) { f.onNewToken = fn }
func (f *fakePush) SetTradeHandler(fn func(upstream.TradeEvent))       { f.onTrade = fn }
func (f *fakePush) SetMigrationHandler(fn func(upstream.MigrationEvent)) {
	f.onMigrate = fn
}
func (f *fakePush) SubscribeTokenTrades(mint string) {
	f.mu.Lock()
	f.subscribed[mint] = true
	f.mu.Unlock()
}
func (f *fakePush) UnsubscribeTokenTrades(mint string) {
	f.mu.Lock()
	delete(f.subscribed, mint)
	f.mu.Unlock()
}
func (f *fakePush) State() upstream.StreamState { return upstream.StateStreaming }

func (f *fakePush) isSubscribed(mint string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[mint]
}

type fakeSwapWriter struct {
	mu   sync.Mutex
	rows []*database.TokenSwap
	err  error
}

func (f *fakeSwapWriter) InsertSwap(_ context.Context, s *database.TokenSwap) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	for _, have := range f.rows {
		if have.TokenAddress == s.TokenAddress && have.TxHash == s.TxHash {
			return false, nil
		}
	}
	f.rows = append(f.rows, s)
	return true, nil
}

type fakeLogos struct {
	cached map[string]string
}

func (f *fakeLogos) CachedLogo(mint string) (string, bool) {
	uri, ok := f.cached[mint]
	return uri, ok
}

func (f *fakeLogos) ResolveLogo(_ context.Context, mint, _ string) (string, error) {
	if uri, ok := f.cached[mint]; ok {
		return uri, nil
	}
	return "", fmt.Errorf("unresolvable")
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []struct {
		Topic string
		Type  string
	}
}

func (f *fakeBroadcaster) Publish(topic, eventType string, _ interface{}) {
	f.mu.Lock()
	f.events = append(f.events, struct {
		Topic string
		Type  string
	}{topic, eventType})
	f.mu.Unlock()
}

func (f *fakeBroadcaster) count(eventType string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type staticPricer struct{ price float64 }

func (p *staticPricer) GetPriceSync() float64 { return p.price }

func newTestIngester(push *fakePush, store *fakeSwapWriter, bc *fakeBroadcaster, maxTracked int) *Ingester {
	return NewIngester(push, store, &fakeLogos{cached: map[string]string{}}, &staticPricer{price: 100}, bc, maxTracked, 400)
}

func TestNewTokenSubscribesAndEmits(t *testing.T) {
	push := newFakePush()
	bc := &fakeBroadcaster{}
	ing := newTestIngester(push, &fakeSwapWriter{}, bc, 100)

	push.onNewToken(upstream.NewTokenEvent{Mint: "mintA", Symbol: "AAA", Timestamp: 1000})

	if !push.isSubscribed("mintA") {
		t.Error("new token must auto-subscribe its trade stream")
	}
	if bc.count("pulse:new-pair") != 1 {
		t.Error("expected pulse:new-pair")
	}
	if ing.TrackedCount() != 1 {
		t.Errorf("expected 1 tracked mint, got %d", ing.TrackedCount())
	}
}

func TestTradePersistsAndUpdatesRing(t *testing.T) {
	push := newFakePush()
	store := &fakeSwapWriter{}
	bc := &fakeBroadcaster{}
	ing := newTestIngester(push, store, bc, 100)

	// 0.5 SOL for 1000 tokens at $100/SOL = $0.05
	push.onTrade(upstream.TradeEvent{
		Mint: "mintB", Type: "buy", TokenAmount: 1000, SolAmount: 0.5,
		MarketCapSol: 30, Trader: "w1", Signature: "sig1", Timestamp: 5000,
	})

	if len(store.rows) != 1 {
		t.Fatalf("expected 1 persisted swap, got %d", len(store.rows))
	}
	row := store.rows[0]
	if row.PriceUSD != 0.05 {
		t.Errorf("expected price 0.05, got %v", row.PriceUSD)
	}
	if row.TotalValueUSD != 50 {
		t.Errorf("expected value 50, got %v", row.TotalValueUSD)
	}

	candles := ing.GetLiveCandles("mintB")
	if len(candles) != 1 || candles[0].Open != 0.05 {
		t.Errorf("expected one 1s candle at 0.05, got %+v", candles)
	}
	if bc.count("ohlcv:update") != 1 || bc.count("trade") != 1 || bc.count("price:update") != 1 {
		t.Error("expected ohlcv:update, trade and price:update events")
	}
}

func TestTradeDropsUnpriceable(t *testing.T) {
	push := newFakePush()
	store := &fakeSwapWriter{}
	ing := newTestIngester(push, store, &fakeBroadcaster{}, 100)

	push.onTrade(upstream.TradeEvent{Mint: "mintC", TokenAmount: 0, SolAmount: 1, Signature: "s", Timestamp: 1000})
	push.onTrade(upstream.TradeEvent{Mint: "mintC", TokenAmount: 10, SolAmount: 0, Signature: "s2", Timestamp: 1000})

	if len(store.rows) != 0 {
		t.Errorf("unpriceable trades must be dropped, got %d rows", len(store.rows))
	}
	if ing.TrackedCount() != 0 {
		t.Errorf("dropped trades must not track the mint")
	}
}

func TestGraduationProximityEmitsOnce(t *testing.T) {
	push := newFakePush()
	bc := &fakeBroadcaster{}
	push2 := func(mc float64, sig string) {
		push.onTrade(upstream.TradeEvent{
			Mint: "mintD", Type: "buy", TokenAmount: 100, SolAmount: 1,
			MarketCapSol: mc, Signature: sig, Timestamp: 1000,
		})
	}
	newTestIngester(push, &fakeSwapWriter{}, bc, 100)

	push2(300, "s1") // below threshold
	if bc.count("pulse:graduating") != 0 {
		t.Fatal("below-threshold trade must not reclassify")
	}
	push2(450, "s2")
	push2(500, "s3")
	if bc.count("pulse:graduating") != 1 {
		t.Errorf("expected exactly one pulse:graduating, got %d", bc.count("pulse:graduating"))
	}
}

func TestMigrationDropsTrackingAndEmits(t *testing.T) {
	push := newFakePush()
	bc := &fakeBroadcaster{}
	ing := newTestIngester(push, &fakeSwapWriter{}, bc, 100)

	push.onTrade(upstream.TradeEvent{
		Mint: "mintE", Type: "buy", TokenAmount: 100, SolAmount: 1,
		MarketCapSol: 500, Signature: "s1", Timestamp: 1000,
	})
	push.onMigrate(upstream.MigrationEvent{Mint: "mintE", Pool: "raydium", Timestamp: 2000})

	if bc.count("pulse:migrated") != 1 {
		t.Error("expected pulse:migrated")
	}
	// the bonding-curve stream is done with this mint
	if _, ok := ing.tracked.get("mintE"); ok {
		t.Error("migration must drop the tracked mint")
	}
	if push.isSubscribed("mintE") {
		t.Error("migration must unsubscribe the trade stream")
	}
	if _, migrated := ing.DrainObserved(); len(migrated) != 1 || migrated[0] != "mintE" {
		t.Errorf("migration must be observable by the sync cycle, got %v", migrated)
	}
}

func TestResolvedLogoIsDrainable(t *testing.T) {
	push := newFakePush()
	logos := &fakeLogos{cached: map[string]string{"mintF": "https://gw/ipfs/f"}}
	ing := NewIngester(push, &fakeSwapWriter{}, logos, &staticPricer{price: 100}, &fakeBroadcaster{}, 100, 400)

	ing.resolveLogoAsync("mintF", "ipfs://metaF")

	got := ing.DrainResolvedLogos()
	if got["mintF"] != "https://gw/ipfs/f" {
		t.Errorf("resolved logo must be drainable, got %v", got)
	}
	if again := ing.DrainResolvedLogos(); again != nil {
		t.Error("drain must hand off ownership")
	}
}

func TestLRUEvictionUnsubscribes(t *testing.T) {
	push := newFakePush()
	ing := newTestIngester(push, &fakeSwapWriter{}, &fakeBroadcaster{}, 2)

	for _, mint := range []string{"m1", "m2", "m3"} {
		push.onNewToken(upstream.NewTokenEvent{Mint: mint, Timestamp: 1000})
	}

	if ing.TrackedCount() != 2 {
		t.Errorf("expected LRU capped at 2, got %d", ing.TrackedCount())
	}
	if push.isSubscribed("m1") {
		t.Error("evicted mint must be unsubscribed")
	}
	if !push.isSubscribed("m2") || !push.isSubscribed("m3") {
		t.Error("recent mints must stay subscribed")
	}
}
