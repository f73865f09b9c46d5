package pulsesync

import (
	"context"
	"sync"
	"testing"
	"time"

	"solana-pulse-backend/internal/database"
	"solana-pulse-backend/internal/hub"
	"solana-pulse-backend/internal/upstream"
)

type fakeTrending struct {
	tokens     []upstream.TokenLite
	prices     map[string]float64
	priceCalls int
}

func (f *fakeTrending) GetTrending(context.Context, int) ([]upstream.TokenLite, error) {
	return f.tokens, nil
}

func (f *fakeTrending) GetMultiPrice(context.Context, []string) (map[string]float64, error) {
	f.priceCalls++
	return f.prices, nil
}

type fakeDashStore struct {
	mu       sync.Mutex
	tokens   map[string]*database.Token
	priceUps int
}

func newFakeDashStore() *fakeDashStore {
	return &fakeDashStore{tokens: make(map[string]*database.Token)}
}

func (f *fakeDashStore) UpsertToken(_ context.Context, t *database.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[t.Address] = t
	return nil
}

func (f *fakeDashStore) UpdateTokenPrices(_ context.Context, prices map[string]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceUps++
	for addr, p := range prices {
		if tok, ok := f.tokens[addr]; ok {
			tok.Price = p
		}
	}
	return nil
}

func (f *fakeDashStore) ListTokens(context.Context, string, string, int, int, string) ([]*database.Token, int, error) {
	return nil, 0, nil
}

func (f *fakeDashStore) ListTokenAddresses(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.tokens))
	for addr := range f.tokens {
		out = append(out, addr)
	}
	return out, nil
}

type fakeSubHub struct {
	mu     sync.Mutex
	subbed bool
	events []string
}

func (f *fakeSubHub) Publish(_, eventType string, _ interface{}) {
	f.mu.Lock()
	f.events = append(f.events, eventType)
	f.mu.Unlock()
}

func (f *fakeSubHub) HasSubscribers(topic string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subbed && topic == hub.TopicDashboard
}

func TestDashboardSyncUpsertsTrending(t *testing.T) {
	source := &fakeTrending{tokens: []upstream.TokenLite{
		{Address: "a1", Symbol: "AAA", Price: 1.5, MarketCap: 1e6},
		{Address: "a2", Symbol: "BBB", Price: 0.2, MarketCap: 5e5},
		{Symbol: "noaddr"},
	}}
	store := newFakeDashStore()
	d := NewDashboardSyncer(source, store, &fakeSubHub{}, time.Minute)

	d.Sync(context.Background())

	if len(store.tokens) != 2 {
		t.Errorf("expected 2 tokens upserted, got %d", len(store.tokens))
	}
	if store.tokens["a1"].Symbol != "AAA" {
		t.Errorf("unexpected token row: %+v", store.tokens["a1"])
	}
}

func TestBroadcastSkipsIdleTopic(t *testing.T) {
	source := &fakeTrending{prices: map[string]float64{"a1": 2.0}}
	store := newFakeDashStore()
	store.tokens["a1"] = &database.Token{Address: "a1", Price: 1.0}
	h := &fakeSubHub{subbed: false}
	d := NewDashboardSyncer(source, store, h, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go d.RunPriceBroadcast(ctx)
	time.Sleep(1200 * time.Millisecond)
	cancel()

	if source.priceCalls != 0 {
		t.Errorf("idle topic must not trigger price fetches, got %d", source.priceCalls)
	}
}

func TestBroadcastPushesPricesWhenWatched(t *testing.T) {
	source := &fakeTrending{prices: map[string]float64{"a1": 2.0}}
	store := newFakeDashStore()
	store.tokens["a1"] = &database.Token{Address: "a1", Price: 1.0}
	h := &fakeSubHub{subbed: true}
	d := NewDashboardSyncer(source, store, h, time.Minute)

	d.broadcastPrices(context.Background())

	h.mu.Lock()
	events := len(h.events)
	h.mu.Unlock()
	if events != 1 {
		t.Fatalf("expected 1 dashboard:prices event, got %d", events)
	}
	store.mu.Lock()
	price := store.tokens["a1"].Price
	store.mu.Unlock()
	if price != 2.0 {
		t.Errorf("price must be written back, got %v", price)
	}
}
