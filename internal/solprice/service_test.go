package solprice

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	name  string
	price float64
	err   error
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) SolPrice(_ context.Context) (float64, error) {
	f.calls++
	return f.price, f.err
}

func TestGetPriceUsesFirstHealthyProvider(t *testing.T) {
	p1 := &fakeProvider{name: "a", err: errors.New("down")}
	p2 := &fakeProvider{name: "b", price: 142.5}
	p3 := &fakeProvider{name: "c", price: 999}

	s := NewService(p1, p2, p3)
	got := s.GetPrice(context.Background())
	if got != 142.5 {
		t.Errorf("expected 142.5, got %v", got)
	}
	if p3.calls != 0 {
		t.Errorf("third provider should not be consulted after a hit")
	}
}

func TestGetPriceSkipsNonPositive(t *testing.T) {
	p1 := &fakeProvider{name: "a", price: 0}
	p2 := &fakeProvider{name: "b", price: 150.1}

	s := NewService(p1, p2)
	if got := s.GetPrice(context.Background()); got != 150.1 {
		t.Errorf("expected 150.1, got %v", got)
	}
}

func TestGetPriceKeepsLastKnownOnTotalFailure(t *testing.T) {
	p := &fakeProvider{name: "a", price: 130}
	s := NewService(p)
	if got := s.GetPrice(context.Background()); got != 130 {
		t.Fatalf("expected 130, got %v", got)
	}

	p.err = errors.New("down")
	s.mu.Lock()
	s.fetchedAt = s.fetchedAt.Add(-2 * refreshTTL) // force stale
	s.mu.Unlock()

	if got := s.GetPrice(context.Background()); got != 130 {
		t.Errorf("expected last known 130, got %v", got)
	}
}

func TestGetPriceSyncColdStartReturnsSeed(t *testing.T) {
	s := NewService()
	if got := s.GetPriceSync(); got != SeedPrice {
		t.Errorf("expected seed %v, got %v", SeedPrice, got)
	}
}

func TestGetPriceCachesWithinTTL(t *testing.T) {
	p := &fakeProvider{name: "a", price: 155}
	s := NewService(p)
	ctx := context.Background()

	s.GetPrice(ctx)
	s.GetPrice(ctx)
	s.GetPrice(ctx)
	if p.calls != 1 {
		t.Errorf("expected 1 upstream call within TTL, got %d", p.calls)
	}
}
