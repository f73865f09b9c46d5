package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := mc.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "v" {
		t.Errorf("expected v, got %s", got)
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()

	if _, err := mc.Get(context.Background(), "absent"); err != ErrMiss {
		t.Errorf("expected ErrMiss, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	if err := mc.Set(ctx, "k", "v", 10*time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := mc.Get(ctx, "k"); err != ErrMiss {
		t.Errorf("expected ErrMiss after expiry, got %v", err)
	}
}

func TestMemoryCacheMarshalsStructs(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	payload := map[string]int{"a": 1}
	if err := mc.Set(ctx, "k", payload, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := mc.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != `{"a":1}` {
		t.Errorf("unexpected payload: %s", got)
	}
}

func TestMemoryCacheDelete(t *testing.T) {
	mc := NewMemoryCache()
	defer mc.Close()
	ctx := context.Background()

	mc.Set(ctx, "k", "v", time.Minute)
	mc.Delete(ctx, "k")
	if _, err := mc.Get(ctx, "k"); err != ErrMiss {
		t.Errorf("expected ErrMiss after delete, got %v", err)
	}
}
