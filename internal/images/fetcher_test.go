package images

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestExtractCID(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"ipfs://QmAbc123", "QmAbc123"},
		{"ipfs://ipfs/QmAbc123", "QmAbc123"},
		{"https://ipfs.io/ipfs/QmAbc123", "QmAbc123"},
		{"https://example.com/image.png", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := extractCID(tt.uri); got != tt.want {
			t.Errorf("extractCID(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestResolveLogoFromMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"image": "https://cdn.example.com/logo.png"})
	}))
	defer srv.Close()

	f := NewFetcher([]string{srv.URL}, 5*time.Second)
	logo, err := f.ResolveLogo(context.Background(), "mintA", "ipfs://QmAbc")
	if err != nil {
		t.Fatalf("ResolveLogo failed: %v", err)
	}
	if logo != "https://cdn.example.com/logo.png" {
		t.Errorf("unexpected logo: %s", logo)
	}

	cached, ok := f.CachedLogo("mintA")
	if !ok || cached != logo {
		t.Errorf("expected cached logo, got %q ok=%v", cached, ok)
	}
}

func TestResolveLogoFallsBackAcrossGateways(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"image": "https://cdn.example.com/x.png"})
	}))
	defer good.Close()

	f := NewFetcher([]string{bad.URL, good.URL}, 5*time.Second)
	logo, err := f.ResolveLogo(context.Background(), "mintB", "ipfs://QmDef")
	if err != nil {
		t.Fatalf("ResolveLogo failed: %v", err)
	}
	if logo != "https://cdn.example.com/x.png" {
		t.Errorf("unexpected logo: %s", logo)
	}
}

func TestResolveLogoCoalescesConcurrentCalls(t *testing.T) {
	var hits int64
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		<-block
		json.NewEncoder(w).Encode(map[string]string{"image": "https://cdn.example.com/y.png"})
	}))
	defer srv.Close()

	f := NewFetcher([]string{srv.URL}, 5*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.ResolveLogo(context.Background(), "mintC", "ipfs://QmGhi")
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	if atomic.LoadInt64(&hits) != 1 {
		t.Errorf("expected 1 upstream hit for coalesced calls, got %d", hits)
	}
}

func TestResolveLogoCachesFailure(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher([]string{srv.URL}, 5*time.Second)
	ctx := context.Background()

	if _, err := f.ResolveLogo(ctx, "mintD", "ipfs://QmJkl"); err == nil {
		t.Fatal("expected error")
	}
	first := atomic.LoadInt64(&hits)

	if _, err := f.ResolveLogo(ctx, "mintD", "ipfs://QmJkl"); err == nil {
		t.Fatal("expected cached failure")
	}
	if atomic.LoadInt64(&hits) != first {
		t.Errorf("failure should be served from cache without new fetches")
	}
}
