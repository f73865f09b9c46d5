// Package images resolves token logo URIs from on-chain metadata, fetching
// token metadata JSON through IPFS gateways.
package images

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"solana-pulse-backend/internal/logging"
)

const (
	maxMetadataBytes   = 1 << 20
	perGatewayAttempts = 2
)

// Fetcher resolves metadata URIs to logo image URLs. Fetches for the same
// mint are coalesced into a single in-flight lookup, and results (including
// failures) are cached in memory.
type Fetcher struct {
	gateways   []string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logging.Logger

	mu       sync.Mutex
	resolved map[string]string        // mint -> logo URI ("" = known failure)
	inflight map[string]chan struct{} // mint -> done signal
}

// NewFetcher builds a fetcher over an ordered gateway list. totalTimeout
// bounds one whole resolution across all gateways.
func NewFetcher(gateways []string, totalTimeout time.Duration) *Fetcher {
	if totalTimeout <= 0 {
		totalTimeout = 10 * time.Second
	}
	return &Fetcher{
		gateways:   gateways,
		httpClient: &http.Client{Timeout: totalTimeout},
		// gateways ban aggressive clients; pace metadata fetches
		limiter:  rate.NewLimiter(rate.Limit(5), 10),
		log:      logging.WithComponent("images"),
		resolved: make(map[string]string),
		inflight: make(map[string]chan struct{}),
	}
}

// CachedLogo returns a previously resolved logo URI
func (f *Fetcher) CachedLogo(mint string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uri, ok := f.resolved[mint]
	return uri, ok && uri != ""
}

// ResolveLogo fetches the metadata document behind uri and returns its image
// URL. Concurrent calls for the same mint share one lookup.
func (f *Fetcher) ResolveLogo(ctx context.Context, mint, uri string) (string, error) {
	f.mu.Lock()
	if logo, ok := f.resolved[mint]; ok {
		f.mu.Unlock()
		if logo == "" {
			return "", fmt.Errorf("logo for %s previously unresolvable", mint)
		}
		return logo, nil
	}
	if done, ok := f.inflight[mint]; ok {
		f.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
		return f.ResolveLogo(ctx, mint, uri)
	}
	done := make(chan struct{})
	f.inflight[mint] = done
	f.mu.Unlock()

	logo, err := f.fetchLogo(ctx, uri)

	f.mu.Lock()
	f.resolved[mint] = logo
	delete(f.inflight, mint)
	close(done)
	f.mu.Unlock()

	if err != nil {
		return "", err
	}
	return logo, nil
}

// tokenMetadata is the metadata JSON shape; pump.fun style documents carry
// the logo under "image".
type tokenMetadata struct {
	Image string `json:"image"`
	Logo  string `json:"logo"`
}

func (f *Fetcher) fetchLogo(ctx context.Context, uri string) (string, error) {
	candidates := f.gatewayURLs(uri)
	if len(candidates) == 0 {
		return "", fmt.Errorf("no usable metadata URI")
	}

	var lastErr error
	for _, candidate := range candidates {
		for attempt := 0; attempt < perGatewayAttempts; attempt++ {
			if err := f.limiter.Wait(ctx); err != nil {
				return "", err
			}
			logo, err := f.fetchOnce(ctx, candidate)
			if err == nil {
				return logo, nil
			}
			lastErr = err
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
		}
	}
	return "", fmt.Errorf("all gateways failed: %w", lastErr)
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("gateway returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return "", err
	}

	var meta tokenMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return "", fmt.Errorf("undecodable metadata: %w", err)
	}

	logo := meta.Image
	if logo == "" {
		logo = meta.Logo
	}
	if logo == "" {
		return "", fmt.Errorf("metadata carries no image")
	}
	return f.rewriteIPFS(logo), nil
}

// gatewayURLs expands an ipfs:// or gateway-bound URI into one candidate URL
// per configured gateway; plain HTTP URIs pass through as-is.
func (f *Fetcher) gatewayURLs(uri string) []string {
	cid := extractCID(uri)
	if cid == "" {
		if strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://") {
			return []string{uri}
		}
		return nil
	}
	out := make([]string, 0, len(f.gateways))
	for _, gw := range f.gateways {
		out = append(out, strings.TrimSuffix(gw, "/")+"/"+cid)
	}
	return out
}

// rewriteIPFS maps an ipfs:// image link onto the first configured gateway
func (f *Fetcher) rewriteIPFS(uri string) string {
	cid := extractCID(uri)
	if cid == "" || len(f.gateways) == 0 {
		return uri
	}
	return strings.TrimSuffix(f.gateways[0], "/") + "/" + cid
}

// extractCID pulls the content path out of ipfs:// URIs and /ipfs/ gateway
// paths. Returns "" for non-IPFS URIs.
func extractCID(uri string) string {
	if rest, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		return strings.TrimPrefix(rest, "ipfs/")
	}
	if idx := strings.Index(uri, "/ipfs/"); idx >= 0 {
		return uri[idx+len("/ipfs/"):]
	}
	return ""
}
