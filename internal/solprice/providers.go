package solprice

import (
	"context"
	"fmt"

	"solana-pulse-backend/internal/upstream"
)

// WSOLMint is the wrapped-SOL mint used for price lookups against
// token-keyed APIs
const WSOLMint = "So11111111111111111111111111111111111111112"

// CoinGeckoProvider reads the "solana" simple price
type CoinGeckoProvider struct {
	Client *upstream.CoinGeckoClient
}

func (p *CoinGeckoProvider) Name() string { return "coingecko" }

func (p *CoinGeckoProvider) SolPrice(ctx context.Context) (float64, error) {
	return p.Client.GetSimplePrice(ctx, "solana")
}

// BirdeyeProvider prices the wSOL mint
type BirdeyeProvider struct {
	Client *upstream.BirdeyeClient
}

func (p *BirdeyeProvider) Name() string { return "birdeye" }

func (p *BirdeyeProvider) SolPrice(ctx context.Context) (float64, error) {
	prices, err := p.Client.GetMultiPrice(ctx, []string{WSOLMint})
	if err != nil {
		return 0, err
	}
	price, ok := prices[WSOLMint]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("no wSOL price in response")
	}
	return price, nil
}

// TrackerProvider prices the wSOL mint via Solana Tracker
type TrackerProvider struct {
	Client *upstream.SolanaTrackerClient
}

func (p *TrackerProvider) Name() string { return "solanatracker" }

func (p *TrackerProvider) SolPrice(ctx context.Context) (float64, error) {
	return p.Client.GetPrice(ctx, WSOLMint)
}
