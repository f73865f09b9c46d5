package upstream

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

const feedDexScreener = "dexscreener"

// DexScreenerClient wraps the DexScreener public API. Used as the first
// fallback for token detail and for pair discovery. No API key required.
type DexScreenerClient struct {
	core *apiCore
}

func NewDexScreenerClient(baseURL string, timeout time.Duration) *DexScreenerClient {
	return &DexScreenerClient{
		core: newAPICore(feedDexScreener, baseURL, timeout, 300, nil),
	}
}

// DexScreener reports numeric fields as strings in several places
type dsPair struct {
	PairAddress string `json:"pairAddress"`
	DexID       string `json:"dexId"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	QuoteToken struct {
		Address string `json:"address"`
		Symbol  string `json:"symbol"`
	} `json:"quoteToken"`
	PriceUsd    string `json:"priceUsd"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	FDV           float64 `json:"fdv"`
	MarketCap     float64 `json:"marketCap"`
	PairCreatedAt int64   `json:"pairCreatedAt"`
	Info          *struct {
		ImageURL string `json:"imageUrl"`
	} `json:"info"`
}

type dsPairsResponse struct {
	Pairs []dsPair `json:"pairs"`
}

func (p *dsPair) toTokenLite() TokenLite {
	price, _ := strconv.ParseFloat(p.PriceUsd, 64)
	mc := p.MarketCap
	if mc == 0 {
		mc = p.FDV
	}
	lite := TokenLite{
		Address:        p.BaseToken.Address,
		Symbol:         p.BaseToken.Symbol,
		Name:           p.BaseToken.Name,
		Price:          price,
		PriceChange24h: p.PriceChange.H24,
		Volume24h:      p.Volume.H24,
		MarketCap:      mc,
		Liquidity:      p.Liquidity.USD,
	}
	if p.Info != nil {
		lite.LogoURI = p.Info.ImageURL
	}
	return lite
}

// GetPairsByToken fetches all pairs trading a token, best-liquidity first.
// Returns (nil, nil) when no pair exists.
func (c *DexScreenerClient) GetPairsByToken(ctx context.Context, address string) ([]TokenLite, error) {
	var resp dsPairsResponse
	err := c.core.getJSON(ctx, "pairs_by_token", "/latest/dex/tokens/"+address, nil, &resp)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(resp.Pairs) == 0 {
		return nil, nil
	}

	out := make([]TokenLite, 0, len(resp.Pairs))
	for i := range resp.Pairs {
		out = append(out, resp.Pairs[i].toTokenLite())
	}
	return out, nil
}

// GetToken fetches the best pair for a token as a TokenLite.
// Returns (nil, nil) when the token is unknown.
func (c *DexScreenerClient) GetToken(ctx context.Context, address string) (*TokenLite, error) {
	pairs, err := c.GetPairsByToken(ctx, address)
	if err != nil || len(pairs) == 0 {
		return nil, err
	}

	best := pairs[0]
	for _, p := range pairs[1:] {
		if p.Liquidity > best.Liquidity {
			best = p
		}
	}
	return &best, nil
}

// Search performs a free-text pair search
func (c *DexScreenerClient) Search(ctx context.Context, query string) ([]TokenLite, error) {
	q := url.Values{"q": {query}}
	var resp dsPairsResponse
	err := c.core.getJSON(ctx, "search", "/latest/dex/search", q, &resp)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]TokenLite, 0, len(resp.Pairs))
	for i := range resp.Pairs {
		out = append(out, resp.Pairs[i].toTokenLite())
	}
	return out, nil
}
