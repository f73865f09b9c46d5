package upstream

import (
	"context"
	"net/url"
	"time"
)

const feedCoinGecko = "coingecko"

// Supply holds the circulating and total supply of a coin
type Supply struct {
	Circulating float64 `json:"circulating"`
	Total       float64 `json:"total"`
	Max         float64 `json:"max"`
}

// CoinGeckoClient wraps the CoinGecko API, used only for supply lookups and
// as a SOL price provider.
type CoinGeckoClient struct {
	core *apiCore
}

func NewCoinGeckoClient(baseURL, apiKey string, timeout time.Duration) *CoinGeckoClient {
	headers := map[string]string{}
	if apiKey != "" {
		headers["x-cg-demo-api-key"] = apiKey
	}
	// Free tier allows ~30 calls/min; stay under it
	return &CoinGeckoClient{
		core: newAPICore(feedCoinGecko, baseURL, timeout, 25, headers),
	}
}

type cgCoinResponse struct {
	MarketData struct {
		CirculatingSupply float64 `json:"circulating_supply"`
		TotalSupply       float64 `json:"total_supply"`
		MaxSupply         float64 `json:"max_supply"`
	} `json:"market_data"`
}

// GetSupply fetches supply figures for a coin id (e.g. "solana").
// Returns (nil, nil) when the id is unknown.
func (c *CoinGeckoClient) GetSupply(ctx context.Context, coinID string) (*Supply, error) {
	q := url.Values{
		"localization":   {"false"},
		"tickers":        {"false"},
		"community_data": {"false"},
		"developer_data": {"false"},
	}
	var resp cgCoinResponse
	err := c.core.getJSON(ctx, "get_supply", "/coins/"+coinID, q, &resp)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Supply{
		Circulating: resp.MarketData.CirculatingSupply,
		Total:       resp.MarketData.TotalSupply,
		Max:         resp.MarketData.MaxSupply,
	}, nil
}

// GetSimplePrice fetches the USD price of a coin id
func (c *CoinGeckoClient) GetSimplePrice(ctx context.Context, coinID string) (float64, error) {
	q := url.Values{"ids": {coinID}, "vs_currencies": {"usd"}}
	var resp map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := c.core.getJSON(ctx, "simple_price", "/simple/price", q, &resp); err != nil {
		return 0, err
	}
	return resp[coinID].USD, nil
}
