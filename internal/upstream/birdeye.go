package upstream

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const feedBirdeye = "birdeye"

// BirdeyeClient wraps the Birdeye public data API, the OHLCV and trending
// source for dashboard tokens.
type BirdeyeClient struct {
	core *apiCore
}

func NewBirdeyeClient(baseURL, apiKey string, timeout time.Duration) *BirdeyeClient {
	headers := map[string]string{"x-chain": "solana"}
	if apiKey != "" {
		headers["X-API-KEY"] = apiKey
	}
	return &BirdeyeClient{
		core: newAPICore(feedBirdeye, baseURL, timeout, 60, headers),
	}
}

// Enabled reports whether the client holds an API key
func (c *BirdeyeClient) Enabled() bool {
	return c.core.headers["X-API-KEY"] != ""
}

type beEnvelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

type beOverview struct {
	Address           string  `json:"address"`
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Decimals          int     `json:"decimals"`
	LogoURI           string  `json:"logoURI"`
	Price             float64 `json:"price"`
	PriceChange24hPct float64 `json:"priceChange24hPercent"`
	Volume24hUSD      float64 `json:"v24hUSD"`
	MarketCap         float64 `json:"mc"`
	Liquidity         float64 `json:"liquidity"`
}

func (o *beOverview) toTokenLite() *TokenLite {
	return &TokenLite{
		Address:        o.Address,
		Symbol:         o.Symbol,
		Name:           o.Name,
		Decimals:       o.Decimals,
		LogoURI:        o.LogoURI,
		Price:          o.Price,
		PriceChange24h: o.PriceChange24hPct,
		Volume24h:      o.Volume24hUSD,
		MarketCap:      o.MarketCap,
		Liquidity:      o.Liquidity,
	}
}

// GetTokenOverview fetches the market snapshot of a token.
// Returns (nil, nil) when unknown.
func (c *BirdeyeClient) GetTokenOverview(ctx context.Context, address string) (*TokenLite, error) {
	q := url.Values{"address": {address}}
	var resp beEnvelope[beOverview]
	err := c.core.getJSON(ctx, "token_overview", "/defi/token_overview", q, &resp)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !resp.Success || resp.Data.Address == "" {
		return nil, nil
	}
	return resp.Data.toTokenLite(), nil
}

// birdeye interval names differ from ours
var beIntervals = map[string]string{
	"1m": "1m", "5m": "5m", "15m": "15m",
	"1h": "1H", "4h": "4H", "1d": "1D", "1w": "1W",
}

type beOHLCVData struct {
	Items []struct {
		UnixTime int64   `json:"unixTime"`
		O        float64 `json:"o"`
		H        float64 `json:"h"`
		L        float64 `json:"l"`
		C        float64 `json:"c"`
		V        float64 `json:"v"`
	} `json:"items"`
}

// GetOHLCV fetches candles for a token. from/to are ms.
func (c *BirdeyeClient) GetOHLCV(ctx context.Context, address, interval string, fromMs, toMs int64) ([]OHLCV, error) {
	beType, ok := beIntervals[interval]
	if !ok {
		beType = "1D"
	}
	q := url.Values{
		"address":   {address},
		"type":      {beType},
		"time_from": {strconv.FormatInt(fromMs/1000, 10)},
		"time_to":   {strconv.FormatInt(toMs/1000, 10)},
	}
	var resp beEnvelope[beOHLCVData]
	err := c.core.getJSON(ctx, "ohlcv", "/defi/ohlcv", q, &resp)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]OHLCV, 0, len(resp.Data.Items))
	for _, it := range resp.Data.Items {
		out = append(out, OHLCV{
			Timestamp: it.UnixTime * 1000,
			Open:      it.O,
			High:      it.H,
			Low:       it.L,
			Close:     it.C,
			Volume:    it.V,
		})
	}
	return out, nil
}

type beMultiPriceData map[string]struct {
	Value          float64 `json:"value"`
	PriceChange24h float64 `json:"priceChange24h"`
	UpdateUnixTime int64   `json:"updateUnixTime"`
}

// GetMultiPrice fetches current prices for up to 100 addresses at once
func (c *BirdeyeClient) GetMultiPrice(ctx context.Context, addresses []string) (map[string]float64, error) {
	if len(addresses) == 0 {
		return map[string]float64{}, nil
	}
	q := url.Values{"list_address": {strings.Join(addresses, ",")}}
	var resp beEnvelope[beMultiPriceData]
	if err := c.core.getJSON(ctx, "multi_price", "/defi/multi_price", q, &resp); err != nil {
		if IsNotFound(err) {
			return map[string]float64{}, nil
		}
		return nil, err
	}
	out := make(map[string]float64, len(resp.Data))
	for addr, p := range resp.Data {
		out[addr] = p.Value
	}
	return out, nil
}

type beTrendingData struct {
	Tokens []beOverview `json:"tokens"`
}

// GetTrending fetches the trending token list used by the dashboard sync
func (c *BirdeyeClient) GetTrending(ctx context.Context, limit int) ([]TokenLite, error) {
	q := url.Values{
		"sort_by":   {"rank"},
		"sort_type": {"asc"},
		"limit":     {strconv.Itoa(limit)},
	}
	var resp beEnvelope[beTrendingData]
	if err := c.core.getJSON(ctx, "trending", "/defi/token_trending", q, &resp); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]TokenLite, 0, len(resp.Data.Tokens))
	for i := range resp.Data.Tokens {
		out = append(out, *resp.Data.Tokens[i].toTokenLite())
	}
	return out, nil
}
