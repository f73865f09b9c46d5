package upstream

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

const feedSolanaTracker = "solanatracker"

// SolanaTrackerClient wraps the Solana Tracker data API. It is the primary
// metadata, swap-history and pulse-list source.
type SolanaTrackerClient struct {
	core *apiCore
}

// NewSolanaTrackerClient creates a client. An empty apiKey disables the
// client; callers should check Enabled before use.
func NewSolanaTrackerClient(baseURL, apiKey string, timeout time.Duration) *SolanaTrackerClient {
	headers := map[string]string{}
	if apiKey != "" {
		headers["x-api-key"] = apiKey
	}
	return &SolanaTrackerClient{
		core: newAPICore(feedSolanaTracker, baseURL, timeout, 100, headers),
	}
}

// Enabled reports whether the client holds an API key
func (c *SolanaTrackerClient) Enabled() bool {
	return c.core.headers["x-api-key"] != ""
}

// ---- vendor response shapes ----

type stTokenResponse struct {
	Token struct {
		Mint        string `json:"mint"`
		Name        string `json:"name"`
		Symbol      string `json:"symbol"`
		Decimals    int    `json:"decimals"`
		Image       string `json:"image"`
		Description string `json:"description"`
		Twitter     string `json:"twitter"`
		Telegram    string `json:"telegram"`
		Website     string `json:"website"`
		CreatedOn   int64  `json:"createdOn"`
	} `json:"token"`
	Pools []struct {
		PoolID    string `json:"poolId"`
		MarketCap struct {
			USD float64 `json:"usd"`
		} `json:"marketCap"`
		Liquidity struct {
			USD float64 `json:"usd"`
		} `json:"liquidity"`
		Price struct {
			USD float64 `json:"usd"`
		} `json:"price"`
		Txns         int     `json:"txns"`
		CurvePercent float64 `json:"curvePercentage"`
		Curve        string  `json:"curve"`
	} `json:"pools"`
	Events map[string]struct {
		PriceChangePercentage float64 `json:"priceChangePercentage"`
	} `json:"events"`
	Graduation *struct {
		GraduatedAt int64 `json:"graduatedAt"`
	} `json:"graduation"`
	Holders int `json:"holders"`
	Buys    int `json:"buys"`
	Sells   int `json:"sells"`
	Replies int `json:"replies"`
	Volume  struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
}

func (r *stTokenResponse) toPulseToken() *PulseToken {
	out := &PulseToken{
		TokenLite: TokenLite{
			Address:  r.Token.Mint,
			Symbol:   r.Token.Symbol,
			Name:     r.Token.Name,
			Decimals: r.Token.Decimals,
			LogoURI:  r.Token.Image,
		},
		Description: r.Token.Description,
		Twitter:     r.Token.Twitter,
		Telegram:    r.Token.Telegram,
		Website:     r.Token.Website,
		CreatedAt:   r.Token.CreatedOn,
		TxCount:     r.Buys + r.Sells,
		ReplyCount:  r.Replies,
		Source:      feedSolanaTracker,
	}
	out.Volume24h = r.Volume.H24
	if len(r.Pools) > 0 {
		p := r.Pools[0]
		out.Price = p.Price.USD
		out.MarketCap = p.MarketCap.USD
		out.Liquidity = p.Liquidity.USD
		out.BondingProgress = p.CurvePercent
	}
	if ev, ok := r.Events["24h"]; ok {
		out.PriceChange24h = ev.PriceChangePercentage
	}
	if r.Graduation != nil && r.Graduation.GraduatedAt > 0 {
		ts := r.Graduation.GraduatedAt
		out.GraduatedAt = &ts
		out.Complete = true
	}
	return out
}

// GetToken fetches token metadata plus its primary pool market data.
// Returns (nil, nil) when the token is unknown upstream.
func (c *SolanaTrackerClient) GetToken(ctx context.Context, address string) (*PulseToken, error) {
	var resp stTokenResponse
	err := c.core.getJSON(ctx, "get_token", "/tokens/"+address, nil, &resp)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if resp.Token.Mint == "" {
		return nil, nil
	}
	return resp.toPulseToken(), nil
}

// GetPrice fetches the current USD price of a token
func (c *SolanaTrackerClient) GetPrice(ctx context.Context, address string) (float64, error) {
	var resp struct {
		Price float64 `json:"price"`
	}
	q := url.Values{"token": {address}}
	err := c.core.getJSON(ctx, "get_price", "/price", q, &resp)
	if IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return resp.Price, nil
}

type stChartResponse struct {
	OHLCV []struct {
		Time   int64   `json:"time"` // unix seconds
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume float64 `json:"volume"`
	} `json:"oclhv"`
}

// GetOHLCV fetches candles for a token at the given interval ("1m".."1M")
func (c *SolanaTrackerClient) GetOHLCV(ctx context.Context, address, interval string, fromMs, toMs int64) ([]OHLCV, error) {
	q := url.Values{
		"type":      {interval},
		"time_from": {strconv.FormatInt(fromMs/1000, 10)},
		"time_to":   {strconv.FormatInt(toMs/1000, 10)},
	}
	var resp stChartResponse
	err := c.core.getJSON(ctx, "get_ohlcv", "/chart/"+address, q, &resp)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]OHLCV, 0, len(resp.OHLCV))
	for _, k := range resp.OHLCV {
		out = append(out, OHLCV{
			Timestamp: k.Time * 1000,
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
		})
	}
	return out, nil
}

type stTradesResponse struct {
	Trades []struct {
		Tx     string `json:"tx"`
		Time   int64  `json:"time"` // ms
		Wallet string `json:"wallet"`
		Type   string `json:"type"`
		From   struct {
			Address   string  `json:"address"`
			Token     string  `json:"token"`
			Amount    float64 `json:"amount"`
			AmountUSD float64 `json:"amountUsd"`
			PriceUSD  float64 `json:"priceUsd"`
		} `json:"from"`
		To struct {
			Address   string  `json:"address"`
			Token     string  `json:"token"`
			Amount    float64 `json:"amount"`
			AmountUSD float64 `json:"amountUsd"`
			PriceUSD  float64 `json:"priceUsd"`
		} `json:"to"`
		Volume float64 `json:"volume"`
	} `json:"trades"`
	NextCursor string `json:"nextCursor"`
	HasNext    bool   `json:"hasNextPage"`
}

// GetSwaps fetches one page of swaps for a token, newest first
func (c *SolanaTrackerClient) GetSwaps(ctx context.Context, address, cursor string, limit int) (*SwapPage, error) {
	q := url.Values{"sortDirection": {"DESC"}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp stTradesResponse
	err := c.core.getJSON(ctx, "get_swaps", "/trades/"+address, q, &resp)
	if IsNotFound(err) {
		return &SwapPage{}, nil
	}
	if err != nil {
		return nil, err
	}

	page := &SwapPage{NextCursor: resp.NextCursor, HasNext: resp.HasNext}
	for _, t := range resp.Trades {
		page.Swaps = append(page.Swaps, RawSwap{
			TxHash:    t.Tx,
			Timestamp: t.Time,
			Wallet:    t.Wallet,
			Type:      t.Type,
			From: SwapSide{
				TokenAddress: t.From.Address,
				TokenSymbol:  t.From.Token,
				Amount:       t.From.Amount,
				AmountUSD:    t.From.AmountUSD,
				PriceUSD:     t.From.PriceUSD,
			},
			To: SwapSide{
				TokenAddress: t.To.Address,
				TokenSymbol:  t.To.Token,
				Amount:       t.To.Amount,
				AmountUSD:    t.To.AmountUSD,
				PriceUSD:     t.To.PriceUSD,
			},
			TotalValueUSD: t.Volume,
		})
	}
	return page, nil
}

type stListItem struct {
	stTokenResponse
}

// pulse list endpoints share the token response shape wrapped in an array

// GetLatestTokens fetches recently created launchpad tokens
func (c *SolanaTrackerClient) GetLatestTokens(ctx context.Context, limit int) ([]PulseToken, error) {
	return c.getTokenList(ctx, "get_latest", "/tokens/latest", limit)
}

// GetGraduatingTokens fetches tokens nearing bonding-curve completion
func (c *SolanaTrackerClient) GetGraduatingTokens(ctx context.Context, limit int) ([]PulseToken, error) {
	return c.getTokenList(ctx, "get_graduating", "/tokens/multi/graduating", limit)
}

// GetGraduatedTokens fetches tokens that completed the bonding curve
func (c *SolanaTrackerClient) GetGraduatedTokens(ctx context.Context, limit int) ([]PulseToken, error) {
	return c.getTokenList(ctx, "get_graduated", "/tokens/multi/graduated", limit)
}

func (c *SolanaTrackerClient) getTokenList(ctx context.Context, op, path string, limit int) ([]PulseToken, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp []stListItem
	if err := c.core.getJSON(ctx, op, path, q, &resp); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]PulseToken, 0, len(resp))
	for i := range resp {
		if resp[i].Token.Mint == "" {
			continue
		}
		out = append(out, *resp[i].toPulseToken())
	}
	return out, nil
}

// GetBondingStatus fetches a token's bonding-curve progress
func (c *SolanaTrackerClient) GetBondingStatus(ctx context.Context, address string) (*BondingStatus, error) {
	var resp stTokenResponse
	err := c.core.getJSON(ctx, "get_bonding", "/tokens/"+address, nil, &resp)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(resp.Pools) == 0 {
		return nil, nil
	}
	p := resp.Pools[0]
	return &BondingStatus{
		Progress:  p.CurvePercent,
		Complete:  resp.Graduation != nil,
		MarketCap: p.MarketCap.USD,
	}, nil
}

type stHoldersResponse struct {
	Total    int `json:"total"`
	Accounts []struct {
		Wallet     string  `json:"wallet"`
		Amount     float64 `json:"amount"`
		Percentage float64 `json:"percentage"`
	} `json:"accounts"`
	Top10 float64 `json:"top10"`
	Top25 float64 `json:"top25"`
}

// GetHolderStats fetches the holder distribution summary
func (c *SolanaTrackerClient) GetHolderStats(ctx context.Context, address string) (*HolderStats, error) {
	var resp stHoldersResponse
	err := c.core.getJSON(ctx, "get_holder_stats", "/tokens/"+address+"/holders", nil, &resp)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &HolderStats{
		Total:        resp.Total,
		Top10Percent: resp.Top10,
		Top25Percent: resp.Top25,
	}, nil
}

// GetTopHolders fetches the largest holders of a token
func (c *SolanaTrackerClient) GetTopHolders(ctx context.Context, address string, limit int) ([]TopHolder, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp stHoldersResponse
	err := c.core.getJSON(ctx, "get_top_holders", "/tokens/"+address+"/holders/top", q, &resp)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]TopHolder, 0, len(resp.Accounts))
	for _, a := range resp.Accounts {
		out = append(out, TopHolder{Wallet: a.Wallet, Amount: a.Amount, Percentage: a.Percentage})
	}
	return out, nil
}
