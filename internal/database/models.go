package database

import "time"

// Pulse categories
const (
	CategoryNew        = "NEW"
	CategoryGraduating = "GRADUATING"
	CategoryGraduated  = "GRADUATED"
)

// Swap sides
const (
	SwapBuy  = "buy"
	SwapSell = "sell"
)

// Token is a curated dashboard token
type Token struct {
	ID             int64     `json:"id"`
	Address        string    `json:"address"`
	Symbol         string    `json:"symbol"`
	Name           string    `json:"name"`
	Decimals       int       `json:"decimals"`
	LogoURI        string    `json:"logo_uri"`
	Price          float64   `json:"price"`
	PriceChange24h float64   `json:"price_change_24h"`
	Volume24h      float64   `json:"volume_24h"`
	MarketCap      float64   `json:"market_cap"`
	Liquidity      float64   `json:"liquidity"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// PulseToken is a memecoin tracked by the pulse feed. A mint holds exactly
// one category at a time.
type PulseToken struct {
	ID              int64      `json:"id"`
	Address         string     `json:"address"`
	Symbol          string     `json:"symbol"`
	Name            string     `json:"name"`
	Decimals        int        `json:"decimals"`
	LogoURI         string     `json:"logo_uri"`
	Price           float64    `json:"price"`
	PriceChange24h  float64    `json:"price_change_24h"`
	Volume24h       float64    `json:"volume_24h"`
	MarketCap       float64    `json:"market_cap"`
	Liquidity       float64    `json:"liquidity"`
	Category        string     `json:"category"`
	BondingProgress float64    `json:"bonding_progress"`
	GraduatedAt     *time.Time `json:"graduated_at,omitempty"`
	TokenCreatedAt  *time.Time `json:"token_created_at,omitempty"`
	Description     string     `json:"description"`
	Twitter         string     `json:"twitter"`
	Telegram        string     `json:"telegram"`
	Website         string     `json:"website"`
	ReplyCount      int        `json:"reply_count"`
	TxCount         int        `json:"tx_count"`
	Source          string     `json:"source"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TokenSwap is one persisted swap. Immutable once written.
type TokenSwap struct {
	ID            int64     `json:"id"`
	TokenAddress  string    `json:"token_address"`
	TxHash        string    `json:"tx_hash"`
	Timestamp     time.Time `json:"timestamp"`
	Type          string    `json:"type"`
	WalletAddress string    `json:"wallet_address"`
	TokenAmount   float64   `json:"token_amount"`
	SolAmount     float64   `json:"sol_amount"`
	PriceUSD      float64   `json:"price_usd"`
	TotalValueUSD float64   `json:"total_value_usd"`
	CreatedAt     time.Time `json:"created_at"`
}

// TokenSyncStatus tracks swap backfill progress per token
type TokenSyncStatus struct {
	TokenAddress   string     `json:"token_address"`
	SwapsSynced    bool       `json:"swaps_synced"`
	OldestSwapTime *time.Time `json:"oldest_swap_time,omitempty"`
	NewestSwapTime *time.Time `json:"newest_swap_time,omitempty"`
	TotalSwaps     int64      `json:"total_swaps"`
	LastSwapSync   *time.Time `json:"last_swap_sync,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Candle is one cached OHLCV row. Timestamp is the bucket start in ms.
type Candle struct {
	TokenAddress string    `json:"token_address"`
	Timeframe    string    `json:"timeframe"`
	Timestamp    int64     `json:"timestamp"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
	UpdatedAt    time.Time `json:"updated_at"`
}
