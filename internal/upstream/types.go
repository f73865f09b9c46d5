package upstream

// Canonical data shapes shared by every feed adapter. Vendor-specific field
// names stay inside the individual client files; everything past this package
// sees only these types.

// OHLCV is one candle bucket. Timestamp is the bucket start in ms.
type OHLCV struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// TokenLite is the market snapshot every surface shares
type TokenLite struct {
	Address        string  `json:"address"`
	Symbol         string  `json:"symbol"`
	Name           string  `json:"name"`
	Decimals       int     `json:"decimals"`
	LogoURI        string  `json:"logo_uri,omitempty"`
	Price          float64 `json:"price"`
	PriceChange24h float64 `json:"price_change_24h"`
	Volume24h      float64 `json:"volume_24h"`
	MarketCap      float64 `json:"market_cap"`
	Liquidity      float64 `json:"liquidity"`
}

// PulseToken is TokenLite plus launchpad lifecycle data
type PulseToken struct {
	TokenLite
	Description     string  `json:"description,omitempty"`
	TxCount         int     `json:"tx_count"`
	ReplyCount      int     `json:"reply_count"`
	CreatedAt       int64   `json:"created_at"` // ms
	Twitter         string  `json:"twitter,omitempty"`
	Telegram        string  `json:"telegram,omitempty"`
	Website         string  `json:"website,omitempty"`
	BondingProgress float64 `json:"bonding_progress,omitempty"` // 0..100
	GraduatedAt     *int64  `json:"graduated_at,omitempty"`     // ms
	Complete        bool    `json:"complete,omitempty"`
	Source          string  `json:"source"`
}

// Trade is one swap as served to clients
type Trade struct {
	TxHash         string  `json:"tx_hash"`
	Timestamp      int64   `json:"timestamp"` // ms
	Type           string  `json:"type"`      // "buy" | "sell"
	Wallet         string  `json:"wallet"`
	TokenAmount    float64 `json:"token_amount"`
	TokenAmountUSD float64 `json:"token_amount_usd"`
	TokenSymbol    string  `json:"token_symbol"`
	OtherAmount    float64 `json:"other_amount"`
	OtherSymbol    string  `json:"other_symbol"`
	OtherAmountUSD float64 `json:"other_amount_usd"`
	PriceUSD       float64 `json:"price_usd"`
	TotalValueUSD  float64 `json:"total_value_usd"`
}

// SwapSide is one leg of an upstream-reported swap
type SwapSide struct {
	TokenAddress string
	TokenSymbol  string
	Amount       float64
	AmountUSD    float64
	PriceUSD     float64
}

// RawSwap is an upstream swap before price derivation
type RawSwap struct {
	TxHash        string
	Timestamp     int64 // ms
	Wallet        string
	Type          string // "buy" | "sell"
	From          SwapSide
	To            SwapSide
	TotalValueUSD float64
}

// SwapPage is one cursor page of swaps, newest first
type SwapPage struct {
	Swaps      []RawSwap
	NextCursor string
	HasNext    bool
}

// HolderStats summarizes the holder distribution of a token
type HolderStats struct {
	Total          int     `json:"total"`
	Top10Percent   float64 `json:"top10_percent"`
	Top25Percent   float64 `json:"top25_percent"`
	DevHoldPercent float64 `json:"dev_hold_percent"`
}

// TopHolder is one entry of the largest-holders list
type TopHolder struct {
	Wallet     string  `json:"wallet"`
	Amount     float64 `json:"amount"`
	Percentage float64 `json:"percentage"`
}

// BondingStatus reports a token's bonding-curve state
type BondingStatus struct {
	Progress  float64 // 0..100
	Complete  bool
	MarketCap float64 // USD
}

// Push event variants delivered by the PumpPortal stream. Exactly one of the
// event structs is produced per frame; no untyped payloads leave the adapter.

// NewTokenEvent signals a token minted on the launchpad
type NewTokenEvent struct {
	Mint                  string
	Symbol                string
	Name                  string
	URI                   string
	Creator               string
	InitialBuy            float64
	MarketCapSol          float64
	VSolInBondingCurve    float64
	VTokensInBondingCurve float64
	Signature             string
	Timestamp             int64 // ms
}

// TradeEvent signals one launchpad trade
type TradeEvent struct {
	Mint               string
	Type               string // "buy" | "sell"
	TokenAmount        float64
	SolAmount          float64
	VSolInBondingCurve float64
	MarketCapSol       float64
	Trader             string
	Signature          string
	Timestamp          int64 // ms
}

// MigrationEvent signals a token graduating to a DEX pool
type MigrationEvent struct {
	Mint      string
	Pool      string
	Signature string
	Timestamp int64 // ms
}
