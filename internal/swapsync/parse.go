package swapsync

import (
	"time"

	"solana-pulse-backend/internal/database"
	"solana-pulse-backend/internal/upstream"
)

// WSOLMint is the wrapped-SOL mint, the reference side of bonding-curve pairs
const WSOLMint = "So11111111111111111111111111111111111111112"

// parseSwap converts an upstream swap into the canonical row. Swaps whose
// token amount is zero or whose price cannot be derived are dropped.
func (e *Engine) parseSwap(address string, raw *upstream.RawSwap) (*database.TokenSwap, bool) {
	if raw.TxHash == "" {
		return nil, false
	}

	target, counter, ok := splitSides(address, raw)
	if !ok || target.Amount == 0 {
		return nil, false
	}

	price := e.derivePrice(target, counter, raw)
	if price <= 0 {
		return nil, false
	}

	totalValue := raw.TotalValueUSD
	if totalValue == 0 {
		totalValue = price * target.Amount
	}
	solAmount := 0.0
	if counter.TokenAddress == WSOLMint {
		solAmount = counter.Amount
	}

	swapType := raw.Type
	if swapType != database.SwapBuy && swapType != database.SwapSell {
		// infer from direction: target arriving at the wallet is a buy
		if raw.To.TokenAddress == address {
			swapType = database.SwapBuy
		} else {
			swapType = database.SwapSell
		}
	}

	return &database.TokenSwap{
		TokenAddress:  address,
		TxHash:        raw.TxHash,
		Timestamp:     time.UnixMilli(raw.Timestamp),
		Type:          swapType,
		WalletAddress: raw.Wallet,
		TokenAmount:   target.Amount,
		SolAmount:     solAmount,
		PriceUSD:      price,
		TotalValueUSD: totalValue,
	}, true
}

// splitSides identifies the target token leg and the counter leg
func splitSides(address string, raw *upstream.RawSwap) (target, counter upstream.SwapSide, ok bool) {
	switch address {
	case raw.From.TokenAddress:
		return raw.From, raw.To, true
	case raw.To.TokenAddress:
		return raw.To, raw.From, true
	}
	return upstream.SwapSide{}, upstream.SwapSide{}, false
}

// derivePrice tries the price rules in order until one yields a positive
// value: SOL-leg valuation, per-leg USD amount, upstream-reported price,
// total value spread over the amount.
func (e *Engine) derivePrice(target, counter upstream.SwapSide, raw *upstream.RawSwap) float64 {
	if counter.TokenAddress == WSOLMint && counter.Amount > 0 {
		if price := counter.Amount * e.solPrice.GetPriceSync() / target.Amount; price > 0 {
			return price
		}
	}
	if target.Amount > 0 && target.AmountUSD > 0 {
		if price := target.AmountUSD / target.Amount; price > 0 {
			return price
		}
	}
	if target.PriceUSD > 0 {
		return target.PriceUSD
	}
	if raw.TotalValueUSD > 0 && target.Amount > 0 {
		if price := raw.TotalValueUSD / target.Amount; price > 0 {
			return price
		}
	}
	return 0
}
