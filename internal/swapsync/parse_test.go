package swapsync

import (
	"testing"

	"solana-pulse-backend/internal/upstream"
)

func testEngine(solPrice float64) *Engine {
	return NewEngine(&fakeSource{}, newFakeStore(), &fakePricer{price: solPrice}, 200, 100)
}

func TestDerivePriceFromSolLeg(t *testing.T) {
	e := testEngine(200)
	raw := rawSwap("tx", 1000, 2, 1000) // 2 SOL for 1000 tokens at $200/SOL
	row, ok := e.parseSwap(mint, &raw)
	if !ok {
		t.Fatal("expected swap to parse")
	}
	if row.PriceUSD != 0.4 {
		t.Errorf("expected price 0.4, got %v", row.PriceUSD)
	}
	if row.SolAmount != 2 {
		t.Errorf("expected sol amount 2, got %v", row.SolAmount)
	}
	if row.TotalValueUSD != 400 {
		t.Errorf("expected total value 400, got %v", row.TotalValueUSD)
	}
}

func TestDerivePriceFallbacks(t *testing.T) {
	e := testEngine(0) // SOL price unusable, fallbacks must kick in

	tests := []struct {
		name string
		raw  upstream.RawSwap
		want float64
	}{
		{
			name: "usd amount over amount",
			raw: upstream.RawSwap{
				TxHash: "t1", Timestamp: 1000,
				From: upstream.SwapSide{TokenAddress: "USDCmint", Amount: 50},
				To:   upstream.SwapSide{TokenAddress: mint, Amount: 100, AmountUSD: 50},
			},
			want: 0.5,
		},
		{
			name: "reported price",
			raw: upstream.RawSwap{
				TxHash: "t2", Timestamp: 1000,
				From: upstream.SwapSide{TokenAddress: "USDCmint", Amount: 50},
				To:   upstream.SwapSide{TokenAddress: mint, Amount: 100, PriceUSD: 0.25},
			},
			want: 0.25,
		},
		{
			name: "total value over amount",
			raw: upstream.RawSwap{
				TxHash: "t3", Timestamp: 1000,
				From:          upstream.SwapSide{TokenAddress: "USDCmint", Amount: 50},
				To:            upstream.SwapSide{TokenAddress: mint, Amount: 200},
				TotalValueUSD: 100,
			},
			want: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, ok := e.parseSwap(mint, &tt.raw)
			if !ok {
				t.Fatal("expected swap to parse")
			}
			if row.PriceUSD != tt.want {
				t.Errorf("expected price %v, got %v", tt.want, row.PriceUSD)
			}
		})
	}
}

func TestParseSwapDropsUnpriceable(t *testing.T) {
	e := testEngine(0)

	raw := upstream.RawSwap{
		TxHash: "t", Timestamp: 1000,
		From: upstream.SwapSide{TokenAddress: WSOLMint, Amount: 1},
		To:   upstream.SwapSide{TokenAddress: mint, Amount: 100},
	}
	if _, ok := e.parseSwap(mint, &raw); ok {
		t.Error("swap without any derivable price must be dropped")
	}

	zeroAmount := upstream.RawSwap{
		TxHash: "t2", Timestamp: 1000,
		From: upstream.SwapSide{TokenAddress: WSOLMint, Amount: 1},
		To:   upstream.SwapSide{TokenAddress: mint, Amount: 0},
	}
	if _, ok := e.parseSwap(mint, &zeroAmount); ok {
		t.Error("zero token amount must be dropped")
	}

	noHash := rawSwap("", 1000, 1, 100)
	if _, ok := e.parseSwap(mint, &noHash); ok {
		t.Error("missing tx hash must be dropped")
	}
}

func TestParseSwapInfersType(t *testing.T) {
	e := testEngine(100)
	raw := upstream.RawSwap{
		TxHash: "t", Timestamp: 1000, Type: "",
		From: upstream.SwapSide{TokenAddress: mint, Amount: 100},
		To:   upstream.SwapSide{TokenAddress: WSOLMint, Amount: 1},
	}
	row, ok := e.parseSwap(mint, &raw)
	if !ok {
		t.Fatal("expected swap to parse")
	}
	if row.Type != "sell" {
		t.Errorf("token leaving the wallet is a sell, got %s", row.Type)
	}
}
