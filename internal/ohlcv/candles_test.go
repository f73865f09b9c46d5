package ohlcv

import (
	"testing"
)

func TestBuildCandlesFromSwapsBuckets(t *testing.T) {
	swaps := []Swap{
		{TimestampMs: 1000, Price: 10, VolumeUSD: 100},
		{TimestampMs: 1500, Price: 12, VolumeUSD: 50},
		{TimestampMs: 2100, Price: 11, VolumeUSD: 25},
	}
	candles := BuildCandlesFromSwaps(swaps, 1000, 0)
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	first := candles[0]
	if first.Timestamp != 1000 || first.Open != 10 || first.High != 12 || first.Low != 10 || first.Close != 12 || first.Volume != 150 {
		t.Errorf("unexpected first candle: %+v", first)
	}
	if candles[1].Timestamp != 2000 || candles[1].Open != 11 {
		t.Errorf("unexpected second candle: %+v", candles[1])
	}
}

func TestBuildCandlesFromSwapsGapFill(t *testing.T) {
	swaps := []Swap{
		{TimestampMs: 0, Price: 5, VolumeUSD: 10},
		{TimestampMs: 3000, Price: 7, VolumeUSD: 10},
	}
	candles := BuildCandlesFromSwaps(swaps, 1000, 0)
	if len(candles) != 4 {
		t.Fatalf("expected 4 candles (2 filled), got %d", len(candles))
	}
	for _, i := range []int{1, 2} {
		c := candles[i]
		if c.Open != 5 || c.High != 5 || c.Low != 5 || c.Close != 5 || c.Volume != 0 {
			t.Errorf("gap candle %d not flat at previous close: %+v", i, c)
		}
	}
}

func TestBuildCandlesFromSwapsMaxCandles(t *testing.T) {
	swaps := []Swap{
		{TimestampMs: 0, Price: 1, VolumeUSD: 1},
		{TimestampMs: 1000, Price: 2, VolumeUSD: 1},
		{TimestampMs: 2000, Price: 3, VolumeUSD: 1},
	}
	candles := BuildCandlesFromSwaps(swaps, 1000, 2)
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if candles[0].Timestamp != 1000 || candles[1].Timestamp != 2000 {
		t.Errorf("expected the most recent candles to be kept: %+v", candles)
	}
}

func TestBuildCandlesFromSwapsSkipsZeroPrice(t *testing.T) {
	swaps := []Swap{
		{TimestampMs: 0, Price: 0, VolumeUSD: 1},
		{TimestampMs: 1000, Price: 2, VolumeUSD: 1},
	}
	candles := BuildCandlesFromSwaps(swaps, 1000, 0)
	if len(candles) != 1 || candles[0].Timestamp != 1000 {
		t.Errorf("zero-price swaps must be ignored: %+v", candles)
	}
}

func TestBuildPerTradeCandlesChainsOpens(t *testing.T) {
	swaps := []Swap{
		{TimestampMs: 1000, Price: 10, VolumeUSD: 5},
		{TimestampMs: 2000, Price: 12, VolumeUSD: 5},
		{TimestampMs: 3000, Price: 11, VolumeUSD: 5},
	}
	candles := BuildPerTradeCandles(swaps)
	if len(candles) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(candles))
	}
	if candles[1].Open != 10 || candles[1].Close != 12 {
		t.Errorf("second candle should open at previous close: %+v", candles[1])
	}
	if candles[1].High != 12 || candles[1].Low != 10 {
		t.Errorf("high/low must span open and close: %+v", candles[1])
	}
}

func TestBuildPerTradeCandlesBreaksChainOnGap(t *testing.T) {
	swaps := []Swap{
		{TimestampMs: 1000, Price: 10, VolumeUSD: 5},
		{TimestampMs: 1000 + MaxTradeGapMs + 1, Price: 20, VolumeUSD: 5},
	}
	candles := BuildPerTradeCandles(swaps)
	if len(candles) != 2 {
		t.Fatalf("expected 2 candles, got %d", len(candles))
	}
	if candles[1].Open != 20 {
		t.Errorf("gap beyond %dms must reset open to trade price: %+v", MaxTradeGapMs, candles[1])
	}
}

func TestBuildPerTradeCandlesDropsOutliers(t *testing.T) {
	swaps := []Swap{
		{TimestampMs: 1000, Price: 10, VolumeUSD: 5},
		{TimestampMs: 2000, Price: 11, VolumeUSD: 5},
		{TimestampMs: 3000, Price: 9, VolumeUSD: 5},
		{TimestampMs: 4000, Price: 10000, VolumeUSD: 5}, // fat finger
		{TimestampMs: 5000, Price: 0.1, VolumeUSD: 5},   // dust
	}
	candles := BuildPerTradeCandles(swaps)
	if len(candles) != 3 {
		t.Fatalf("expected outliers dropped, got %d candles", len(candles))
	}
	for _, c := range candles {
		if c.Close > 100 || c.Close < 1 {
			t.Errorf("outlier survived the median filter: %+v", c)
		}
	}
}
