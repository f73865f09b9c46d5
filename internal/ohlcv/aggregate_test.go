package ohlcv

import (
	"testing"
	"time"

	"solana-pulse-backend/internal/upstream"
)

func dayMs(y int, m time.Month, d int) int64 {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).UnixMilli()
}

func TestAggregateWeeklySundayBoundary(t *testing.T) {
	// 2024-01-07 and 2024-01-14 are Sundays
	daily := []upstream.OHLCV{
		{Timestamp: dayMs(2024, 1, 8), Open: 10, High: 15, Low: 9, Close: 12, Volume: 100},
		{Timestamp: dayMs(2024, 1, 9), Open: 12, High: 20, Low: 11, Close: 18, Volume: 50},
		{Timestamp: dayMs(2024, 1, 15), Open: 18, High: 19, Low: 14, Close: 16, Volume: 30},
	}

	weekly := AggregateWeekly(daily)
	if len(weekly) != 2 {
		t.Fatalf("expected 2 weekly candles, got %d", len(weekly))
	}

	first := weekly[0]
	if first.Timestamp != dayMs(2024, 1, 7) {
		t.Errorf("expected week start on Sunday Jan 7, got %d", first.Timestamp)
	}
	if first.Open != 10 || first.Close != 18 || first.High != 20 || first.Low != 9 || first.Volume != 150 {
		t.Errorf("unexpected weekly candle: %+v", first)
	}

	if weekly[1].Timestamp != dayMs(2024, 1, 14) {
		t.Errorf("expected second week start on Jan 14, got %d", weekly[1].Timestamp)
	}
}

func TestAggregateMonthly(t *testing.T) {
	daily := []upstream.OHLCV{
		{Timestamp: dayMs(2024, 1, 5), Open: 1, High: 3, Low: 1, Close: 2, Volume: 10},
		{Timestamp: dayMs(2024, 1, 25), Open: 2, High: 5, Low: 2, Close: 4, Volume: 20},
		{Timestamp: dayMs(2024, 2, 2), Open: 4, High: 6, Low: 3, Close: 5, Volume: 15},
	}

	monthly := AggregateMonthly(daily)
	if len(monthly) != 2 {
		t.Fatalf("expected 2 monthly candles, got %d", len(monthly))
	}
	jan := monthly[0]
	if jan.Timestamp != dayMs(2024, 1, 1) {
		t.Errorf("expected January bucket, got %d", jan.Timestamp)
	}
	if jan.Open != 1 || jan.Close != 4 || jan.High != 5 || jan.Low != 1 || jan.Volume != 30 {
		t.Errorf("unexpected January candle: %+v", jan)
	}
	if monthly[1].Timestamp != dayMs(2024, 2, 1) {
		t.Errorf("expected February bucket, got %d", monthly[1].Timestamp)
	}
}

func TestAggregateDedupesByTimestamp(t *testing.T) {
	ts := dayMs(2024, 3, 4)
	daily := []upstream.OHLCV{
		{Timestamp: ts, Open: 1, High: 2, Low: 1, Close: 2, Volume: 10},
		{Timestamp: ts, Open: 1, High: 3, Low: 1, Close: 3, Volume: 12},
	}
	weekly := AggregateWeekly(daily)
	if len(weekly) != 1 {
		t.Fatalf("expected 1 candle, got %d", len(weekly))
	}
	// Last observation wins, volume not double counted
	if weekly[0].Volume != 12 || weekly[0].Close != 3 {
		t.Errorf("unexpected deduped candle: %+v", weekly[0])
	}
}

func TestAggregateEmptyInput(t *testing.T) {
	if got := AggregateWeekly(nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
	if got := AggregateMonthly(nil); got != nil {
		t.Errorf("expected nil for empty input, got %v", got)
	}
}
