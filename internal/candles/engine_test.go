package candles

import (
	"context"
	"testing"
	"time"

	"solana-pulse-backend/internal/database"
	"solana-pulse-backend/internal/upstream"
)

type fakeCandleStore struct {
	rows    []*database.Candle
	upserts int
}

func (f *fakeCandleStore) GetCandles(_ context.Context, address, tf string, fromMs, toMs int64) ([]*database.Candle, error) {
	var out []*database.Candle
	for _, r := range f.rows {
		if r.TokenAddress == address && r.Timeframe == tf && r.Timestamp >= fromMs && r.Timestamp <= toMs {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeCandleStore) UpsertCandles(_ context.Context, candles []*database.Candle) (int, error) {
	f.upserts++
	for _, c := range candles {
		replaced := false
		for i, have := range f.rows {
			if have.TokenAddress == c.TokenAddress && have.Timeframe == c.Timeframe && have.Timestamp == c.Timestamp {
				f.rows[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			f.rows = append(f.rows, c)
		}
	}
	return len(candles), nil
}

const addr = "TokenAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

func fetchReturning(candles []upstream.OHLCV, calls *int) FetchFunc {
	return func(_ context.Context, _ string, _ string, _, _ int64) ([]upstream.OHLCV, error) {
		if calls != nil {
			*calls++
		}
		return candles, nil
	}
}

// seedHour fills the store with fresh hourly candles covering [from, to]
func seedHour(store *fakeCandleStore, fromMs, toMs int64, now time.Time) {
	interval := IntervalMs["1h"]
	for ts := fromMs; ts <= toMs; ts += interval {
		store.rows = append(store.rows, &database.Candle{
			TokenAddress: addr, Timeframe: "1h", Timestamp: ts,
			Open: 1, High: 2, Low: 1, Close: 1.5, Volume: 10,
			UpdatedAt: now,
		})
	}
}

func TestGetCandlesServesCompleteCache(t *testing.T) {
	store := &fakeCandleStore{}
	e := NewEngine(store, 5*time.Minute)

	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	interval := IntervalMs["1h"]
	liveStart := (now.UnixMilli() / interval) * interval
	from := liveStart - 10*interval
	seedHour(store, from, liveStart, now)

	calls := 0
	got, err := e.GetCandles(context.Background(), addr, "1h", from, now.UnixMilli(), fetchReturning(nil, &calls))
	if err != nil {
		t.Fatalf("GetCandles failed: %v", err)
	}
	if calls != 0 {
		t.Errorf("complete fresh cache must not hit upstream, got %d calls", calls)
	}
	if len(got) != 11 {
		t.Errorf("expected 11 candles, got %d", len(got))
	}
}

func TestGetCandlesRefetchesWhenSparse(t *testing.T) {
	store := &fakeCandleStore{}
	e := NewEngine(store, 5*time.Minute)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	interval := IntervalMs["1h"]
	from := now.UnixMilli() - 20*interval
	// only 2 of ~20 expected buckets cached
	store.rows = []*database.Candle{
		{TokenAddress: addr, Timeframe: "1h", Timestamp: from, UpdatedAt: now},
		{TokenAddress: addr, Timeframe: "1h", Timestamp: from + interval, UpdatedAt: now},
	}

	fetched := []upstream.OHLCV{{Timestamp: from, Open: 1, High: 1, Low: 1, Close: 1}}
	calls := 0
	_, err := e.GetCandles(context.Background(), addr, "1h", from, now.UnixMilli(), fetchReturning(fetched, &calls))
	if err != nil {
		t.Fatalf("GetCandles failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("sparse cache must trigger a full refetch, got %d calls", calls)
	}
	if store.upserts != 1 {
		t.Errorf("fetched candles must be persisted")
	}
}

func TestGetCandlesRefreshesStaleLiveBucket(t *testing.T) {
	store := &fakeCandleStore{}
	e := NewEngine(store, 5*time.Minute)

	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	interval := IntervalMs["1h"]
	liveStart := (now.UnixMilli() / interval) * interval
	from := liveStart - 10*interval
	seedHour(store, from, liveStart, now.Add(-10*time.Minute)) // stale live bucket

	fetched := []upstream.OHLCV{{Timestamp: liveStart, Open: 2, High: 3, Low: 2, Close: 2.5, Volume: 99}}
	calls := 0
	got, err := e.GetCandles(context.Background(), addr, "1h", from, now.UnixMilli(), fetchReturning(fetched, &calls))
	if err != nil {
		t.Fatalf("GetCandles failed: %v", err)
	}
	if calls != 1 {
		t.Errorf("stale live bucket must trigger one narrow fetch, got %d calls", calls)
	}
	last := got[len(got)-1]
	if last.Timestamp != liveStart || last.Volume != 99 {
		t.Errorf("live bucket not replaced by fetched data: %+v", last)
	}
}

func TestGetCandlesServesCacheWhenLiveRefreshFails(t *testing.T) {
	store := &fakeCandleStore{}
	e := NewEngine(store, 5*time.Minute)

	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	interval := IntervalMs["1h"]
	liveStart := (now.UnixMilli() / interval) * interval
	from := liveStart - 10*interval
	seedHour(store, from, liveStart, now.Add(-10*time.Minute))

	failing := func(_ context.Context, _ string, _ string, _, _ int64) ([]upstream.OHLCV, error) {
		return nil, context.DeadlineExceeded
	}
	got, err := e.GetCandles(context.Background(), addr, "1h", from, now.UnixMilli(), failing)
	if err != nil {
		t.Fatalf("expected stale cache to be served, got error: %v", err)
	}
	if len(got) != 11 {
		t.Errorf("expected 11 cached candles, got %d", len(got))
	}
}

func TestGetCandlesWeeklyAggregatesFromDaily(t *testing.T) {
	store := &fakeCandleStore{}
	e := NewEngine(store, 5*time.Minute)

	day := func(d int) int64 {
		return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC).UnixMilli()
	}
	daily := []upstream.OHLCV{
		{Timestamp: day(8), Open: 10, High: 15, Low: 9, Close: 12, Volume: 100},
		{Timestamp: day(9), Open: 12, High: 20, Low: 11, Close: 18, Volume: 50},
	}
	fetchedTf := ""
	fetch := func(_ context.Context, _ string, tf string, _, _ int64) ([]upstream.OHLCV, error) {
		fetchedTf = tf
		return daily, nil
	}

	got, err := e.GetCandles(context.Background(), addr, "1w", day(1), day(20), fetch)
	if err != nil {
		t.Fatalf("GetCandles failed: %v", err)
	}
	if fetchedTf != "1d" {
		t.Errorf("weekly miss must fetch daily candles, fetched %q", fetchedTf)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 weekly candle, got %d", len(got))
	}
	if got[0].Timestamp != day(7) {
		t.Errorf("expected Sunday bucket, got %d", got[0].Timestamp)
	}
	if store.upserts != 0 {
		t.Errorf("aggregates must not be written back")
	}
}

func TestValidTimeframe(t *testing.T) {
	for _, tf := range []string{"1m", "5m", "15m", "1h", "4h", "1d", "1w", "1M"} {
		if !ValidTimeframe(tf) {
			t.Errorf("%s should be valid", tf)
		}
	}
	if ValidTimeframe("3h") {
		t.Error("3h is not in the vocabulary")
	}
}
