package ingest

import "testing"

func TestRingBucketsBySecond(t *testing.T) {
	r := &candleRing{}

	r.update(1000, 10, 100)
	c, opened := r.update(1500, 12, 50)
	if opened {
		t.Error("same-second trade must not open a bucket")
	}
	if c.Open != 10 || c.High != 12 || c.Close != 12 || c.Volume != 150 {
		t.Errorf("unexpected candle: %+v", c)
	}

	c2, opened := r.update(2100, 11, 25)
	if !opened {
		t.Error("new second must open a bucket")
	}
	if c2.Timestamp != 2000 || c2.Open != 11 {
		t.Errorf("unexpected new bucket: %+v", c2)
	}
}

func TestRingLowUpdates(t *testing.T) {
	r := &candleRing{}
	r.update(1000, 10, 1)
	c, _ := r.update(1100, 8, 1)
	if c.Low != 8 || c.High != 10 {
		t.Errorf("unexpected low/high: %+v", c)
	}
}

func TestRingRetainsOnlyWindow(t *testing.T) {
	r := &candleRing{}
	for i := 0; i < ringCapacity+50; i++ {
		r.update(int64(i)*1000, 1, 1)
	}
	candles := r.snapshot()
	if len(candles) > ringCapacity {
		t.Errorf("ring exceeded capacity: %d", len(candles))
	}
	// oldest retained bucket is within 300s of the newest
	newest := candles[len(candles)-1].Timestamp
	oldest := candles[0].Timestamp
	if newest-oldest > int64(ringCapacity)*1000 {
		t.Errorf("window wider than %ds: %d..%d", ringCapacity, oldest, newest)
	}
}

func TestLRUOrdering(t *testing.T) {
	var evicted []string
	l := newTokenLRU(2, func(tok *trackedToken) { evicted = append(evicted, tok.mint) })

	l.getOrAdd("a")
	l.getOrAdd("b")
	l.getOrAdd("a") // refresh a
	l.getOrAdd("c") // evicts b

	if len(evicted) != 1 || evicted[0] != "b" {
		t.Errorf("expected b evicted, got %v", evicted)
	}
	if _, ok := l.get("a"); !ok {
		t.Error("a must survive")
	}
}
