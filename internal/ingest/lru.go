package ingest

import (
	"container/list"
	"sync"
)

// trackedToken is the per-mint state the ingester keeps while streaming
type trackedToken struct {
	mint       string
	graduating bool
	ring       *candleRing
}

// tokenLRU bounds the set of tracked mints. The least recently traded mint
// is evicted when capacity is exceeded; onEvict runs outside the lock.
type tokenLRU struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recent
	entries  map[string]*list.Element
	onEvict  func(*trackedToken)
}

func newTokenLRU(capacity int, onEvict func(*trackedToken)) *tokenLRU {
	if capacity <= 0 {
		capacity = 100
	}
	return &tokenLRU{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
		onEvict:  onEvict,
	}
}

// getOrAdd returns the tracked state for a mint, creating and possibly
// evicting to make room. The second result reports whether the mint was
// already tracked.
func (l *tokenLRU) getOrAdd(mint string) (*trackedToken, bool) {
	l.mu.Lock()
	if el, ok := l.entries[mint]; ok {
		l.order.MoveToFront(el)
		tok := el.Value.(*trackedToken)
		l.mu.Unlock()
		return tok, true
	}

	tok := &trackedToken{mint: mint, ring: &candleRing{}}
	l.entries[mint] = l.order.PushFront(tok)

	var evicted *trackedToken
	if l.order.Len() > l.capacity {
		oldest := l.order.Back()
		l.order.Remove(oldest)
		evicted = oldest.Value.(*trackedToken)
		delete(l.entries, evicted.mint)
	}
	l.mu.Unlock()

	if evicted != nil && l.onEvict != nil {
		l.onEvict(evicted)
	}
	return tok, false
}

// get returns the tracked state without changing recency
func (l *tokenLRU) get(mint string) (*trackedToken, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	el, ok := l.entries[mint]
	if !ok {
		return nil, false
	}
	return el.Value.(*trackedToken), true
}

// remove drops a mint without invoking the eviction hook
func (l *tokenLRU) remove(mint string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok := l.entries[mint]; ok {
		l.order.Remove(el)
		delete(l.entries, mint)
	}
}

func (l *tokenLRU) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.order.Len()
}
