package service

import (
	"sync"
)

// overlapTracker counts running lookups per key. Start returns the count after incrementing,
// so a value above 1 means an earlier lookup for the same key has not finished.
type overlapTracker struct {
	mu     sync.Mutex
	active map[string]int
}

func newOverlapTracker() *overlapTracker {
	return &overlapTracker{
		active: make(map[string]int),
	}
}

// Start records a lookup for key. Callers defer Finish(key).
func (t *overlapTracker) Start(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[key]++
	return t.active[key]
}

func (t *overlapTracker) Finish(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if count, ok := t.active[key]; ok && count > 0 {
		t.active[key]--
		if t.active[key] == 0 {
			delete(t.active, key)
		}
	}
}

// Active returns the number of running lookups across all keys.
func (t *overlapTracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.active {
		n += c
	}
	return n
}
