// Package traffic keeps sliding windows of box command and weather route outcomes.
// Health uses the command error share to tell whether the set-top box is answering.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies one recorded event.
type Outcome int

const (
	// Sent is a box command that got any HTTP response.
	Sent Outcome = iota
	// Failed is a box command that hit a transport error or timeout.
	Failed
	// Dropped is a box command skipped because the network path was not Wi-Fi.
	Dropped
	// Denied is a weather request refused by the rate limiter.
	Denied
	outcomeCount
)

// maxAge bounds how long timestamps are retained regardless of the window asked for.
const maxAge = 5 * time.Minute

var defaultTracker Tracker

// Record records an outcome at the current time.
func Record(o Outcome) {
	defaultTracker.Record(o)
}

// Count returns the number of o outcomes within the window.
func Count(o Outcome, window time.Duration) int {
	return defaultTracker.Count(o, window)
}

// ErrorRate returns (failed, sent+failed) within the window. Dropped and denied are excluded.
func ErrorRate(window time.Duration) (failed, total int) {
	return defaultTracker.ErrorRate(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

// Tracker maintains one timestamp slice per outcome.
type Tracker struct {
	mu    sync.Mutex
	times [outcomeCount][]time.Time
	now   func() time.Time
}

func (t *Tracker) clock() time.Time {
	if t.now != nil {
		return t.now()
	}
	return time.Now()
}

// Record appends the current timestamp for o and prunes old entries.
func (t *Tracker) Record(o Outcome) {
	if o < 0 || o >= outcomeCount {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock()
	t.times[o] = append(t.times[o], now)
	t.pruneLocked(now)
}

// Count returns the number of o outcomes within the window.
func (t *Tracker) Count(o Outcome, window time.Duration) int {
	if o < 0 || o >= outcomeCount {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.times[o], t.clock().Add(-window))
}

// ErrorRate returns (failed, sent+failed) within the window.
func (t *Tracker) ErrorRate(window time.Duration) (failed, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock().Add(-window)
	failed = countSince(t.times[Failed], cutoff)
	return failed, failed + countSince(t.times[Sent], cutoff)
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.times {
		t.times[i] = nil
	}
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than maxAge. Must be called with mutex held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	for o := range t.times {
		times := t.times[o]
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			t.times[o] = append(times[:0], times[i:]...)
		}
	}
}
