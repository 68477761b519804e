// Package reachability tracks which network path the host is on. Remote-control commands are
// only sent over Wi-Fi; the box lives on the local wireless network.
package reachability

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/stb-remote/internal/observability"
)

// Status is the classified network path.
type Status int32

const (
	NotReachable Status = iota
	WiFi
	Cellular
)

func (s Status) String() string {
	switch s {
	case NotReachable:
		return "not_reachable"
	case WiFi:
		return "wifi"
	case Cellular:
		return "cellular"
	default:
		return "unknown"
	}
}

// Flags are the raw path capabilities reported by a Prober.
type Flags uint32

const (
	FlagReachable Flags = 1 << iota
	FlagIsWWAN
)

// Classify maps raw flags to a Status: unreachable wins, then cellular, otherwise Wi-Fi.
func Classify(f Flags) Status {
	if f&FlagReachable == 0 {
		return NotReachable
	}
	if f&FlagIsWWAN != 0 {
		return Cellular
	}
	return WiFi
}

// Prober reads the current path flags. ok is false when the platform could not report anything.
type Prober interface {
	Probe() (flags Flags, ok bool)
}

// Monitor holds the current Status and notifies subscribers when it changes.
type Monitor struct {
	prober Prober
	logger *zap.Logger
	status atomic.Int32

	mu     sync.Mutex
	subs   map[int]func(Status)
	nextID int
}

// NewMonitor creates a Monitor and performs one synchronous probe so Current is usable
// immediately. Without data the status stays WiFi.
func NewMonitor(prober Prober, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Monitor{
		prober: prober,
		logger: logger,
		subs:   make(map[int]func(Status)),
	}
	// TODO: start NotReachable once the front-end can show a pending network state.
	m.status.Store(int32(WiFi))
	if prober != nil {
		if flags, ok := prober.Probe(); ok {
			m.status.Store(int32(Classify(flags)))
		} else {
			logger.Warn("reachability probe returned no data, assuming wifi")
		}
	}
	observability.SetNetworkStatus(int(m.Current()))
	return m
}

// Current returns the most recently classified status. Safe from any goroutine.
func (m *Monitor) Current() Status {
	return Status(m.status.Load())
}

// Subscribe registers fn to be called with the new status on every change. fn runs on the
// goroutine that delivered the update; re-post to the main loop before touching UI state.
func (m *Monitor) Subscribe(fn func(Status)) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

// Update reclassifies flags delivered by a path-change notification.
func (m *Monitor) Update(flags Flags) {
	next := Classify(flags)
	prev := Status(m.status.Swap(int32(next)))
	if prev == next {
		return
	}
	observability.SetNetworkStatus(int(next))
	m.logger.Info("network path changed", zap.String("from", prev.String()), zap.String("to", next.String()))

	m.mu.Lock()
	subs := make([]func(Status), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()
	for _, fn := range subs {
		fn(next)
	}
}

// Run polls the prober every interval and applies the result until ctx is done.
// Probes without data are skipped.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) error {
	if m.prober == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if flags, ok := m.prober.Probe(); ok {
				m.Update(flags)
			}
		}
	}
}
