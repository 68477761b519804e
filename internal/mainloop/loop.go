// Package mainloop provides the single goroutine that owns all UI-bound state.
// Network completions and timer ticks are posted onto it instead of touching state directly.
package mainloop

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrStopped is returned when work is posted to a loop that has finished running.
var ErrStopped = errors.New("main loop stopped")

// Poster runs fn on the loop goroutine. Returns false if fn will never run.
type Poster interface {
	Post(fn func()) bool
}

// Timer is a scheduled callback. Stop must be called from the loop goroutine; once it returns
// the callback is guaranteed not to run again.
type Timer interface {
	Stop()
}

// Scheduler creates timers whose callbacks run on the loop goroutine.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
	Every(d time.Duration, fn func()) Timer
}

// Loop executes posted closures one at a time, in order.
type Loop struct {
	tasks    chan func()
	done     chan struct{}
	doneOnce sync.Once
	logger   *zap.Logger
}

// New creates a Loop with the given queue depth. Call Run to start processing.
func New(queueSize int, logger *zap.Logger) *Loop {
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{
		tasks:  make(chan func(), queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Run processes posted work until ctx is done. Work still queued at that point is dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer l.doneOnce.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.tasks:
			l.exec(fn)
		}
	}
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("main loop task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

// Post enqueues fn. Blocks while the queue is full; returns false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do posts fn and waits for it to finish. If ctx ends first fn may still run later.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

type loopTimer struct {
	stopped  bool // touched only on the loop goroutine
	timer    *time.Timer
	ticker   *time.Ticker
	quit     chan struct{}
	quitOnce sync.Once
}

func (t *loopTimer) Stop() {
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.ticker != nil {
		t.ticker.Stop()
		t.quitOnce.Do(func() { close(t.quit) })
	}
}

// AfterFunc runs fn on the loop once d has elapsed, unless the timer is stopped first.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if lt.stopped {
				return
			}
			lt.stopped = true
			fn()
		})
	})
	return lt
}

// Every runs fn on the loop every d until the timer is stopped or the loop ends.
func (l *Loop) Every(d time.Duration, fn func()) Timer {
	lt := &loopTimer{
		ticker: time.NewTicker(d),
		quit:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-lt.quit:
				return
			case <-l.done:
				lt.ticker.Stop()
				return
			case <-lt.ticker.C:
				l.Post(func() {
					if !lt.stopped {
						fn()
					}
				})
			}
		}
	}()
	return lt
}

var _ Scheduler = (*Loop)(nil)
