package mainloop

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New(16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func TestLoop_PostRunsInOrder(t *testing.T) {
	l := startLoop(t)
	var got []int
	for i := 0; i < 10; i++ {
		i := i
		l.Post(func() { got = append(got, i) })
	}
	if err := l.Do(context.Background(), func() {}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task order = %v, want ascending", got)
		}
	}
	if len(got) != 10 {
		t.Errorf("ran %d tasks, want 10", len(got))
	}
}

func TestLoop_SurvivesPanickingTask(t *testing.T) {
	l := startLoop(t)
	l.Post(func() { panic("boom") })
	ran := false
	if err := l.Do(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if !ran {
		t.Error("task after panic did not run")
	}
}

func TestLoop_PostAfterStop(t *testing.T) {
	l := New(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = l.Run(ctx)
	if l.Post(func() {}) {
		t.Error("Post() after stop = true, want false")
	}
	if err := l.Do(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("Do() after stop error = %v, want ErrStopped", err)
	}
}

func TestLoop_AfterFuncFires(t *testing.T) {
	l := startLoop(t)
	fired := make(chan struct{})
	l.Post(func() {
		l.AfterFunc(10*time.Millisecond, func() { close(fired) })
	})
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("AfterFunc callback never ran")
	}
}

func TestLoop_AfterFuncStopPreventsCallback(t *testing.T) {
	l := startLoop(t)
	var fired atomic.Bool
	_ = l.Do(context.Background(), func() {
		tm := l.AfterFunc(20*time.Millisecond, func() { fired.Store(true) })
		tm.Stop()
	})
	time.Sleep(80 * time.Millisecond)
	_ = l.Do(context.Background(), func() {})
	if fired.Load() {
		t.Error("stopped AfterFunc timer fired")
	}
}

func TestLoop_EveryTicksUntilStopped(t *testing.T) {
	l := startLoop(t)
	var ticks atomic.Int32
	var tm Timer
	_ = l.Do(context.Background(), func() {
		tm = l.Every(5*time.Millisecond, func() { ticks.Add(1) })
	})
	deadline := time.Now().Add(2 * time.Second)
	for ticks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if ticks.Load() < 3 {
		t.Fatalf("ticks = %d, want >= 3", ticks.Load())
	}
	_ = l.Do(context.Background(), func() { tm.Stop() })
	after := ticks.Load()
	time.Sleep(40 * time.Millisecond)
	_ = l.Do(context.Background(), func() {})
	if ticks.Load() != after {
		t.Errorf("ticks after Stop = %d, want %d", ticks.Load(), after)
	}
}
