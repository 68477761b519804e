package reachability

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeProber struct {
	mu    sync.Mutex
	flags Flags
	ok    bool
}

func (f *fakeProber) Probe() (Flags, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags, f.ok
}

func (f *fakeProber) set(flags Flags) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags, f.ok = flags, true
}

func TestClassify_Precedence(t *testing.T) {
	tests := []struct {
		name  string
		flags Flags
		want  Status
	}{
		{"none", 0, NotReachable},
		{"wwan without reachable", FlagIsWWAN, NotReachable},
		{"reachable", FlagReachable, WiFi},
		{"reachable wwan", FlagReachable | FlagIsWWAN, Cellular},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.flags); got != tt.want {
				t.Errorf("Classify(%b) = %v, want %v", tt.flags, got, tt.want)
			}
		})
	}
}

func TestNewMonitor_DefaultsToWiFiWithoutData(t *testing.T) {
	if got := NewMonitor(nil, nil).Current(); got != WiFi {
		t.Errorf("Current() with nil prober = %v, want wifi", got)
	}
	if got := NewMonitor(&fakeProber{ok: false}, nil).Current(); got != WiFi {
		t.Errorf("Current() with empty probe = %v, want wifi", got)
	}
}

func TestNewMonitor_SynchronousProbe(t *testing.T) {
	m := NewMonitor(&fakeProber{flags: FlagReachable | FlagIsWWAN, ok: true}, nil)
	if got := m.Current(); got != Cellular {
		t.Errorf("Current() = %v, want cellular", got)
	}
}

func TestMonitor_UpdateNotifiesOnChangeOnly(t *testing.T) {
	m := NewMonitor(nil, nil)
	var got []Status
	cancel := m.Subscribe(func(s Status) { got = append(got, s) })

	m.Update(FlagReachable) // wifi -> wifi, no change
	m.Update(0)
	m.Update(FlagReachable | FlagIsWWAN)
	cancel()
	m.Update(FlagReachable)

	want := []Status{NotReachable, Cellular}
	if len(got) != len(want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if m.Current() != WiFi {
		t.Errorf("Current() = %v, want wifi", m.Current())
	}
}

func TestMonitor_RunPolls(t *testing.T) {
	p := &fakeProber{flags: FlagReachable, ok: true}
	m := NewMonitor(p, nil)
	changed := make(chan Status, 1)
	m.Subscribe(func(s Status) {
		select {
		case changed <- s:
		default:
		}
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, 5*time.Millisecond) }()

	p.set(0)
	select {
	case s := <-changed:
		if s != NotReachable {
			t.Errorf("status = %v, want not_reachable", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run never delivered the change")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestInterfaceProber_Probe(t *testing.T) {
	tests := []struct {
		name   string
		ifaces []Interface
		want   Flags
	}{
		{"only loopback", []Interface{{Name: "lo", Up: true, Loopback: true, HasIPv4: true}}, 0},
		{"wlan", []Interface{{Name: "wlan0", Up: true, HasIPv4: true}}, FlagReachable},
		{"cellular only", []Interface{{Name: "rmnet0", Up: true, HasIPv4: true}}, FlagReachable | FlagIsWWAN},
		{"wifi wins over cellular", []Interface{
			{Name: "pdp_ip0", Up: true, HasIPv4: true},
			{Name: "en0", Up: true, HasIPv4: true},
		}, FlagReachable},
		{"down interface ignored", []Interface{{Name: "wlan0", Up: false, HasIPv4: true}}, 0},
		{"no address ignored", []Interface{{Name: "wlan0", Up: true}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewInterfaceProber(nil)
			p.List = func() ([]Interface, error) { return tt.ifaces, nil }
			got, ok := p.Probe()
			if !ok {
				t.Fatal("Probe() ok = false")
			}
			if got != tt.want {
				t.Errorf("Probe() = %b, want %b", got, tt.want)
			}
		})
	}
}

func TestInterfaceProber_ListError(t *testing.T) {
	p := NewInterfaceProber(nil)
	p.List = func() ([]Interface, error) { return nil, errors.New("no netlink") }
	if _, ok := p.Probe(); ok {
		t.Error("Probe() ok = true on list error")
	}
}
