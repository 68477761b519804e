package lifecycle

import (
	"fmt"
	"strings"
	"sync/atomic"
)

var (
	shuttingDown atomic.Bool
	reloadDue    atomic.Bool
	current      atomic.Int32
)

// SetShuttingDown sets the shutdown flag. Call when SIGTERM/SIGINT received.
// Health handler returns 503 with status shutting-down while true.
func SetShuttingDown(v bool) {
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// State is the front-end's foreground state as reported to the daemon.
type State int32

const (
	Active State = iota
	Inactive
	Background
)

func (s State) String() string {
	switch s {
	case Active:
		return "active"
	case Inactive:
		return "inactive"
	case Background:
		return "background"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ParseState accepts active/foreground, inactive and background (any case).
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "foreground":
		return Active, nil
	case "inactive":
		return Inactive, nil
	case "background":
		return Background, nil
	default:
		return 0, fmt.Errorf("unknown lifecycle state %q", s)
	}
}

// Transition records a state change and reports whether settings must be reloaded now.
// Leaving the active state schedules a reload; returning to it consumes the schedule.
func Transition(to State) (reload bool) {
	current.Store(int32(to))
	if to != Active {
		reloadDue.Store(true)
		return false
	}
	return reloadDue.Swap(false)
}

// Current returns the last reported state. Active until told otherwise.
func Current() State {
	return State(current.Load())
}

// ReloadPending reports whether a reload is scheduled for the next activation.
func ReloadPending() bool {
	return reloadDue.Load()
}
