// Package gesture turns a drag's displacement stream into directional key presses, repeating
// the key while the finger is held in one direction.
package gesture

import (
	"math"
	"time"

	"github.com/kjstillabower/stb-remote/internal/mainloop"
	"github.com/kjstillabower/stb-remote/internal/observability"
	"github.com/kjstillabower/stb-remote/internal/remote"
)

// Direction is the classified drag direction.
type Direction int

const (
	Invalid Direction = iota
	Left
	Down
	Right
	Up
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Down:
		return "down"
	case Right:
		return "right"
	case Up:
		return "up"
	default:
		return "invalid"
	}
}

// Code maps a direction to its key. Invalid maps to remote.Null.
func (d Direction) Code() remote.Code {
	switch d {
	case Left:
		return remote.Left
	case Right:
		return remote.Right
	case Up:
		return remote.Up
	case Down:
		return remote.Down
	default:
		return remote.Null
	}
}

// Classify returns the direction for a displacement. The dominant axis wins; an exact tie
// keeps prev. Screen coordinates: positive dy points down.
func Classify(prev Direction, dx, dy float64) Direction {
	ax, ay := math.Abs(dx), math.Abs(dy)
	switch {
	case ax > ay:
		if dx > 0 {
			return Right
		}
		return Left
	case ay > ax:
		if dy > 0 {
			return Down
		}
		return Up
	default:
		return prev
	}
}

// State is the long-press repeat phase.
type State int

const (
	Idle State = iota
	Armed
	Repeating
)

func (s State) String() string {
	switch s {
	case Armed:
		return "armed"
	case Repeating:
		return "repeating"
	default:
		return "idle"
	}
}

const (
	DefaultRepeatDelay    = 500 * time.Millisecond
	DefaultRepeatInterval = 200 * time.Millisecond
)

// Classifier tracks one drag. All methods must be called on the main loop, and sched must
// deliver timer callbacks there.
type Classifier struct {
	sched          mainloop.Scheduler
	send           func(remote.Code)
	repeatDelay    time.Duration
	repeatInterval time.Duration

	curr, prev Direction
	delayer    mainloop.Timer
	repeater   mainloop.Timer
}

// New creates a Classifier that emits keys through send. Non-positive durations take the defaults.
func New(sched mainloop.Scheduler, send func(remote.Code), repeatDelay, repeatInterval time.Duration) *Classifier {
	if repeatDelay <= 0 {
		repeatDelay = DefaultRepeatDelay
	}
	if repeatInterval <= 0 {
		repeatInterval = DefaultRepeatInterval
	}
	return &Classifier{
		sched:          sched,
		send:           send,
		repeatDelay:    repeatDelay,
		repeatInterval: repeatInterval,
	}
}

// Begin starts a drag.
func (c *Classifier) Begin() {
	c.stopTimers()
	c.curr = Invalid
	c.prev = Invalid
}

// Update classifies the cumulative displacement since Begin. A change of direction emits its
// key once and restarts the long-press sequence.
func (c *Classifier) Update(dx, dy float64) {
	c.curr = Classify(c.curr, dx, dy)
	if c.curr == c.prev {
		return
	}
	if code := c.curr.Code(); code != remote.Null {
		observability.GestureEventsTotal.WithLabelValues("pan").Inc()
		c.send(code)
	}
	c.arm()
	c.prev = c.curr
}

// End finishes the drag and cancels any pending repeat.
func (c *Classifier) End() {
	c.curr = Invalid
	c.prev = Invalid
	c.stopTimers()
}

// Current returns the direction of the latest update.
func (c *Classifier) Current() Direction {
	return c.curr
}

// State reports which repeat timer is live.
func (c *Classifier) State() State {
	switch {
	case c.repeater != nil:
		return Repeating
	case c.delayer != nil:
		return Armed
	default:
		return Idle
	}
}

func (c *Classifier) arm() {
	c.stopTimers()
	c.delayer = c.sched.AfterFunc(c.repeatDelay, c.startRepeating)
}

func (c *Classifier) startRepeating() {
	c.stopTimers()
	c.repeater = c.sched.Every(c.repeatInterval, c.tick)
}

// tick re-emits whatever direction is current now, not the one that armed the sequence.
func (c *Classifier) tick() {
	code := c.curr.Code()
	if code == remote.Null {
		return
	}
	observability.GestureEventsTotal.WithLabelValues("repeat").Inc()
	c.send(code)
}

func (c *Classifier) stopTimers() {
	if c.delayer != nil {
		c.delayer.Stop()
		c.delayer = nil
	}
	if c.repeater != nil {
		c.repeater.Stop()
		c.repeater = nil
	}
}
