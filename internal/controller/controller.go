// Package controller holds the remote's view state: it turns front-end input into box
// commands and weather report updates. Every method must run on the main loop.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/stb-remote/internal/config"
	"github.com/kjstillabower/stb-remote/internal/events"
	"github.com/kjstillabower/stb-remote/internal/gesture"
	"github.com/kjstillabower/stb-remote/internal/mainloop"
	"github.com/kjstillabower/stb-remote/internal/models"
	"github.com/kjstillabower/stb-remote/internal/observability"
	"github.com/kjstillabower/stb-remote/internal/reachability"
	"github.com/kjstillabower/stb-remote/internal/remote"
	"github.com/kjstillabower/stb-remote/internal/validation"
)

// Dispatcher sends key presses to the box.
type Dispatcher interface {
	Send(code remote.Code) bool
	BoxAddress() string
	SetBoxAddress(addr string)
	SetSuppressErrors(v bool)
}

// WeatherQuerier starts a report query whose completions arrive on the main loop.
type WeatherQuerier interface {
	Query(ctx context.Context, location models.LocationID, options models.WeatherOptions, onAQI, onWeather func(string)) error
}

// Publisher pushes events to the front-end.
type Publisher interface {
	Publish(events.Event)
}

// Phase is the state of a continuous gesture.
type Phase int

const (
	PhaseBegan Phase = iota
	PhaseChanged
	PhaseEnded
	PhaseCancelled
)

func (p Phase) String() string {
	switch p {
	case PhaseBegan:
		return "began"
	case PhaseChanged:
		return "changed"
	case PhaseEnded:
		return "ended"
	case PhaseCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// ParsePhase accepts began, changed, ended and cancelled (any case).
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "began", "begin", "start":
		return PhaseBegan, nil
	case "changed", "change", "move":
		return PhaseChanged, nil
	case "ended", "end":
		return PhaseEnded, nil
	case "cancelled", "canceled", "cancel":
		return PhaseCancelled, nil
	default:
		return 0, fmt.Errorf("unknown gesture phase %q", s)
	}
}

// Options configures a Controller.
type Options struct {
	// GestureAreaTop is the y coordinate of the lowest button edge. Taps at or above it land on
	// the button area and are ignored.
	GestureAreaTop float64
	RepeatDelay    time.Duration
	RepeatInterval time.Duration
	Settings       config.Settings
}

// Controller is the single owner of UI state.
type Controller struct {
	disp      Dispatcher
	weather   WeatherQuerier
	publisher Publisher
	pan       *gesture.Classifier
	logger    *zap.Logger

	gestureAreaTop float64
	settings       config.Settings

	report     *report
	generation uint64
}

// report is the weather overlay while it is shown. AQI text always precedes the detailed
// weather text, whichever arrives first.
type report struct {
	generation   uint64
	location     models.LocationID
	options      models.WeatherOptions
	aqi          string
	weather      string
	aqiReady     bool
	weatherReady bool
	openedAt     time.Time
}

func (r *report) text() string {
	return r.aqi + r.weather
}

// New creates a Controller and applies the initial settings. sched must run timer callbacks
// on the same loop that calls the Controller.
func New(disp Dispatcher, weather WeatherQuerier, publisher Publisher, sched mainloop.Scheduler, opts Options, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		disp:           disp,
		weather:        weather,
		publisher:      publisher,
		logger:         logger,
		gestureAreaTop: opts.GestureAreaTop,
		settings: config.Settings{
			BoxAddress: disp.BoxAddress(),
		},
	}
	c.pan = gesture.New(sched, c.send, opts.RepeatDelay, opts.RepeatInterval)
	if err := c.ApplySettings(opts.Settings); err != nil {
		logger.Warn("initial settings partly rejected", zap.Error(err))
	}
	return c
}

func (c *Controller) send(code remote.Code) {
	c.disp.Send(code)
}

// ReportVisible reports whether the weather overlay is shown.
func (c *Controller) ReportVisible() bool {
	return c.report != nil
}

// PressButton sends a key from the button area. Buttons stay live while the report is shown.
func (c *Controller) PressButton(code remote.Code) bool {
	if !code.Valid() {
		return false
	}
	observability.GestureEventsTotal.WithLabelValues("button").Inc()
	return c.disp.Send(code)
}

// Tap sends OK when the tap count matches the configured tap mode and the tap lands below
// the button area.
func (c *Controller) Tap(y float64, taps int) bool {
	if c.suppressed("tap") {
		return false
	}
	if taps != c.settings.TapCount() {
		return false
	}
	if y <= c.gestureAreaTop {
		return false
	}
	observability.GestureEventsTotal.WithLabelValues("tap").Inc()
	return c.disp.Send(remote.OK)
}

// Pinch adjusts the volume once per gesture, when it ends: spreading raises it, anything
// else lowers it.
func (c *Controller) Pinch(phase Phase, scale float64) bool {
	if c.suppressed("pinch") {
		return false
	}
	if phase != PhaseEnded {
		return false
	}
	observability.GestureEventsTotal.WithLabelValues("pinch").Inc()
	if scale > 1.0 {
		return c.disp.Send(remote.VolUp)
	}
	return c.disp.Send(remote.VolDown)
}

// Pan forwards a drag to the direction classifier. dx and dy are the translation since the
// drag began.
func (c *Controller) Pan(phase Phase, dx, dy float64) {
	if c.suppressed("pan") {
		return
	}
	switch phase {
	case PhaseBegan:
		c.pan.Begin()
	case PhaseChanged:
		c.pan.Update(dx, dy)
	case PhaseEnded, PhaseCancelled:
		c.pan.End()
	}
}

// GestureState exposes the long-press phase.
func (c *Controller) GestureState() gesture.State {
	return c.pan.State()
}

func (c *Controller) suppressed(kind string) bool {
	if c.report == nil {
		return false
	}
	observability.GestureEventsTotal.WithLabelValues("suppressed").Inc()
	c.logger.Debug("gesture ignored while report shown", zap.String("kind", kind))
	return true
}

// ToggleWeather opens the report and starts a query, or dismisses an open report. A
// dismissed report ignores any completion still in flight. Returns whether the report is
// now shown.
func (c *Controller) ToggleWeather(ctx context.Context) bool {
	if c.report != nil {
		c.report = nil
		c.publish(events.Event{Kind: events.KindReport, Visible: false})
		return false
	}

	// a drag in progress would otherwise keep repeating with its end event suppressed
	c.pan.End()

	c.generation++
	r := &report{
		generation: c.generation,
		location:   c.location(),
		options:    c.weatherOptions(),
		openedAt:   time.Now(),
	}
	c.report = r
	c.publish(events.Event{Kind: events.KindReport, Visible: true})

	gen := r.generation
	err := c.weather.Query(ctx, r.location, r.options,
		func(text string) { c.complete(gen, true, text) },
		func(text string) { c.complete(gen, false, text) },
	)
	if err != nil {
		c.logger.Warn("weather query not started", zap.Error(err))
		r.weather = err.Error()
		r.aqiReady, r.weatherReady = true, true
		c.publish(events.Event{Kind: events.KindReport, Message: r.text(), Visible: true})
	}
	return true
}

func (c *Controller) complete(gen uint64, aqi bool, text string) {
	r := c.report
	if r == nil || r.generation != gen {
		c.logger.Debug("discarding completion for dismissed report", zap.Uint64("generation", gen))
		return
	}
	if aqi {
		r.aqi, r.aqiReady = text, true
	} else {
		r.weather, r.weatherReady = text, true
	}
	if r.aqiReady && r.weatherReady {
		c.logger.Debug("report complete",
			zap.Stringer("location", r.location),
			zap.Duration("elapsed", time.Since(r.openedAt)),
		)
	}
	c.publish(events.Event{Kind: events.KindReport, Message: r.text(), Visible: true})
}

// ReportSnapshot is the current overlay contents.
type ReportSnapshot struct {
	Visible      bool   `json:"visible"`
	Text         string `json:"text"`
	Location     string `json:"location,omitempty"`
	Options      string `json:"options,omitempty"`
	AQIReady     bool   `json:"aqiReady"`
	WeatherReady bool   `json:"weatherReady"`
}

func (c *Controller) Report() ReportSnapshot {
	r := c.report
	if r == nil {
		return ReportSnapshot{}
	}
	return ReportSnapshot{
		Visible:      true,
		Text:         r.text(),
		Location:     r.location.String(),
		Options:      r.options.String(),
		AQIReady:     r.aqiReady,
		WeatherReady: r.weatherReady,
	}
}

func (c *Controller) weatherOptions() models.WeatherOptions {
	opts := models.WeatherNow
	if c.settings.Forecast {
		opts |= models.WeatherForecast
	}
	if c.settings.DetailForecast {
		opts |= models.WeatherDetailForecast
	}
	return opts
}

func (c *Controller) location() models.LocationID {
	return models.LocationID(c.settings.Location)
}

// Settings returns the settings in effect.
func (c *Controller) Settings() config.Settings {
	return c.settings
}

// ApplySettings takes every field of s. A box address that is not a dotted-quad IPv4 address
// or a location outside the known sites is rejected; the previous value stays and the
// returned error names what was kept.
func (c *Controller) ApplySettings(s config.Settings) error {
	var errs []error

	if s.BoxAddress != "" {
		addr, err := validation.ValidateIPv4(s.BoxAddress)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("box address %q: %w", s.BoxAddress, err))
		case addr != c.disp.BoxAddress():
			c.logger.Info("box address changed", zap.String("from", c.disp.BoxAddress()), zap.String("to", addr))
			c.disp.SetBoxAddress(addr)
		}
	}
	if err := validation.ValidateLocationIndex(s.Location, models.LocationCount); err != nil {
		errs = append(errs, fmt.Errorf("location %d: %w", s.Location, err))
		s.Location = c.settings.Location
	}

	s.BoxAddress = c.disp.BoxAddress()
	c.settings = s
	c.disp.SetSuppressErrors(s.DisableErrorMessage)
	return errors.Join(errs...)
}

// Notify shows a command failure. Implements remote.Notifier.
func (c *Controller) Notify(n remote.Notification) {
	c.publish(events.Event{
		Kind:    events.KindNotification,
		Title:   n.Title,
		Message: n.Message,
		Haptic:  n.Haptic,
	})
}

// NetworkChanged tells the front-end about a new network path.
func (c *Controller) NetworkChanged(status reachability.Status) {
	c.logger.Info("network path changed", zap.Stringer("status", status))
	c.publish(events.Event{Kind: events.KindNetwork, Message: status.String()})
}

func (c *Controller) publish(e events.Event) {
	if c.publisher == nil {
		return
	}
	e.Timestamp = time.Now()
	c.publisher.Publish(e)
}
