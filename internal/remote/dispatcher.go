// Package remote sends remote-control key presses to the set-top box.
package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/stb-remote/internal/mainloop"
	"github.com/kjstillabower/stb-remote/internal/observability"
	"github.com/kjstillabower/stb-remote/internal/reachability"
	"github.com/kjstillabower/stb-remote/internal/traffic"
)

const (
	// DefaultPort is the box's fixed remote-control port.
	DefaultPort = 7766
	// DefaultTimeout bounds one command request.
	DefaultTimeout = time.Second
	// DefaultBoxAddress is used until settings provide one.
	DefaultBoxAddress = "192.168.1.102"
)

// StatusSource reports the current network path.
type StatusSource interface {
	Current() reachability.Status
}

// Notification is a user-facing error surfaced after a failed command.
type Notification struct {
	Title   string
	Message string
	Haptic  bool
}

// Notifier shows notifications. Called on the main loop.
type Notifier interface {
	Notify(Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Config holds dispatcher parameters.
type Config struct {
	BoxAddress string
	Port       int
	Timeout    time.Duration
	// Title heads failure notifications.
	Title string
}

// Dispatcher issues fire-and-forget key requests. Send, SetBoxAddress and SetSuppressErrors
// must be called on the main loop; failures are re-posted there before notifying.
type Dispatcher struct {
	client   *http.Client
	port     int
	title    string
	status   StatusSource
	poster   mainloop.Poster
	notifier Notifier
	logger   *zap.Logger

	// loop-owned
	boxAddress     string
	suppressErrors bool
	closed         bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// NewDispatcher creates a Dispatcher. Zero config fields take package defaults.
func NewDispatcher(cfg Config, status StatusSource, poster mainloop.Poster, notifier Notifier, logger *zap.Logger) *Dispatcher {
	if cfg.Port <= 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BoxAddress == "" {
		cfg.BoxAddress = DefaultBoxAddress
	}
	if cfg.Title == "" {
		cfg.Title = "Set-top Box Remote"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		client:     &http.Client{Timeout: cfg.Timeout},
		port:       cfg.Port,
		title:      cfg.Title,
		status:     status,
		poster:     poster,
		notifier:   notifier,
		logger:     logger,
		boxAddress: cfg.BoxAddress,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// BoxAddress returns the address commands are sent to.
func (d *Dispatcher) BoxAddress() string {
	return d.boxAddress
}

// SetBoxAddress changes the target box. The caller validates the address.
func (d *Dispatcher) SetBoxAddress(addr string) {
	d.boxAddress = addr
}

// SetSuppressErrors turns failure notifications off or on. Read when a failure arrives.
func (d *Dispatcher) SetSuppressErrors(v bool) {
	d.suppressErrors = v
}

func (d *Dispatcher) commandURL(code Code) string {
	return "http://" + net.JoinHostPort(d.boxAddress, strconv.Itoa(d.port)) + "/remote?key=" + strconv.Itoa(int(code))
}

// Send issues one GET for code without waiting for it. Returns false when nothing was sent:
// Null or unknown codes, a path other than Wi-Fi, or a closed dispatcher.
func (d *Dispatcher) Send(code Code) bool {
	if !code.Valid() || d.closed {
		return false
	}
	if d.status != nil && d.status.Current() != reachability.WiFi {
		observability.BoxCommandsTotal.WithLabelValues(code.String(), "dropped_network").Inc()
		traffic.Record(traffic.Dropped)
		return false
	}

	req, err := http.NewRequestWithContext(d.ctx, http.MethodGet, d.commandURL(code), nil)
	if err != nil {
		d.logger.Error("build command request", zap.String("key", code.String()), zap.Error(err))
		return false
	}

	d.wg.Add(1)
	d.inFlight.Add(1)
	observability.BoxCommandsInFlight.Inc()
	go func() {
		defer d.wg.Done()
		defer observability.BoxCommandsInFlight.Dec()
		defer d.inFlight.Add(-1)

		start := time.Now()
		resp, err := d.client.Do(req)
		duration := time.Since(start).Seconds()
		if err == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			observability.BoxCommandsTotal.WithLabelValues(code.String(), "sent").Inc()
			observability.BoxCommandDuration.WithLabelValues("sent").Observe(duration)
			traffic.Record(traffic.Sent)
			return
		}
		if d.ctx.Err() != nil {
			// session torn down; nobody is left to tell
			return
		}
		observability.BoxCommandsTotal.WithLabelValues(code.String(), "failed").Inc()
		observability.BoxCommandDuration.WithLabelValues("failed").Observe(duration)
		traffic.Record(traffic.Failed)
		d.poster.Post(func() { d.reportFailure(code, err) })
	}()
	return true
}

func (d *Dispatcher) reportFailure(code Code, err error) {
	if d.suppressErrors {
		d.logger.Debug("command failed, notification suppressed", zap.String("key", code.String()), zap.Error(err))
		return
	}
	d.logger.Warn("command failed", zap.String("key", code.String()), zap.String("box", d.boxAddress), zap.Error(err))
	if d.notifier != nil {
		d.notifier.Notify(Notification{
			Title:   d.title,
			Message: DescribeError(err),
			Haptic:  true,
		})
	}
}

// InFlight returns the number of commands still waiting for a response.
func (d *Dispatcher) InFlight() int64 {
	return d.inFlight.Load()
}

// Close cancels every in-flight command and waits for their goroutines. Call on the main loop
// or after it has stopped; later Sends are no-ops.
func (d *Dispatcher) Close() {
	d.closed = true
	d.cancel()
	d.wg.Wait()
}

// DescribeError turns a transport error into a short message for the user.
func DescribeError(err error) string {
	if err == nil {
		return ""
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "The request to the set-top box timed out."
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return "The set-top box refused the connection."
	}
	if errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return "The set-top box is not reachable on this network."
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return fmt.Sprintf("Could not resolve %s.", dnsErr.Name)
	}
	return fmt.Sprintf("Could not reach the set-top box: %v", err)
}
