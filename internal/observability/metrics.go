package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/stb-remote/internal/traffic"
)

var (
	registry *prometheus.Registry

	// Control-surface request rate. Watch for: sudden drops (front-end disconnected).
	HTTPRequestsTotal *prometheus.CounterVec

	// Control-surface latency per request. Button presses should stay well under the box timeout.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent control-surface requests.
	HTTPRequestsInFlight prometheus.Gauge

	// Box commands by key and result (sent, failed, dropped_network). Watch for: failed spikes (box off or IP changed).
	BoxCommandsTotal *prometheus.CounterVec

	// Box command round-trip latency. The request timeout caps this at about one second.
	BoxCommandDuration *prometheus.HistogramVec

	// Box commands currently waiting for a response. No backpressure: a long press can pile these up.
	BoxCommandsInFlight prometheus.Gauge

	// Weather provider calls by source and status label.
	WeatherAPICallsTotal *prometheus.CounterVec

	// Weather provider latency by source and status label.
	WeatherAPIDuration *prometheus.HistogramVec

	// Weather provider failures by source and error category.
	WeatherAPIErrorsTotal *prometheus.CounterVec

	// Weather reports requested, per location.
	WeatherQueriesTotal *prometheus.CounterVec

	// Provider lookups started while an earlier lookup for the same source and location was still running.
	// Watch for: steady growth (front-end toggling the report faster than the providers answer).
	WeatherQueryOverlapTotal *prometheus.CounterVec

	// Gesture events by kind (pan, repeat, tap, pinch, suppressed).
	GestureEventsTotal *prometheus.CounterVec

	// Network path: 0 not reachable, 1 wifi, 2 cellular.
	NetworkStatus prometheus.Gauge

	// UI events dropped because a subscriber was not keeping up.
	EventsDroppedTotal prometheus.Counter

	// Rate limit denials on the weather route.
	RateLimitDeniedTotal prometheus.Counter

	commandWindowGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of control-surface HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "Control-surface request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of control-surface requests currently being served",
		},
	)
	BoxCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxCommandsTotal",
			Help: "Remote-control commands by key and result (sent, failed, dropped_network)",
		},
		[]string{"key", "result"},
	)
	BoxCommandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "boxCommandDurationSeconds",
			Help:    "Set-top box command round-trip latency in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2},
		},
		[]string{"result"},
	)
	BoxCommandsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "boxCommandsInFlight",
			Help: "Remote-control commands awaiting a response",
		},
	)
	WeatherAPICallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiCallsTotal",
			Help: "Total number of weather provider calls",
		},
		[]string{"source", "status"},
	)
	WeatherAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "weatherApiDurationSeconds",
			Help:    "Weather provider latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"source", "status"},
	)
	WeatherAPIErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherApiErrorsTotal",
			Help: "Weather provider failures by error category",
		},
		[]string{"source", "category"},
	)
	WeatherQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueriesTotal",
			Help: "Weather reports requested, by location",
		},
		[]string{"location"},
	)
	WeatherQueryOverlapTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "weatherQueryOverlapTotal",
			Help: "Provider lookups that overlapped a running lookup for the same location",
		},
		[]string{"source"},
	)
	GestureEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gestureEventsTotal",
			Help: "Gesture events by kind",
		},
		[]string{"kind"},
	)
	NetworkStatus = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "networkStatus",
			Help: "Current network path: 0 not reachable, 1 wifi, 2 cellular",
		},
	)
	EventsDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "eventsDroppedTotal",
			Help: "UI events dropped for slow subscribers",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of weather requests denied by rate limiter (429)",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		BoxCommandsTotal, BoxCommandDuration, BoxCommandsInFlight,
		WeatherAPICallsTotal, WeatherAPIDuration, WeatherAPIErrorsTotal,
		WeatherQueriesTotal, WeatherQueryOverlapTotal,
		GestureEventsTotal,
		NetworkStatus,
		EventsDroppedTotal,
		RateLimitDeniedTotal,
	)
}

// RegisterCommandWindowGauges registers gauges over the box command sliding window.
// Call from main after config load with the health window.
func RegisterCommandWindowGauges(window time.Duration) {
	commandWindowGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "boxCommandsInWindow",
					Help: "Box commands (success + failure) in the health window",
				},
				func() float64 {
					_, total := traffic.ErrorRate(window)
					return float64(total)
				},
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "boxCommandFailuresInWindow",
					Help: "Failed box commands in the health window",
				},
				func() float64 {
					failed, _ := traffic.ErrorRate(window)
					return float64(failed)
				},
			),
		)
	})
}

// SetNetworkStatus records the classified network path.
func SetNetworkStatus(status int) {
	NetworkStatus.Set(float64(status))
}

// RecordWeatherQuery records a weather report request for the given location label.
func RecordWeatherQuery(location string) {
	WeatherQueriesTotal.WithLabelValues(location).Inc()
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
