package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/stb-remote/internal/observability"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// RequestTimeout bounds the control and weather routes. 0 disables.
	RequestTimeout time.Duration
	// WeatherLimiter guards the routes that start provider queries. Nil disables.
	WeatherLimiter *rate.Limiter
	// TestingMode exposes /test.
	TestingMode bool
}

// NewRouter wires the control surface.
func NewRouter(h *Handler, logger *zap.Logger, opts RouterOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	router.HandleFunc("/events", h.GetEvents).Methods("GET")

	control := func(hf http.HandlerFunc) http.Handler {
		if opts.RequestTimeout > 0 {
			return TimeoutMiddleware(opts.RequestTimeout)(hf)
		}
		return hf
	}
	router.Handle("/buttons/{key}", control(h.PostButton)).Methods("POST")
	router.Handle("/gestures/pan", control(h.PostPan)).Methods("POST")
	router.Handle("/gestures/tap", control(h.PostTap)).Methods("POST")
	router.Handle("/gestures/pinch", control(h.PostPinch)).Methods("POST")
	router.Handle("/settings", control(h.GetSettings)).Methods("GET")
	router.Handle("/settings", control(h.PutSettings)).Methods("PUT")
	router.Handle("/lifecycle/{state}", control(h.PostLifecycle)).Methods("POST")
	router.Handle("/status", control(h.GetStatus)).Methods("GET")
	router.Handle("/weather", control(h.GetWeather)).Methods("GET")

	weatherRouter := router.PathPrefix("/weather").Subrouter()
	weatherRouter.Use(RateLimitMiddleware(opts.WeatherLimiter))
	if opts.RequestTimeout > 0 {
		weatherRouter.Use(TimeoutMiddleware(opts.RequestTimeout))
	}
	weatherRouter.HandleFunc("/toggle", h.PostWeatherToggle).Methods("POST")

	if opts.TestingMode {
		logger.Warn("Testing mode enabled; /test endpoint exposed")
		router.HandleFunc("/test", h.GetTestStatus).Methods("GET")
		router.HandleFunc("/test/{action}", h.PostTestAction).Methods("POST")
	}
	return router
}
