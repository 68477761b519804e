// Package service combines the weather providers into one report query.
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/stb-remote/internal/client"
	"github.com/kjstillabower/stb-remote/internal/mainloop"
	"github.com/kjstillabower/stb-remote/internal/models"
	"github.com/kjstillabower/stb-remote/internal/observability"
)

var (
	ErrClosed        = errors.New("weather service closed")
	ErrQuotaExceeded = errors.New("weather query quota exceeded")
)

// WeatherService runs the air-quality and detailed-weather lookups of a report. The two lookups
// are independent: neither waits for the other, and each completion is delivered on the main
// loop as soon as it arrives.
type WeatherService struct {
	aqi     client.Provider
	weather client.Provider
	poster  mainloop.Poster
	limiter *rate.Limiter
	logger  *zap.Logger
	overlap *overlapTracker

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWeatherService wires the two providers. A nil limiter disables the upstream quota guard.
func NewWeatherService(aqi, weather client.Provider, poster mainloop.Poster, limiter *rate.Limiter, logger *zap.Logger) *WeatherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WeatherService{
		aqi:     aqi,
		weather: weather,
		poster:  poster,
		limiter: limiter,
		logger:  logger,
		overlap: newOverlapTracker(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Query starts both lookups for location and returns immediately. onAQI and onWeather each run
// once on the main loop with the provider's text, or its failure text. ctx supplies the
// correlation ID only; lookups outlive the caller and stop on Close.
func (s *WeatherService) Query(ctx context.Context, location models.LocationID, options models.WeatherOptions, onAQI, onWeather func(string)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.limiter != nil && !s.limiter.Allow() {
		s.logger.Warn("weather query denied by quota", zap.Stringer("location", location))
		return ErrQuotaExceeded
	}

	observability.RecordWeatherQuery(location.String())

	qctx := s.ctx
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		qctx = observability.WithCorrelationID(qctx, corrID)
	}

	s.wg.Add(2)
	go s.lookup(qctx, s.aqi, location, options, onAQI)
	go s.lookup(qctx, s.weather, location, options, onWeather)
	return nil
}

func (s *WeatherService) lookup(ctx context.Context, p client.Provider, location models.LocationID, options models.WeatherOptions, done func(string)) {
	defer s.wg.Done()

	name := p.Name()
	key := name + "/" + location.String()
	logger := s.logger.With(
		zap.String("source", name),
		zap.Stringer("location", location),
	)
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		logger = logger.With(zap.String("correlation_id", corrID))
	}
	if n := s.overlap.Start(key); n > 1 {
		observability.WeatherQueryOverlapTotal.WithLabelValues(name).Inc()
		logger.Debug("lookup overlaps a running one", zap.Int("running", n))
	}
	defer s.overlap.Finish(key)

	start := time.Now()
	text, err := p.Query(ctx, location, options)
	if err != nil {
		if ctx.Err() != nil {
			logger.Debug("lookup canceled", zap.Error(err))
			return
		}
		logger.Warn("lookup failed",
			zap.Error(err),
			zap.String("category", string(client.CategorizeError(err))),
			zap.Duration("duration", time.Since(start)),
		)
		text = client.DisplayText(err)
	} else {
		logger.Debug("lookup finished", zap.Int("bytes", len(text)), zap.Duration("duration", time.Since(start)))
	}

	if done == nil {
		return
	}
	if !s.poster.Post(func() { done(text) }) {
		logger.Debug("main loop stopped, dropping lookup result")
	}
}

// Running returns the number of provider lookups still in progress.
func (s *WeatherService) Running() int {
	return s.overlap.Active()
}

// Close cancels running lookups and waits for them. A lookup canceled this way never calls back.
func (s *WeatherService) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}
