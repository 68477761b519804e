package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/kjstillabower/stb-remote/internal/client"
	"github.com/kjstillabower/stb-remote/internal/models"
	"github.com/kjstillabower/stb-remote/internal/observability"
)

type mockProvider struct {
	name    string
	text    string
	err     error
	release chan struct{} // when non-nil, Query blocks until closed or ctx is done

	mu      sync.Mutex
	calls   int
	options models.WeatherOptions
	corrID  string
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Query(ctx context.Context, location models.LocationID, options models.WeatherOptions) (string, error) {
	m.mu.Lock()
	m.calls++
	m.options = options
	m.corrID = observability.CorrelationID(ctx)
	m.mu.Unlock()
	if m.release != nil {
		select {
		case <-m.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.text, m.err
}

// chanPoster delivers posted work to the test goroutine, standing in for the main loop.
type chanPoster struct {
	ch chan func()
}

func newChanPoster() *chanPoster { return &chanPoster{ch: make(chan func(), 8)} }

func (p *chanPoster) Post(fn func()) bool {
	p.ch <- fn
	return true
}

func (p *chanPoster) runOne(t *testing.T) {
	t.Helper()
	select {
	case fn := <-p.ch:
		fn()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for posted completion")
	}
}

func TestWeatherService_Query_BothCallbacks(t *testing.T) {
	aqi := &mockProvider{name: "aqicn", text: "AQI: 87\n"}
	weather := &mockProvider{name: "heweather", text: "sunny\n"}
	poster := newChanPoster()
	s := NewWeatherService(aqi, weather, poster, nil, nil)
	defer s.Close()

	var gotAQI, gotWeather string
	ctx := observability.WithCorrelationID(context.Background(), "corr-7")
	opts := models.WeatherNow | models.WeatherForecast
	err := s.Query(ctx, models.BeijingZhongGuanCun, opts,
		func(text string) { gotAQI = text },
		func(text string) { gotWeather = text },
	)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	poster.runOne(t)
	poster.runOne(t)

	if gotAQI != "AQI: 87\n" {
		t.Errorf("onAQI text = %q", gotAQI)
	}
	if gotWeather != "sunny\n" {
		t.Errorf("onWeather text = %q", gotWeather)
	}
	if weather.options != opts {
		t.Errorf("weather options = %v, want %v", weather.options, opts)
	}
	if aqi.corrID != "corr-7" || weather.corrID != "corr-7" {
		t.Errorf("correlation IDs = %q, %q, want corr-7", aqi.corrID, weather.corrID)
	}
}

func TestWeatherService_Query_IndependentCompletion(t *testing.T) {
	aqi := &mockProvider{name: "aqicn", text: "AQI block\n"}
	weather := &mockProvider{name: "heweather", text: "late\n", release: make(chan struct{})}
	poster := newChanPoster()
	s := NewWeatherService(aqi, weather, poster, nil, nil)
	defer s.Close()

	var order []string
	if err := s.Query(context.Background(), models.QinHuangDaoLuLong, models.WeatherNow,
		func(text string) { order = append(order, "aqi") },
		func(text string) { order = append(order, "weather") },
	); err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	// AQI completes while the weather lookup is still blocked.
	poster.runOne(t)
	if len(order) != 1 || order[0] != "aqi" {
		t.Fatalf("order = %v, want [aqi] before weather finishes", order)
	}
	if got := s.Running(); got != 1 {
		t.Errorf("Running() = %d, want 1", got)
	}

	close(weather.release)
	poster.runOne(t)
	if len(order) != 2 || order[1] != "weather" {
		t.Errorf("order = %v, want [aqi weather]", order)
	}
}

func TestWeatherService_Query_FailureText(t *testing.T) {
	qe := &client.QueryError{Source: "heweather", Text: "Internal Server Error\n", Err: client.ErrUpstreamFailure}
	aqi := &mockProvider{name: "aqicn", err: errors.New("dial tcp: connection refused")}
	weather := &mockProvider{name: "heweather", err: qe}
	poster := newChanPoster()
	s := NewWeatherService(aqi, weather, poster, nil, nil)
	defer s.Close()

	texts := map[string]string{}
	if err := s.Query(context.Background(), models.BeijingGuoFengMeiLun, models.WeatherNow,
		func(text string) { texts["aqi"] = text },
		func(text string) { texts["weather"] = text },
	); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	poster.runOne(t)
	poster.runOne(t)

	if texts["aqi"] != "dial tcp: connection refused" {
		t.Errorf("aqi text = %q", texts["aqi"])
	}
	if texts["weather"] != "Internal Server Error\n" {
		t.Errorf("weather text = %q", texts["weather"])
	}
}

func TestWeatherService_Query_Quota(t *testing.T) {
	aqi := &mockProvider{name: "aqicn"}
	weather := &mockProvider{name: "heweather"}
	poster := newChanPoster()
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	s := NewWeatherService(aqi, weather, poster, limiter, nil)
	defer s.Close()

	if err := s.Query(context.Background(), models.BeijingGuoFengMeiLun, models.WeatherNow, nil, nil); err != nil {
		t.Fatalf("first Query() error = %v", err)
	}
	err := s.Query(context.Background(), models.BeijingGuoFengMeiLun, models.WeatherNow, nil, nil)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Errorf("second Query() error = %v, want ErrQuotaExceeded", err)
	}
}

func TestWeatherService_Close(t *testing.T) {
	aqi := &mockProvider{name: "aqicn", release: make(chan struct{})}
	weather := &mockProvider{name: "heweather", release: make(chan struct{})}
	poster := newChanPoster()
	s := NewWeatherService(aqi, weather, poster, nil, nil)

	called := false
	if err := s.Query(context.Background(), models.BeijingGuoFengMeiLun, models.WeatherNow,
		func(string) { called = true },
		func(string) { called = true },
	); err != nil {
		t.Fatalf("Query() error = %v", err)
	}

	done := make(chan struct{})
	go func() {
		s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not return")
	}

	select {
	case fn := <-poster.ch:
		fn()
	default:
	}
	if called {
		t.Error("callback ran for a canceled lookup")
	}
	if err := s.Query(context.Background(), models.BeijingGuoFengMeiLun, models.WeatherNow, nil, nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Query() after Close error = %v, want ErrClosed", err)
	}
}
