package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/stb-remote/internal/client"
	"github.com/kjstillabower/stb-remote/internal/config"
	"github.com/kjstillabower/stb-remote/internal/controller"
	"github.com/kjstillabower/stb-remote/internal/events"
	httphandler "github.com/kjstillabower/stb-remote/internal/http"
	"github.com/kjstillabower/stb-remote/internal/lifecycle"
	"github.com/kjstillabower/stb-remote/internal/mainloop"
	"github.com/kjstillabower/stb-remote/internal/observability"
	"github.com/kjstillabower/stb-remote/internal/reachability"
	"github.com/kjstillabower/stb-remote/internal/remote"
	"github.com/kjstillabower/stb-remote/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = observability.FlushLogs(logger) }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	loop := mainloop.New(cfg.LoopQueueSize, logger)
	monitor := reachability.NewMonitor(reachability.NewInterfaceProber(cfg.CellularPrefixes), logger)
	hub := events.NewHub(cfg.EventBuffer)

	// the dispatcher reports failures to the controller, which does not exist yet
	var ctrl *controller.Controller
	disp := remote.NewDispatcher(remote.Config{
		BoxAddress: cfg.Settings.BoxAddress,
		Port:       cfg.BoxPort,
		Timeout:    cfg.CommandTimeout,
	}, monitor, loop, remote.NotifierFunc(func(n remote.Notification) { ctrl.Notify(n) }), logger)

	weatherService := service.NewWeatherService(
		client.NewAQIClient(cfg.AQIURL, cfg.WeatherTimeout, logger),
		client.NewHeWeatherClient(cfg.HeWeatherAPIKey, cfg.HeWeatherURL, cfg.WeatherTimeout, logger),
		loop,
		quotaLimiter(cfg.WeatherQuotaPerDay, cfg.WeatherQuotaBurst),
		logger,
	)

	ctrl = controller.New(disp, weatherService, hub, loop, controller.Options{
		GestureAreaTop: cfg.GestureAreaTop,
		RepeatDelay:    cfg.RepeatDelay,
		RepeatInterval: cfg.RepeatInterval,
		Settings:       cfg.Settings,
	}, logger)
	logger.Info("remote ready",
		zap.String("box_address", disp.BoxAddress()),
		zap.Int("box_port", cfg.BoxPort),
		zap.Stringer("network", monitor.Current()),
	)

	loopCtx, stopLoop := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		_ = loop.Run(loopCtx)
	}()

	cancelNetwork := monitor.Subscribe(func(s reachability.Status) {
		loop.Post(func() { ctrl.NetworkChanged(s) })
	})
	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	monitorDone := make(chan struct{})
	go func() {
		defer close(monitorDone)
		if err := monitor.Run(monitorCtx, cfg.ReachabilityInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("reachability monitor stopped", zap.Error(err))
		}
	}()

	healthConfig := &httphandler.HealthConfig{
		Window:           cfg.HealthWindow,
		DegradedErrorPct: cfg.DegradedErrorPct,
		RateLimitRPS:     cfg.RateLimitRPS,
		RateLimitBurst:   cfg.RateLimitBurst,
		StartTime:        time.Now(),
	}
	handler := httphandler.NewHandler(httphandler.Deps{
		Loop:         loop,
		Controller:   ctrl,
		Network:      monitor,
		Commands:     disp,
		Queries:      weatherService,
		Hub:          hub,
		LoadSettings: config.LoadSettings,
	}, healthConfig, logger, nil)

	observability.RegisterCommandWindowGauges(cfg.HealthWindow)

	router := httphandler.NewRouter(handler, logger, httphandler.RouterOptions{
		RequestTimeout: cfg.RequestTimeout,
		WeatherLimiter: routeLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		TestingMode:    cfg.TestingMode,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for range hup {
			logger.Info("reload requested")
			if err := handler.ReloadSettings(context.Background()); err != nil {
				logger.Warn("settings reload", zap.Error(err))
			}
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	handler.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if err := httphandler.WaitForInFlight(shutdownCtx, 50*time.Millisecond); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
	}

	cancelNetwork()
	stopMonitor()
	<-monitorDone

	stopLoop()
	<-loopDone
	logger.Info("cancelling outstanding work",
		zap.Int64("box_commands", disp.InFlight()),
		zap.Int("weather_lookups", weatherService.Running()),
	)
	disp.Close()
	weatherService.Close()

	logger.Info("shutdown complete")
}

// quotaLimiter spreads perDay provider queries evenly over the day. Nil when perDay is 0.
func quotaLimiter(perDay, burst int) *rate.Limiter {
	if perDay <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(float64(perDay)/(24*time.Hour).Seconds()), burst)
}

// routeLimiter guards the report toggle route. Nil when rps is 0.
func routeLimiter(rps, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
