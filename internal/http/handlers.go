package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/stb-remote/internal/config"
	"github.com/kjstillabower/stb-remote/internal/controller"
	"github.com/kjstillabower/stb-remote/internal/events"
	"github.com/kjstillabower/stb-remote/internal/lifecycle"
	"github.com/kjstillabower/stb-remote/internal/mainloop"
	"github.com/kjstillabower/stb-remote/internal/reachability"
	"github.com/kjstillabower/stb-remote/internal/remote"
)

// maxBodyBytes bounds gesture and settings payloads.
const maxBodyBytes = 4 << 10

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	// Window is the sliding window over box command outcomes.
	Window time.Duration
	// DegradedErrorPct is the failed share of box commands at which health reports degraded. 0 disables.
	DegradedErrorPct int
	RateLimitRPS     int
	RateLimitBurst   int // 0 when rate limiter disabled
	StartTime        time.Time
}

// Runner executes fn on the main loop and waits for it.
type Runner interface {
	Do(ctx context.Context, fn func()) error
}

// NetworkStatus reports the current network path.
type NetworkStatus interface {
	Current() reachability.Status
}

// CommandCounter reports box commands awaiting a response.
type CommandCounter interface {
	InFlight() int64
}

// QueryCounter reports provider lookups still running.
type QueryCounter interface {
	Running() int
}

// Deps are the components the handlers drive.
type Deps struct {
	Loop       Runner
	Controller *controller.Controller
	Network    NetworkStatus
	Commands   CommandCounter
	Queries    QueryCounter
	Hub        *events.Hub
	// LoadSettings re-reads the user settings for a reload. Nil disables reloading.
	LoadSettings func() (config.Settings, error)
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	deps             Deps
	healthConfig     *HealthConfig
	logger           *zap.Logger
	rateLimiter      *rate.Limiter
	upgrader         websocket.Upgrader
	healthStatusMu   sync.Mutex
	healthStatusPrev string

	closeOnce sync.Once
	closing   chan struct{}
}

// NewHandler returns a new Handler.
func NewHandler(deps Deps, healthConfig *HealthConfig, logger *zap.Logger, rateLimiter *rate.Limiter) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		deps:         deps,
		healthConfig: healthConfig,
		logger:       logger,
		rateLimiter:  rateLimiter,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		closing: make(chan struct{}),
	}
}

// Close ends every open event stream. Hijacked connections are not covered by server shutdown.
func (h *Handler) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// onLoop runs fn on the main loop. Writes a 503 and returns false when the loop is gone or
// the request ended first.
func (h *Handler) onLoop(w http.ResponseWriter, r *http.Request, fn func()) bool {
	err := h.deps.Loop.Do(r.Context(), fn)
	if err == nil {
		return true
	}
	if errors.Is(err, mainloop.ErrStopped) {
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Remote is shutting down")
		return false
	}
	writeError(w, r, http.StatusServiceUnavailable, "TIMEOUT", "Request timed out")
	return false
}

// PostButton handles POST /buttons/{key}.
func (h *Handler) PostButton(w http.ResponseWriter, r *http.Request) {
	code, err := remote.ParseCode(mux.Vars(r)["key"])
	if err != nil || !code.Valid() {
		writeError(w, r, http.StatusBadRequest, "INVALID_KEY", "unknown key: "+mux.Vars(r)["key"])
		return
	}
	var sent bool
	if !h.onLoop(w, r, func() { sent = h.deps.Controller.PressButton(code) }) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":  code.String(),
		"sent": sent,
	})
}

type panRequest struct {
	Phase string  `json:"phase"`
	DX    float64 `json:"dx"`
	DY    float64 `json:"dy"`
}

// PostPan handles POST /gestures/pan. dx and dy are the translation since the drag began.
func (h *Handler) PostPan(w http.ResponseWriter, r *http.Request) {
	var body panRequest
	if !decodeBody(w, r, &body) {
		return
	}
	phase, err := controller.ParsePhase(body.Phase)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PHASE", err.Error())
		return
	}
	var state string
	if !h.onLoop(w, r, func() {
		h.deps.Controller.Pan(phase, body.DX, body.DY)
		state = h.deps.Controller.GestureState().String()
	}) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": state})
}

type tapRequest struct {
	Y    float64 `json:"y"`
	Taps int     `json:"taps"`
}

// PostTap handles POST /gestures/tap. taps defaults to 1.
func (h *Handler) PostTap(w http.ResponseWriter, r *http.Request) {
	var body tapRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Taps == 0 {
		body.Taps = 1
	}
	if body.Taps < 0 {
		writeError(w, r, http.StatusBadRequest, "INVALID_TAPS", "taps must be positive")
		return
	}
	var sent bool
	if !h.onLoop(w, r, func() { sent = h.deps.Controller.Tap(body.Y, body.Taps) }) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sent": sent})
}

type pinchRequest struct {
	Phase string  `json:"phase"`
	Scale float64 `json:"scale"`
}

// PostPinch handles POST /gestures/pinch.
func (h *Handler) PostPinch(w http.ResponseWriter, r *http.Request) {
	var body pinchRequest
	if !decodeBody(w, r, &body) {
		return
	}
	phase, err := controller.ParsePhase(body.Phase)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PHASE", err.Error())
		return
	}
	var sent bool
	if !h.onLoop(w, r, func() { sent = h.deps.Controller.Pinch(phase, body.Scale) }) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sent": sent})
}

// PostWeatherToggle handles POST /weather/toggle. Opening starts a query; the text arrives
// through /events and GET /weather as each provider answers.
func (h *Handler) PostWeatherToggle(w http.ResponseWriter, r *http.Request) {
	// the query outlives this request; only the correlation id is carried over
	ctx := r.Context()
	var snap controller.ReportSnapshot
	if !h.onLoop(w, r, func() {
		h.deps.Controller.ToggleWeather(ctx)
		snap = h.deps.Controller.Report()
	}) {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetWeather handles GET /weather.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	var snap controller.ReportSnapshot
	if !h.onLoop(w, r, func() { snap = h.deps.Controller.Report() }) {
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetSettings handles GET /settings.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	var s config.Settings
	if !h.onLoop(w, r, func() { s = h.deps.Controller.Settings() }) {
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// PutSettings handles PUT /settings. Fields missing from the body keep their current value.
// A rejected box address or location is reported with 422; the other fields still apply.
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var current config.Settings
	if !h.onLoop(w, r, func() { current = h.deps.Controller.Settings() }) {
		return
	}
	if !decodeBody(w, r, &current) {
		return
	}
	var applied config.Settings
	var applyErr error
	if !h.onLoop(w, r, func() {
		applyErr = h.deps.Controller.ApplySettings(current)
		applied = h.deps.Controller.Settings()
	}) {
		return
	}
	if applyErr != nil {
		writeError(w, r, http.StatusUnprocessableEntity, "INVALID_SETTINGS", applyErr.Error())
		return
	}
	writeJSON(w, http.StatusOK, applied)
}

// PostLifecycle handles POST /lifecycle/{state}. Returning to active after leaving it
// reloads the settings.
func (h *Handler) PostLifecycle(w http.ResponseWriter, r *http.Request) {
	state, err := lifecycle.ParseState(mux.Vars(r)["state"])
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_STATE", err.Error())
		return
	}
	reload := lifecycle.Transition(state)
	resp := map[string]interface{}{
		"state":    state.String(),
		"reloaded": false,
	}
	if reload {
		if err := h.ReloadSettings(r.Context()); err != nil {
			loggerFrom(r, h.logger).Warn("settings reload", zap.Error(err))
			resp["reloadError"] = err.Error()
		} else {
			resp["reloaded"] = true
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ReloadSettings re-reads the user settings and applies them on the main loop.
func (h *Handler) ReloadSettings(ctx context.Context) error {
	if h.deps.LoadSettings == nil {
		return nil
	}
	s, err := h.deps.LoadSettings()
	if err != nil {
		return err
	}
	var applyErr error
	if err := h.deps.Loop.Do(ctx, func() { applyErr = h.deps.Controller.ApplySettings(s) }); err != nil {
		return err
	}
	if applyErr == nil {
		h.logger.Info("settings reloaded", zap.String("box_address", s.BoxAddress), zap.Int("location", s.Location))
	}
	return applyErr
}

// GetStatus handles GET /status.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	var (
		boxAddress    string
		gestureState  string
		reportVisible bool
	)
	if !h.onLoop(w, r, func() {
		boxAddress = h.deps.Controller.Settings().BoxAddress
		gestureState = h.deps.Controller.GestureState().String()
		reportVisible = h.deps.Controller.ReportVisible()
	}) {
		return
	}
	resp := map[string]interface{}{
		"boxAddress":    boxAddress,
		"gesture":       gestureState,
		"reportVisible": reportVisible,
		"lifecycle":     lifecycle.Current().String(),
	}
	if h.deps.Network != nil {
		resp["network"] = h.deps.Network.Current().String()
	}
	if h.deps.Commands != nil {
		resp["commandsInFlight"] = h.deps.Commands.InFlight()
	}
	if h.deps.Queries != nil {
		resp["weatherLookupsRunning"] = h.deps.Queries.Running()
	}
	if h.deps.Hub != nil {
		resp["subscribers"] = h.deps.Hub.Subscribers()
	}
	if h.healthConfig != nil && !h.healthConfig.StartTime.IsZero() {
		resp["uptime"] = time.Since(h.healthConfig.StartTime).Truncate(time.Second).String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body is not valid JSON: "+err.Error())
		return false
	}
	return true
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code, message,
// and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": correlationID(r),
		},
	})
}
