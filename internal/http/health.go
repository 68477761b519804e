package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/stb-remote/internal/lifecycle"
	"github.com/kjstillabower/stb-remote/internal/reachability"
	"github.com/kjstillabower/stb-remote/internal/traffic"
)

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["box"] = "unhealthy"
	} else {
		checks["box"] = "healthy"
	}
	if h.deps.Network != nil {
		checks["network"] = h.deps.Network.Current().String()
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "stb-remote",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.statusCode)
	_ = json.NewEncoder(w).Encode(resp)
}

// computeHealthStatus evaluates conditions in priority order:
// shutting-down > degraded > unreachable > healthy.
// Unreachable is informational: the daemon works, but box commands are being dropped.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig != nil && h.healthConfig.Window > 0 && h.healthConfig.DegradedErrorPct > 0 {
		failed, total := traffic.ErrorRate(h.healthConfig.Window)
		if total > 0 {
			pct := float64(failed) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "box_error_rate"}
			}
		}
	}
	if h.deps.Network != nil {
		if status := h.deps.Network.Current(); status != reachability.WiFi {
			return healthResult{"unreachable", http.StatusOK, "network_" + status.String()}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

func (h *Handler) window() time.Duration {
	if h.healthConfig != nil && h.healthConfig.Window > 0 {
		return h.healthConfig.Window
	}
	return 60 * time.Second
}

// GetTestStatus handles GET /test. Returns the recorded command outcomes.
func (h *Handler) GetTestStatus(w http.ResponseWriter, r *http.Request) {
	window := h.window()
	failed, total := traffic.ErrorRate(window)

	cfg := make(map[string]interface{})
	if h.healthConfig != nil {
		cfg["rate_limit_rps"] = h.healthConfig.RateLimitRPS
		cfg["rate_limit_burst"] = h.healthConfig.RateLimitBurst
		cfg["degraded_error_pct"] = h.healthConfig.DegradedErrorPct
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"commands_in_window":         total,
		"failed_commands_in_window":  failed,
		"dropped_commands_in_window": traffic.Count(traffic.Dropped, window),
		"denied_requests_in_window":  traffic.Count(traffic.Denied, window),
		"window_length":              window.String(),
		"state":                      h.computeHealthStatus().status,
		"config":                     cfg,
	})
}

// PostTestAction handles POST /test/{action} for load, error, reset and shutdown.
func (h *Handler) PostTestAction(w http.ResponseWriter, r *http.Request) {
	action := mux.Vars(r)["action"]
	switch action {
	case "load":
		h.postTestRecord(w, r, traffic.Sent, 10)
	case "error":
		h.postTestRecord(w, r, traffic.Failed, 1)
	case "reset":
		traffic.Reset()
		lifecycle.SetShuttingDown(false)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      true,
			"action":  "reset",
			"message": "All simulated state cleared",
		})
	case "shutdown":
		lifecycle.SetShuttingDown(true)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":      true,
			"action":  "shutdown",
			"message": "Shutting-down flag set",
		})
	default:
		writeError(w, r, http.StatusNotFound, "UNKNOWN_ACTION", "unknown test action: "+action)
	}
}

// postTestRecord records count simulated box command outcomes and returns the resulting state.
func (h *Handler) postTestRecord(w http.ResponseWriter, r *http.Request, o traffic.Outcome, defaultCount int) {
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Count <= 0 {
		body.Count = defaultCount
	}
	for i := 0; i < body.Count; i++ {
		traffic.Record(o)
	}
	failed, total := traffic.ErrorRate(h.window())
	pct := 0
	if total > 0 {
		pct = failed * 100 / total
	}
	action := "load"
	if o == traffic.Failed {
		action = "error"
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":             true,
		"action":         action,
		"message":        "Recorded " + strconv.Itoa(body.Count) + " " + action + " events",
		"state":          h.computeHealthStatus().status,
		"error_rate_pct": pct,
	})
}
