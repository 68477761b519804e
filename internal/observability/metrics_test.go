package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestMetrics_Usable verifies that all Prometheus metrics can be used without
// panic, ensuring label dimensions match usage across remote, client, gesture and http packages.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("POST", "/buttons/{key}", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("POST", "/buttons/{key}").Observe(0.01)
	BoxCommandsTotal.WithLabelValues("ok", "sent").Inc()
	BoxCommandDuration.WithLabelValues("sent").Observe(0.05)
	WeatherAPICallsTotal.WithLabelValues("aqicn", "success").Inc()
	WeatherAPIDuration.WithLabelValues("heweather", "server_error").Observe(0.3)
	WeatherAPIErrorsTotal.WithLabelValues("heweather", "timeout").Inc()
	GestureEventsTotal.WithLabelValues("pan").Inc()
	EventsDroppedTotal.Inc()
}

func TestRecordWeatherQuery(t *testing.T) {
	before := testutil.ToFloat64(WeatherQueriesTotal.WithLabelValues("beijing_zhongguancun"))
	RecordWeatherQuery("beijing_zhongguancun")
	after := testutil.ToFloat64(WeatherQueriesTotal.WithLabelValues("beijing_zhongguancun"))
	if after != before+1 {
		t.Errorf("weatherQueriesTotal = %v, want %v", after, before+1)
	}
}

func TestSetNetworkStatus(t *testing.T) {
	SetNetworkStatus(2)
	if got := testutil.ToFloat64(NetworkStatus); got != 2 {
		t.Errorf("networkStatus = %v, want 2", got)
	}
	SetNetworkStatus(1)
}

// TestMetricsHandler_ServesPrometheusFormat verifies that MetricsHandler serves
// Prometheus text exposition format with correct HTTP status and metric output.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	RegisterCommandWindowGauges(60_000_000_000)
	HTTPRequestsTotal.WithLabelValues("GET", "/health", "2xx").Inc()
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
	if !strings.Contains(body, "boxCommandsInWindow") {
		t.Error("MetricsHandler response should contain command window gauges")
	}
}
