package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/stb-remote/internal/models"
	"github.com/kjstillabower/stb-remote/internal/observability"
)

// Provider is one upstream weather source. Query returns the display text for a location;
// on failure the error carries the text to show instead (see DisplayText).
type Provider interface {
	Name() string
	Query(ctx context.Context, location models.LocationID, options models.WeatherOptions) (string, error)
}

var (
	ErrInvalidAPIKey    = errors.New("invalid API key")
	ErrLocationNotFound = errors.New("location not found")
	ErrUpstreamFailure  = errors.New("upstream failure")
	ErrRateLimited      = errors.New("rate limited")
	ErrInvalidResponse  = errors.New("invalid response body")
	ErrUnexpectedSchema = errors.New("unexpected response schema")
)

// StatusError reports a response other than 200 OK.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// Unwrap maps the status to the sentinel used for error categorization.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrInvalidAPIKey
	case e.StatusCode == http.StatusNotFound:
		return ErrLocationNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return ErrUpstreamFailure
	}
}

// QueryError is a failed query together with the text shown in place of a result.
type QueryError struct {
	Source string
	Text   string
	Err    error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// DisplayText returns what the report shows for a failed query.
func DisplayText(err error) string {
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe.Text
	}
	return err.Error()
}

// failureText is the user-facing description of a fetch error.
func failureText(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		if text := http.StatusText(se.StatusCode); text != "" {
			return text
		}
		return se.Error()
	}
	if errors.Is(err, ErrInvalidResponse) {
		return "The data couldn't be read because it isn't in the correct format."
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The request timed out."
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		if ue.Timeout() {
			return "The request timed out."
		}
		return ue.Err.Error()
	}
	return err.Error()
}

// source is the HTTP plumbing shared by the providers.
type source struct {
	name    string
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
}

func newSource(name string, timeout time.Duration, logger *zap.Logger) source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return source{
		name:    name,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("source", name)),
	}
}

// fetch issues one GET and returns the body of a 200 response.
func (s source) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		s.record("error", start, err)
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.record("error", start, err)
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := &StatusError{StatusCode: resp.StatusCode}
		s.record(statusLabel(resp.StatusCode), start, err)
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.record("error", start, err)
		return nil, fmt.Errorf("read response body: %w", err)
	}
	s.record(statusLabel(resp.StatusCode), start, nil)
	return body, nil
}

func (s source) record(status string, start time.Time, err error) {
	observability.WeatherAPICallsTotal.WithLabelValues(s.name, status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(s.name, status).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.WeatherAPIErrorsTotal.WithLabelValues(s.name, string(CategorizeError(err))).Inc()
	}
}

// fail wraps err with its display text; suffix is appended to the text.
func (s source) fail(err error, suffix string) error {
	return &QueryError{Source: s.name, Text: failureText(err) + suffix, Err: err}
}

// rejected handles a body that failed to parse. Schema violations are logged and yield an
// empty result; an undecodable body becomes a query error.
func (s source) rejected(err error, suffix string) error {
	observability.WeatherAPIErrorsTotal.WithLabelValues(s.name, string(CategorizeError(err))).Inc()
	if errors.Is(err, ErrUnexpectedSchema) {
		s.logger.Warn("discarding response", zap.Error(err))
		return nil
	}
	return s.fail(err, suffix)
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
