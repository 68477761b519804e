package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestCategorizeError(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connect: connection refused")}
	tests := []struct {
		name string
		err  error
		want ErrorCategory
	}{
		{"nil", nil, ""},
		{"deadline", context.DeadlineExceeded, ErrorCategoryTimeout},
		{"canceled", context.Canceled, ErrorCategoryCanceled},
		{"wrapped invalid key", fmt.Errorf("heweather: %w", ErrInvalidAPIKey), ErrorCategoryInvalidAPIKey},
		{"status 401", &StatusError{StatusCode: 401}, ErrorCategoryInvalidAPIKey},
		{"status 404", &StatusError{StatusCode: 404}, ErrorCategoryLocationNotFound},
		{"status 429", &StatusError{StatusCode: 429}, ErrorCategoryRateLimited},
		{"status 502", &StatusError{StatusCode: 502}, ErrorCategoryUpstream5xx},
		{"invalid body", fmt.Errorf("%w: unexpected end of JSON input", ErrInvalidResponse), ErrorCategoryParsing},
		{"schema", fmt.Errorf("%w: rxs.ver", ErrUnexpectedSchema), ErrorCategorySchema},
		{"query error keeps cause", &QueryError{Source: "aqi", Text: "Not Found", Err: &StatusError{StatusCode: 404}}, ErrorCategoryLocationNotFound},
		{"dial refused", &url.Error{Op: "Get", URL: "http://api.waqi.info", Err: refused}, ErrorCategoryNetwork},
		{"net timeout", &url.Error{Op: "Get", URL: "http://api.waqi.info", Err: timeoutErr{}}, ErrorCategoryTimeout},
		{"timeout in message", errors.New("read: timeout"), ErrorCategoryTimeout},
		{"unknown", errors.New("something else"), ErrorCategoryUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CategorizeError(tt.err); got != tt.want {
				t.Errorf("CategorizeError(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
