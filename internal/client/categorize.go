package client

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorCategory labels a failed weather lookup in weatherApiErrorsTotal.
type ErrorCategory string

const (
	ErrorCategoryTimeout          ErrorCategory = "timeout"
	ErrorCategoryCanceled         ErrorCategory = "canceled"
	ErrorCategoryNetwork          ErrorCategory = "network"
	ErrorCategoryInvalidAPIKey    ErrorCategory = "invalid_api_key"
	ErrorCategoryLocationNotFound ErrorCategory = "location_not_found"
	ErrorCategoryRateLimited      ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx      ErrorCategory = "upstream_5xx"
	ErrorCategoryParsing          ErrorCategory = "parsing"
	ErrorCategorySchema           ErrorCategory = "schema"
	ErrorCategoryUnknown          ErrorCategory = "unknown"
)

var sentinelCategories = []struct {
	err      error
	category ErrorCategory
}{
	{ErrInvalidAPIKey, ErrorCategoryInvalidAPIKey},
	{ErrLocationNotFound, ErrorCategoryLocationNotFound},
	{ErrRateLimited, ErrorCategoryRateLimited},
	{ErrUpstreamFailure, ErrorCategoryUpstream5xx},
	{ErrInvalidResponse, ErrorCategoryParsing},
	{ErrUnexpectedSchema, ErrorCategorySchema},
}

// CategorizeError maps an error to a stable ErrorCategory. Nil maps to "".
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCategoryTimeout
	}
	// lookups are canceled when the service closes
	if errors.Is(err, context.Canceled) {
		return ErrorCategoryCanceled
	}
	for _, s := range sentinelCategories {
		if errors.Is(err, s.err) {
			return s.category
		}
	}

	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return ErrorCategoryTimeout
		}
		return ErrorCategoryNetwork
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "timeout"):
		return ErrorCategoryTimeout
	case strings.Contains(msg, "connection"), strings.Contains(msg, "no such host"):
		return ErrorCategoryNetwork
	case strings.Contains(msg, "unmarshal"), strings.Contains(msg, "invalid character"):
		return ErrorCategoryParsing
	}
	return ErrorCategoryUnknown
}
