package geocode

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Error kinds returned by a Caller. Every kind below also matches ErrService.
var (
	ErrService                = errors.New("geocode: service error")
	ErrQuery                  = &kindError{msg: "geocode: query rejected"}
	ErrTimedOut               = &kindError{msg: "geocode: timed out"}
	ErrUnavailable            = &kindError{msg: "geocode: service unavailable"}
	ErrAuthentication         = &kindError{msg: "geocode: authentication failed"}
	ErrQuotaExceeded          = &kindError{msg: "geocode: quota exceeded"}
	ErrInsufficientPrivileges = &kindError{msg: "geocode: insufficient privileges"}
	ErrRateLimited            = &kindError{msg: "geocode: rate limited"}
	ErrParse                  = &kindError{msg: "geocode: unparseable response"}
)

type kindError struct {
	msg string
}

func (e *kindError) Error() string { return e.msg }

// Is lets every kind match the ErrService base.
func (e *kindError) Is(target error) bool {
	return target == ErrService
}

// RateLimitedError carries the Retry-After hint of a 429 response.
type RateLimitedError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s (retry after %s)", e.Err.Error(), e.RetryAfter)
	}
	return e.Err.Error()
}

func (e *RateLimitedError) Unwrap() error { return e.Err }

// errorForStatus maps a non-2xx HTTP status to its error kind.
func errorForStatus(code int) error {
	switch code {
	case http.StatusBadRequest,
		http.StatusPreconditionFailed,
		http.StatusRequestEntityTooLarge,
		http.StatusRequestURITooLong:
		return ErrQuery
	case http.StatusUnauthorized, http.StatusProxyAuthRequired:
		return ErrAuthentication
	case http.StatusPaymentRequired:
		return ErrQuotaExceeded
	case http.StatusForbidden:
		return ErrInsufficientPrivileges
	case http.StatusTooManyRequests:
		return ErrRateLimited
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return ErrUnavailable
	case http.StatusGatewayTimeout:
		return ErrTimedOut
	default:
		return ErrService
	}
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// isRetryable reports whether err is a kind worth another attempt.
func isRetryable(err error) bool {
	return errors.Is(err, ErrTimedOut) ||
		errors.Is(err, ErrUnavailable) ||
		errors.Is(err, ErrRateLimited)
}
