package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/nghyane/msgproxy/internal/resilience"
	"github.com/tidwall/gjson"
)

// maxErrorBody caps how much of a failed response is kept.
const maxErrorBody = 1 << 20

// StatusError is a non-2xx backend response. Body is surfaced to clients unmodified.
type StatusError struct {
	Code        int
	Body        []byte
	ContentType string
}

func (e *StatusError) Error() string {
	if msg := e.Message(); msg != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Code, msg)
	}
	return "backend returned " + strconv.Itoa(e.Code)
}

// StatusCode implements the interface gin and the API handlers use to pick a status.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// Message extracts a human readable message from a JSON error body when there is one.
func (e *StatusError) Message() string {
	if len(e.Body) == 0 {
		return ""
	}
	if gjson.ValidBytes(e.Body) {
		for _, path := range []string{"error.message", "message", "error", "detail"} {
			if v := gjson.GetBytes(e.Body, path); v.Exists() && v.Type == gjson.String && v.String() != "" {
				return v.String()
			}
		}
	}
	const max = 256
	if len(e.Body) > max {
		return string(e.Body[:max]) + "..."
	}
	return string(e.Body)
}

func newStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{
		Code:        resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}
}

// IsRetryable reports whether a failed backend call may succeed if repeated:
// transport errors, 408, 429, and 5xx other than 501.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, resilience.ErrBreakerOpen) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusRequestTimeout, se.Code == http.StatusTooManyRequests:
			return true
		case se.Code == http.StatusNotImplemented:
			return false
		default:
			return se.Code >= 500
		}
	}
	return true
}

// countsAgainstBreaker reports whether err indicates an unhealthy backend.
// Client mistakes and cancellations do not.
func countsAgainstBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	return true
}

// StatusOf returns the HTTP status to report for a backend error.
func StatusOf(err error) int {
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return se.Code
	case errors.Is(err, resilience.ErrBreakerOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrStreamIdle):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
