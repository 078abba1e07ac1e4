package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// StatusError is returned when an upstream answers with a non-success status.
type StatusError struct {
	Source     string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Source, e.StatusCode)
}

// ErrorLabel maps an error to a short metrics/log label.
func ErrorLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "circuit_open"
	}
	var status *StatusError
	if errors.As(err, &status) {
		switch status.StatusCode {
		case http.StatusForbidden, http.StatusUnauthorized:
			return "forbidden"
		case http.StatusNotFound:
			return "not_found"
		case http.StatusTooManyRequests:
			return "rate_limited"
		default:
			return "status"
		}
	}
	return "other"
}

// classifyError wraps transport failures and non-success statuses into the
// typed errors above. A nil error with a 2xx status stays nil.
func classifyError(source string, err error, statusCode int) error {
	if err == nil && (statusCode == 0 || isSuccess(statusCode)) {
		return nil
	}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout{Err: err}
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return ErrTimeout{Err: err}
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return ErrConnection{Err: err}
		}
	}

	if statusCode != 0 && !isSuccess(statusCode) {
		return &StatusError{Source: source, StatusCode: statusCode}
	}
	return err
}

func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
