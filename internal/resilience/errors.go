// Package resilience provides retry, circuit breaking and failure
// classification for calls to enrichment sources.
package resilience

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// TransientError marks a source failure worth another attempt. StatusCode
// is the upstream HTTP status when there was one.
type TransientError struct {
	Err        error
	StatusCode int
}

// NewTransientError wraps err as transient.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// FromHTTPStatus wraps err as transient when code is a retryable status and
// returns it unchanged otherwise.
func FromHTTPStatus(err error, code int) error {
	if err == nil || !IsTransientHTTPStatus(code) {
		return err
	}
	return NewTransientError(err, code)
}

// IsTransientHTTPStatus reports whether an upstream status is worth retrying:
// timeouts, rate limits and gateway or server faults.
func IsTransientHTTPStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests,
		http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// droppedConn are socket errors left behind by a peer going away.
var droppedConn = []syscall.Errno{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED}

// Fallback substrings for errors that lost their type crossing a client
// library or a string round-trip through the DLQ.
var transientMessages = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"server closed idle connection",
	"unexpected eof",
}

// IsTransient reports whether err is a passing failure. Caller
// cancellation never is; an expired per-attempt deadline always is.
func IsTransient(err error) bool {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var marked *TransientError
	if errors.As(err, &marked) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	for _, errno := range droppedConn {
		if errors.Is(err, errno) {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
