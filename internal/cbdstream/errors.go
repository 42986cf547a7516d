package cbdstream

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrAuthExpired marks a bearer token the Dashboard no longer accepts. The
// token must be discarded and reissued; the server's rejection is final even
// when the token is not yet expired by the clock.
var ErrAuthExpired = errors.New("dashboard rejected the access token")

type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "http request failed"
	}
	if e.Status != "" {
		return e.Status
	}
	return fmt.Sprintf("http status %d", e.StatusCode)
}

// Is makes a 401 response match ErrAuthExpired.
func (e *HTTPStatusError) Is(target error) bool {
	return target == ErrAuthExpired && e != nil && e.StatusCode == http.StatusUnauthorized
}

func IsAuthExpired(err error) bool {
	return errors.Is(err, ErrAuthExpired)
}

// TransportError covers everything between the socket and a complete frame:
// refused or reset connections, read timeouts, oversized lines and the peer
// closing the stream.
type TransportError struct {
	Op     string
	Err    error
	Closed bool
}

func (e *TransportError) Error() string {
	if e == nil {
		return "event stream transport error"
	}
	if e.Closed {
		return "event stream closed by peer"
	}
	if e.Err == nil {
		return "event stream " + e.Op + " failed"
	}
	return fmt.Sprintf("event stream %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether reconnecting with the same token may succeed.
// Auth failures are not retryable here; they need a new token.
func Retryable(err error) bool {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500 || statusErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// SubscriptionError is any outcome of the subscription call other than 204.
type SubscriptionError struct {
	StatusCode int
	Status     string
	Payload    string
	Err        error
}

func (e *SubscriptionError) Error() string {
	if e == nil {
		return "subscription failed"
	}
	if e.Err != nil {
		return "subscription failed: " + e.Err.Error()
	}
	msg := "subscription failed: " + e.Status
	if e.Status == "" {
		msg = fmt.Sprintf("subscription failed: http status %d", e.StatusCode)
	}
	if payload := strings.TrimSpace(e.Payload); payload != "" {
		msg += "\n" + payload
	}
	return msg
}

func (e *SubscriptionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
