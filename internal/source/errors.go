package source

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable indicates the circuit breaker rejected the call.
	ErrUnavailable = errors.New("log source unavailable")
	// ErrDecode indicates the response body was not the expected JSON.
	ErrDecode = errors.New("decode log source response")
	// ErrNoTime indicates a record carried no usable timestamp.
	ErrNoTime = errors.New("record has no parseable timestamp")
)

// StatusError is returned for non-200 responses.
type StatusError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("log source %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}
