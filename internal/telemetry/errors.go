package telemetry

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable means the upstream answered with a non-2xx status or
	// the circuit breaker in front of it is open.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrTransport covers network failures, timeouts and TLS failures.
	ErrTransport = errors.New("transport error")
	// ErrEmptyUpstream is not a failure: upstream had nothing to ingest.
	ErrEmptyUpstream = errors.New("upstream returned no records")
	// ErrMalformedRecord marks a single record that could not be normalized.
	ErrMalformedRecord = errors.New("malformed record")
)

// UpstreamError carries the HTTP status of a rejected upstream request.
type UpstreamError struct {
	StatusCode int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: status %d", ErrUpstreamUnavailable, e.StatusCode)
}

func (e *UpstreamError) Unwrap() error {
	return ErrUpstreamUnavailable
}

// Retryable reports whether a cycle that failed with err may be attempted again later.
func Retryable(err error) bool {
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrTransport)
}
