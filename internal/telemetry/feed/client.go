package feed

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/dht-telemetry/internal/telemetry"
)

const (
	defaultTimeout      = 10 * time.Second
	defaultMaxBodyBytes = 32 << 20
)

// Config describes the upstream endpoint.
type Config struct {
	URL     string
	Timeout time.Duration
	// InsecureSkipVerify accepts self-signed or otherwise untrusted server certificates.
	// The sensor API is known to use one, so deployments normally leave this on.
	InsecureSkipVerify bool
	// MaxBodyBytes caps the response body. Larger bodies fail the fetch.
	MaxBodyBytes int64
}

// Client implements the telemetry.Feed interface over HTTPS.
type Client struct {
	url      string
	insecure bool
	maxBody  int64
	http     *http.Client
	circuit  *gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// New creates a Client with its own transport so the TLS decision stays local to it.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // explicit opt-in, see Config
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sensor-feed",
		MaxRequests: 1,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		url:      cfg.URL,
		insecure: cfg.InsecureSkipVerify,
		maxBody:  maxBody,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		circuit: cb,
		logger:  zap.L(),
	}
}

// InsecureTLS reports whether certificate verification is disabled.
func (c *Client) InsecureTLS() bool {
	return c.insecure
}

// Fetch issues a single GET against the upstream. It does not retry.
// A body that is not a JSON array, or an empty array, yields telemetry.ErrEmptyUpstream.
// Array elements that are not objects come back flagged as Malformed.
func (c *Client) Fetch(ctx context.Context) ([]telemetry.RawReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		c.logger.Warn("upstream body is not a JSON array", zap.Error(err))
		return nil, telemetry.ErrEmptyUpstream
	}
	if len(items) == 0 {
		return nil, telemetry.ErrEmptyUpstream
	}

	raws := make([]telemetry.RawReading, 0, len(items))
	for _, item := range items {
		var raw telemetry.RawReading
		if err := json.Unmarshal(item, &raw); err != nil {
			raw = telemetry.RawReading{Malformed: true}
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

// do executes req behind the circuit breaker and returns the response body.
func (c *Client) do(req *http.Request) ([]byte, error) {
	result, err := c.circuit.Execute(func() (interface{}, error) {
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", telemetry.ErrTransport, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, c.maxBody))
			return nil, &telemetry.UpstreamError{StatusCode: resp.StatusCode}
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
		if err != nil {
			return nil, fmt.Errorf("%w: read body: %w", telemetry.ErrTransport, err)
		}
		if int64(len(body)) > c.maxBody {
			return nil, fmt.Errorf("%w: response exceeds %d bytes", telemetry.ErrTransport, c.maxBody)
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit breaker open: %w", telemetry.ErrUpstreamUnavailable, err)
		}
		return nil, err
	}

	body, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from circuit breaker")
	}
	return body, nil
}
