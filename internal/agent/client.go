// Package agent is the HTTP client for the diagnostic agent running on a
// managed node. It exposes discovery, device enumeration, image upload,
// firmware update and reset operations.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/andrej220/NTC/internal/lg"
)

// Device is one hardware device reported by the agent's enumeration API.
type Device struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
	Slot string `json:"slot,omitempty"`
}

// Client is the agent surface the workflows depend on. Implementations
// must be safe for concurrent use by independent jobs.
type Client interface {
	RetrySyncDiscovery(ctx context.Context, delay time.Duration, retries int) error
	GetAllDevices(ctx context.Context) ([]Device, error)
	UploadImageFile(ctx context.Context, imageURL, imageName, targetPath string) error
	UpdateFirmware(ctx context.Context, kind, imageName, modeCode, targetPath string) ([]byte, error)
	BMCReset(ctx context.Context, powerCycle bool) error
	WarmReset(ctx context.Context, powerCycle bool) error
}

// TransportError is any failed call to the agent: connection errors,
// non-200 statuses, undecodable payloads.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("agent %s failed: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// ErrDiscoveryExhausted is returned once the discovery retry budget is
// consumed without the agent answering.
var ErrDiscoveryExhausted = errors.New("agent discovery retries exhausted")

const (
	defaultAgentPort = 8086
	defaultTimeout   = 30 * time.Second
)

// HTTPClient talks JSON over HTTP to a single node's agent. Calls go
// through a circuit breaker so a wedged agent stops consuming sockets.
type HTTPClient struct {
	base    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  lg.Logger
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(nodeIP string, logger lg.Logger) *HTTPClient {
	return NewHTTPClientAddr(nodeIP, defaultAgentPort, logger)
}

// NewHTTPClientAddr targets an agent listening on a non-standard port.
func NewHTTPClientAddr(host string, port int, logger lg.Logger) *HTTPClient {
	cbs := gobreaker.Settings{
		Name:        "agent-http",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	}
	return &HTTPClient{
		base:    fmt.Sprintf("http://%s:%d/api", host, port),
		client:  &http.Client{Timeout: defaultTimeout},
		breaker: gobreaker.NewCircuitBreaker(cbs),
		logger:  logger,
	}
}

// RetrySyncDiscovery polls the agent's synchronous discovery endpoint at a
// fixed interval until it answers or retries attempts have been spent.
// The interval is constant, not exponential: the agent either comes up
// within the budget or the node is declared unreachable.
func (c *HTTPClient) RetrySyncDiscovery(ctx context.Context, delay time.Duration, retries int) error {
	if retries < 1 {
		retries = 1
	}
	attempt := 0
	operation := func() error {
		attempt++
		_, err := c.do(ctx, http.MethodPost, "/discovery/sync", nil, nil)
		if err != nil {
			c.logger.Debug("discovery attempt failed",
				lg.Int("attempt", attempt),
				lg.Err(err))
		}
		return err
	}

	// WithMaxRetries counts re-tries, so retries-1 yields exactly
	// `retries` attempts in total.
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(delay), uint64(retries-1)), ctx)
	if err := backoff.Retry(operation, b); err != nil {
		return fmt.Errorf("%w: %d attempts, last error: %v", ErrDiscoveryExhausted, attempt, err)
	}
	return nil
}

func (c *HTTPClient) GetAllDevices(ctx context.Context) ([]Device, error) {
	var payload struct {
		Devices []Device `json:"devices"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/devices", nil, &payload); err != nil {
		return nil, &TransportError{Op: "device enumeration", Err: err}
	}
	return payload.Devices, nil
}

func (c *HTTPClient) UploadImageFile(ctx context.Context, imageURL, imageName, targetPath string) error {
	req := struct {
		URL  string `json:"url"`
		Name string `json:"name"`
		Path string `json:"path"`
	}{imageURL, imageName, targetPath}
	if _, err := c.do(ctx, http.MethodPost, "/upload", req, nil); err != nil {
		return &TransportError{Op: "image upload", Err: err}
	}
	return nil
}

// UpdateFirmware dispatches a firmware update of the given kind ("bmc" or
// "spi") and returns the raw response body for the caller to validate.
func (c *HTTPClient) UpdateFirmware(ctx context.Context, kind, imageName, modeCode, targetPath string) ([]byte, error) {
	req := struct {
		Name string `json:"name"`
		Mode string `json:"mode"`
		Path string `json:"path"`
	}{imageName, modeCode, targetPath}
	raw, err := c.do(ctx, http.MethodPost, "/firmware/"+kind, req, nil)
	if err != nil {
		return nil, &TransportError{Op: kind + " firmware update", Err: err}
	}
	return raw, nil
}

func (c *HTTPClient) BMCReset(ctx context.Context, powerCycle bool) error {
	if err := c.reset(ctx, "/bmc/reset", powerCycle); err != nil {
		return &TransportError{Op: "bmc reset", Err: err}
	}
	return nil
}

func (c *HTTPClient) WarmReset(ctx context.Context, powerCycle bool) error {
	if err := c.reset(ctx, "/reset/warm", powerCycle); err != nil {
		return &TransportError{Op: "warm reset", Err: err}
	}
	return nil
}

func (c *HTTPClient) reset(ctx context.Context, path string, powerCycle bool) error {
	req := struct {
		PowerCycle bool `json:"powerCycle"`
	}{powerCycle}
	_, err := c.do(ctx, http.MethodPost, path, req, nil)
	return err
}

// do performs one request through the circuit breaker. The response body
// is returned raw and, when out is non-nil, also decoded into it.
func (c *HTTPClient) do(ctx context.Context, method, path string, in, out any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.breaker.Execute(func() (any, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("agent returned status %d", resp.StatusCode)
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}

	raw := res.([]byte)
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return raw, nil
}
