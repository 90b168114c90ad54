package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vtt-om/arrowhead-client-go/internal/metrics"
	"github.com/vtt-om/arrowhead-client-go/pkg/certs"
	"github.com/vtt-om/arrowhead-client-go/pkg/health"
)

// RequestIDHeader carries the per-request correlation ID on core-service calls.
const RequestIDHeader = "X-Request-ID"

// CoreURLs holds the base URLs of the Arrowhead core services. A URL left
// empty disables the operations that need that service.
type CoreURLs struct {
	ServiceRegistry string
	Orchestrator    string
	Authorization   string
}

// Client is an Arrowhead application system: it registers itself and its
// services, asks the orchestrator for providers and holds the handle to the
// provider it is currently bound to.
type Client struct {
	system     System
	urls       CoreURLs
	certs      *certs.Context
	httpClient *http.Client
	timeout    time.Duration
	prober     *health.Prober
	probeCfg   health.Config
	dialMQTT   MQTTDialer
	logger     *zap.Logger

	// current binding, guarded by mu
	mu      sync.Mutex
	current *OrchestrationResult
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithCertificates sets the certificate context. Without it the client runs
// insecure.
func WithCertificates(cc *certs.Context) Option {
	return func(c *Client) error {
		if cc == nil {
			return errors.New("nil certificate context")
		}
		c.certs = cc
		return nil
	}
}

// WithHTTPClient sets a custom http.Client, overriding the one built from the
// certificate context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) error {
		c.logger = l
		return nil
	}
}

// WithTimeout bounds every core-service request and MQTT connect.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.timeout = d
		return nil
	}
}

// WithMQTTDialer replaces the function used to connect MQTT bindings.
func WithMQTTDialer(d MQTTDialer) Option {
	return func(c *Client) error {
		c.dialMQTT = d
		return nil
	}
}

// WithProbeConfig sets the retry interval and per-probe timeout used by
// Bootstrap.
func WithProbeConfig(cfg health.Config) Option {
	return func(c *Client) error {
		c.probeCfg = cfg
		return nil
	}
}

// WithProber replaces the readiness prober used by Bootstrap.
func WithProber(p *health.Prober) Option {
	return func(c *Client) error {
		c.prober = p
		return nil
	}
}

// New creates a Client for system.
//
//	c, err := client.New(
//	    client.System{SystemName: "thermometer", Address: "10.0.0.7", Port: 8080},
//	    client.CoreURLs{
//	        ServiceRegistry: "https://10.0.0.2:8443/serviceregistry/",
//	        Orchestrator:    "https://10.0.0.2:8441/orchestrator/",
//	    },
//	    client.WithCertificates(cc),
//	    client.WithLogger(logger),
//	)
func New(system System, urls CoreURLs, opts ...Option) (*Client, error) {
	if system.SystemName == "" {
		return nil, errors.New("system name is required")
	}
	c := &Client{
		system:   system,
		urls:     urls,
		certs:    certs.Insecure(),
		timeout:  10 * time.Second,
		dialMQTT: DialMQTT,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	if c.httpClient == nil {
		c.httpClient = c.certs.HTTPClient(c.timeout)
	}
	if c.prober == nil {
		c.prober = health.NewProber(c.httpClient, c.probeCfg, c.logger)
	}
	return c, nil
}

// System returns the system identity the client registers and requests as.
func (c *Client) System() System {
	return c.system
}

// Secure reports whether the client holds a complete certificate context.
func (c *Client) Secure() bool {
	return c.certs.Secure()
}

// HTTPClient returns the client used for core services and HTTP bindings.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// WaitUntilAvailable blocks until the core service at baseURL answers its
// echo endpoint or ctx ends.
func (c *Client) WaitUntilAvailable(ctx context.Context, baseURL string) error {
	return c.prober.WaitUntilAvailable(ctx, baseURL)
}

// Bootstrap waits for the service registry (and the orchestrator, when
// configured) to come up and then registers the system.
func (c *Client) Bootstrap(ctx context.Context) error {
	if c.urls.ServiceRegistry == "" {
		return fmt.Errorf("bootstrap: %w: service registry", ErrCoreServiceNotConfigured)
	}
	for _, base := range []string{c.urls.ServiceRegistry, c.urls.Orchestrator} {
		if base == "" {
			continue
		}
		if err := c.WaitUntilAvailable(ctx, base); err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
	}
	return c.RegisterSystem(ctx)
}

// Close releases the current binding.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releaseLocked()
}

// endpoint joins path onto a core-service base URL.
func endpoint(base, service, path string) (string, error) {
	if base == "" {
		return "", fmt.Errorf("%w: %s", ErrCoreServiceNotConfigured, service)
	}
	return strings.TrimRight(base, "/") + "/" + path, nil
}

// send executes a core-service request and returns the status and body
// without judging the status. body, when non-nil, is sent as JSON.
func (c *Client) send(ctx context.Context, op, method, target string, body any) (int, []byte, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("%s: marshal request body: %w", op, err)
		}
		bodyReader = bytes.NewReader(b)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.ObserveRequest(op, 0, time.Since(start))
		c.logger.Warn("core service request failed",
			zap.String("op", op),
			zap.String("url", target),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return 0, nil, fmt.Errorf("%s: HTTP request failed: %w", op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	metrics.ObserveRequest(op, resp.StatusCode, time.Since(start))
	c.logger.Debug("core service response",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("url", target),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
	)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	return resp.StatusCode, respBody, nil
}

// do is send for calls where only 2xx is success. The response is decoded
// into out when out is non-nil and the body is not empty.
func (c *Client) do(ctx context.Context, op, method, target string, body, out any) error {
	status, respBody, err := c.send(ctx, op, method, target, body)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return &StatusError{Op: op, StatusCode: status, Body: string(respBody)}
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}
