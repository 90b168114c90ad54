// Package health waits for Arrowhead core services to come up.
//
// Every core service exposes GET <base>/echo/, answering 200 once it is ready
// to serve. A Prober polls that endpoint at a fixed interval until it
// answers, the context is cancelled, or the context deadline is reached.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vtt-om/arrowhead-client-go/internal/metrics"
)

// Config holds prober configuration.
type Config struct {
	RetryInterval time.Duration
	ProbeTimeout  time.Duration
}

// Waiter paces retries between probes. *rate.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Prober polls echo endpoints.
type Prober struct {
	httpClient *http.Client
	cfg        Config
	newWaiter  func() Waiter
	logger     *zap.Logger
}

// NewProber creates a Prober that sends its probes through httpClient, so a
// secure system probes with its own certificate.
func NewProber(httpClient *http.Client, cfg Config, logger *zap.Logger) *Prober {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 10 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Prober{
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger,
	}
	p.newWaiter = p.intervalLimiter
	return p
}

// SetWaiter replaces the default interval limiter. Each WaitUntilAvailable
// call asks fn for a fresh Waiter.
func (p *Prober) SetWaiter(fn func() Waiter) {
	p.newWaiter = fn
}

// Config returns the effective configuration.
func (p *Prober) Config() Config {
	return p.cfg
}

func (p *Prober) intervalLimiter() Waiter {
	l := rate.NewLimiter(rate.Every(p.cfg.RetryInterval), 1)
	// Spend the initial burst so the first retry waits a full interval.
	l.Allow()
	return l
}

// EchoURL returns the echo endpoint of a core service base URL.
func EchoURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/echo/"
}

// WaitUntilAvailable blocks until GET baseURL/echo/ answers 200. Connection
// failures and any other status are logged and retried after RetryInterval.
// It returns an error only when ctx ends first.
func (p *Prober) WaitUntilAvailable(ctx context.Context, baseURL string) error {
	target := EchoURL(baseURL)
	waiter := p.newWaiter()

	for attempt := 1; ; attempt++ {
		status, err := p.probe(ctx, target)
		ok := err == nil && status == http.StatusOK
		metrics.RecordProbe(ok)
		if ok {
			p.logger.Info("core service available", zap.String("url", baseURL), zap.Int("attempts", attempt))
			return nil
		}

		if err != nil {
			p.logger.Info("core service not available",
				zap.String("url", baseURL),
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", p.cfg.RetryInterval),
				zap.Error(err),
			)
		} else {
			p.logger.Info("core service not ready",
				zap.String("url", baseURL),
				zap.Int("attempt", attempt),
				zap.Int("status", status),
				zap.Duration("retry_in", p.cfg.RetryInterval),
			)
		}

		if err := waiter.Wait(ctx); err != nil {
			if ctx.Err() == nil {
				// The limiter refuses to sleep past the deadline.
				err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
			}
			return fmt.Errorf("echo %s: %w", target, err)
		}
	}
}

// probe issues a single echo request and returns its status code.
func (p *Prober) probe(ctx context.Context, target string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
	p.logger.Debug("echo response", zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
	return resp.StatusCode, nil
}
