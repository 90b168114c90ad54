package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// HTTPHandle calls an HTTP provider bound by Orchestrate.
type HTTPHandle struct {
	// BaseURL is scheme://address[:port]/serviceUri.
	BaseURL string
	// Interface is the interface name the handle was bound through.
	Interface string
	// Token is the orchestrator's authorization token for Interface, if any.
	// It is sent as the token query parameter.
	Token string

	client *http.Client
}

// Client returns the http.Client the handle sends through.
func (h *HTTPHandle) Client() *http.Client {
	return h.client
}

// URL joins path onto BaseURL.
func (h *HTTPHandle) URL(path string) string {
	target := strings.TrimRight(h.BaseURL, "/")
	if path != "" {
		target += "/" + strings.TrimLeft(path, "/")
	}
	return target
}

// Call makes a JSON request to the provider.
//
//	var reading Reading
//	err := h.Call(ctx, http.MethodGet, "", nil, &reading)
//
// reqBody and respBody are JSON-encoded/decoded automatically. Pass nil for
// either when not needed.
func (h *HTTPHandle) Call(ctx context.Context, method, path string, reqBody, respBody any) error {
	var raw json.RawMessage
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		raw = b
	}

	respBytes, err := h.CallRaw(ctx, method, path, raw)
	if err != nil {
		return err
	}
	if respBody != nil && len(respBytes) > 0 {
		if err := json.Unmarshal(respBytes, respBody); err != nil {
			return fmt.Errorf("decode provider response: %w", err)
		}
	}
	return nil
}

// CallRaw is like Call but accepts and returns raw JSON bytes.
func (h *HTTPHandle) CallRaw(ctx context.Context, method, path string, body json.RawMessage) (json.RawMessage, error) {
	target := h.URL(path)
	if h.Token != "" {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + "token=" + url.QueryEscape(h.Token)
	}

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("build provider request: %w", err)
	}
	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call provider: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read provider response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, &StatusError{Op: "call_provider", StatusCode: resp.StatusCode, Body: string(respBytes)}
	}
	return respBytes, nil
}

// MQTTHandle is a connected MQTT client bound by Orchestrate.
type MQTTHandle struct {
	// Broker is tcp://address:port, or ssl:// in secure mode.
	Broker string
	// ClientID is the requesting system's name.
	ClientID string
	// Interface is the interface name the handle was bound through.
	Interface string

	client  mqtt.Client
	timeout time.Duration
}

// Client returns the underlying paho client.
func (h *MQTTHandle) Client() mqtt.Client {
	return h.client
}

// Publish sends payload to topic and waits for the broker to accept it.
func (h *MQTTHandle) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	ctx, cancel := h.bound(ctx)
	defer cancel()
	if err := waitToken(ctx, h.client.Publish(topic, qos, false, payload)); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers fn for messages on topic.
func (h *MQTTHandle) Subscribe(ctx context.Context, topic string, qos byte, fn func(topic string, payload []byte)) error {
	ctx, cancel := h.bound(ctx)
	defer cancel()
	tok := h.client.Subscribe(topic, qos, func(_ mqtt.Client, m mqtt.Message) {
		fn(m.Topic(), m.Payload())
	})
	if err := waitToken(ctx, tok); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// bound applies the client's request timeout to ctx.
func (h *MQTTHandle) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.timeout)
}

// Close disconnects from the broker.
func (h *MQTTHandle) Close() {
	if h.client.IsConnected() {
		h.client.Disconnect(250)
	}
}
