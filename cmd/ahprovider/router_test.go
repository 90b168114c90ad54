package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vtt-om/arrowhead-client-go/pkg/config"
)

func testConfig(t *testing.T, rps float64, burst int) *config.Config {
	t.Helper()
	cfg, err := config.Parse(strings.NewReader(`{
	  "system": {"systemName": "thermometer", "address": "127.0.0.1", "port": 8080},
	  "serviceRegistryUrl": "http://127.0.0.1:8443/serviceregistry/",
	  "services": [
	    {"serviceDefinition": "temperature", "serviceUri": "temperature"},
	    {"serviceDefinition": "humidity", "serviceUri": "/sensors/humidity/"}
	  ],
	  "provider": {"corsOrigins": ["http://localhost:3000"]}
	}`))
	require.NoError(t, err)
	cfg.Provider.RateLimitRPS = rps
	cfg.Provider.RateLimitBurst = burst
	return cfg
}

func mustRouter(t *testing.T, ctx context.Context, cfg *config.Config, secure bool) http.Handler {
	t.Helper()
	r, err := newRouter(ctx, cfg, secure, zap.NewNop())
	require.NoError(t, err)
	return r
}

func serve(t *testing.T, h http.Handler, method, path string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_servesConfiguredServices(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := mustRouter(t, ctx, testConfig(t, 0, 0), false)

	w := serve(t, r, http.MethodGet, "/temperature", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reply serviceReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "temperature", reply.Service)
	assert.Equal(t, "thermometer", reply.System)
	assert.Equal(t, http.MethodGet, reply.Method)

	w = serve(t, r, http.MethodPost, "/sensors/humidity", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "humidity", reply.Service)

	assert.Equal(t, http.StatusNotFound, serve(t, r, http.MethodGet, "/pressure", nil).Code)
}

func TestRouter_echoAndMetrics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := mustRouter(t, ctx, testConfig(t, 0, 0), false)

	w := serve(t, r, http.MethodGet, "/echo", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Got it!", w.Body.String())

	serve(t, r, http.MethodGet, "/temperature", nil)
	w = serve(t, r, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ah_provider_requests_total")
}

func TestRouter_cors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := mustRouter(t, ctx, testConfig(t, 0, 0), false)

	w := serve(t, r, http.MethodGet, "/temperature", map[string]string{"Origin": "http://localhost:3000"})
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(t, r, http.MethodGet, "/temperature", map[string]string{"Origin": "http://evil.example"})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouter_rateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := mustRouter(t, ctx, testConfig(t, 0.001, 2), false)

	assert.Equal(t, http.StatusOK, serve(t, r, http.MethodGet, "/temperature", nil).Code)
	assert.Equal(t, http.StatusOK, serve(t, r, http.MethodGet, "/temperature", nil).Code)
	w := serve(t, r, http.MethodGet, "/temperature", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// Echo and metrics sit outside the limited group.
	assert.Equal(t, http.StatusOK, serve(t, r, http.MethodGet, "/echo", nil).Code)
}

func TestRouter_secureRequiresConsumerCert(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := mustRouter(t, ctx, testConfig(t, 0, 0), true)

	assert.Equal(t, http.StatusUnauthorized, serve(t, r, http.MethodGet, "/temperature", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/temperature", nil)
	req.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{
		{Subject: pkix.Name{CommonName: "dashboard.testcloud.aitia.arrowhead.eu"}},
	}}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var reply serviceReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, "dashboard", reply.Consumer)

	// Echo stays open for core-service probes.
	assert.Equal(t, http.StatusOK, serve(t, r, http.MethodGet, "/echo", nil).Code)
}

func TestRouter_rejectsConflictingServicePaths(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cases := map[string][]config.Service{
		"echo":      {{ServiceDefinition: "ping", ServiceURI: "echo"}},
		"metrics":   {{ServiceDefinition: "stats", ServiceURI: "/metrics/"}},
		"duplicate": {{ServiceDefinition: "a", ServiceURI: "shared"}, {ServiceDefinition: "b", ServiceURI: "/shared"}},
	}
	for name, services := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig(t, 0, 0)
			cfg.Services = services

			var r http.Handler
			var err error
			require.NotPanics(t, func() { r, err = newRouter(ctx, cfg, false, zap.NewNop()) })
			assert.Nil(t, r)
			var cerr *config.Error
			require.ErrorAs(t, err, &cerr)
			assert.ErrorIs(t, err, config.ErrInvalid)
		})
	}
}

func TestRouter_rateLimitPerConsumerCert(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := mustRouter(t, ctx, testConfig(t, 0.001, 1), true)

	// Both consumers share one IP; each has its own bucket.
	call := func(cn string) int {
		req := httptest.NewRequest(http.MethodGet, "/temperature", nil)
		req.TLS = &tls.ConnectionState{PeerCertificates: []*x509.Certificate{
			{Subject: pkix.Name{CommonName: cn}},
		}}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
	assert.Equal(t, http.StatusOK, call("dashboard.testcloud"))
	assert.Equal(t, http.StatusTooManyRequests, call("dashboard.testcloud"))
	assert.Equal(t, http.StatusOK, call("logger.testcloud"))
}

func TestConsumerLimits_evictIdle(t *testing.T) {
	l := newConsumerLimits(config.Provider{RateLimitRPS: 1, RateLimitBurst: 1})
	now := time.Now()
	assert.True(t, l.allow("old", now.Add(-time.Hour)))
	assert.True(t, l.allow("fresh", now))

	l.evictIdle(now.Add(-consumerIdleTTL))
	assert.NotContains(t, l.buckets, "old")
	assert.Contains(t, l.buckets, "fresh")
}
