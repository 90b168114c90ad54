package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vtt-om/arrowhead-client-go/pkg/client"
)

// ── Stubs ────────────────────────────────────────────────────────────────

// fakeMQTT is a connected mqtt.Client that records disconnects. Methods the
// tests do not need fall through to the nil embedded interface.
type fakeMQTT struct {
	mqtt.Client
	disconnects atomic.Int32
}

func (f *fakeMQTT) IsConnected() bool { return f.disconnects.Load() == 0 }

func (f *fakeMQTT) Disconnect(uint) { f.disconnects.Add(1) }

type dialRecorder struct {
	opts    []*mqtt.ClientOptions
	clients []*fakeMQTT
	err     error
}

func (d *dialRecorder) dial(_ context.Context, opts *mqtt.ClientOptions) (mqtt.Client, error) {
	d.opts = append(d.opts, opts)
	if d.err != nil {
		return nil, d.err
	}
	f := &fakeMQTT{}
	d.clients = append(d.clients, f)
	return f, nil
}

// ── URL construction ─────────────────────────────────────────────────────

func TestServiceURL(t *testing.T) {
	cases := []struct {
		addr   string
		port   int
		uri    string
		secure bool
		want   string
	}{
		{"10.0.0.5", 443, "svc/a", true, "https://10.0.0.5/svc/a"},
		{"10.0.0.5", 8443, "svc/a", true, "https://10.0.0.5:8443/svc/a"},
		{"10.0.0.5", 80, "svc/a", false, "http://10.0.0.5/svc/a"},
		{"10.0.0.5", 443, "svc/a", false, "http://10.0.0.5:443/svc/a"},
		{"10.0.0.5", 9000, "", false, "http://10.0.0.5:9000"},
		{"10.0.0.5", 9000, "/leading", false, "http://10.0.0.5:9000/leading"},
		{"provider.local", 9000, "x", true, "https://provider.local:9000/x"},
		{"::1", 9000, "x", false, "http://[::1]:9000/x"},
		{"::1", 80, "x", false, "http://[::1]/x"},
	}
	for _, tc := range cases {
		p := provider("p", tc.addr, tc.port, tc.uri)
		assert.Equal(t, tc.want, client.ServiceURL(p, tc.secure))
	}
}

func TestBrokerURL(t *testing.T) {
	p := provider("p", "10.0.0.9", 1883, "")
	assert.Equal(t, "tcp://10.0.0.9:1883", client.BrokerURL(p, false))
	assert.Equal(t, "ssl://10.0.0.9:1883", client.BrokerURL(p, true))
}

// ── Binding ──────────────────────────────────────────────────────────────

func TestBind_secureSkipsInsecureMQTT(t *testing.T) {
	s := newCoreStub(t)
	s.on(http.MethodPost, "/orchestrator/orchestration/", orchestrationReply(
		provider("p", "10.0.0.5", 8443, "svc", "HTTP-SECURE-JSON", client.InterfaceMQTTInsecureJSON),
	))
	d := &dialRecorder{}
	c := newClient(t, s, client.WithCertificates(secureCerts(t)), client.WithMQTTDialer(d.dial))

	res, err := c.Orchestrate(context.Background(), "temperature", "")
	require.NoError(t, err)
	require.NotNil(t, res.Binding.HTTP)
	assert.Equal(t, "https://10.0.0.5:8443/svc", res.Binding.HTTP.BaseURL)
	assert.Nil(t, res.Binding.MQTT)
	assert.Empty(t, d.opts)
	assert.Equal(t, []string{"HTTP-SECURE-JSON"}, res.Binding.Interfaces)
}

func TestBind_insecureMQTT(t *testing.T) {
	s := newCoreStub(t)
	s.on(http.MethodPost, "/orchestrator/orchestration/", orchestrationReply(
		provider("broker", "10.0.0.9", 1883, "", client.InterfaceMQTTInsecureJSON),
	))
	d := &dialRecorder{}
	c := newClient(t, s, client.WithMQTTDialer(d.dial))

	res, err := c.Orchestrate(context.Background(), "temperature", client.InterfaceMQTTInsecureJSON)
	require.NoError(t, err)
	require.NotNil(t, res.Binding.MQTT)
	assert.Nil(t, res.Binding.HTTP)

	require.Len(t, d.opts, 1)
	opts := d.opts[0]
	require.Len(t, opts.Servers, 1)
	assert.Equal(t, "tcp://10.0.0.9:1883", opts.Servers[0].String())
	assert.Equal(t, "consumer", opts.ClientID)
	assert.Nil(t, opts.TLSConfig)
	assert.Equal(t, "tcp://10.0.0.9:1883", res.Binding.MQTT.Broker)
	assert.Equal(t, "consumer", res.Binding.MQTT.ClientID)
}

func TestBind_secureMQTTUsesTLS(t *testing.T) {
	s := newCoreStub(t)
	s.on(http.MethodPost, "/orchestrator/orchestration/", orchestrationReply(
		provider("broker", "10.0.0.9", 8883, "", client.InterfaceMQTTSSecureJSON),
	))
	d := &dialRecorder{}
	c := newClient(t, s, client.WithCertificates(secureCerts(t)), client.WithMQTTDialer(d.dial))

	res, err := c.Orchestrate(context.Background(), "temperature", client.InterfaceMQTTSSecureJSON)
	require.NoError(t, err)
	require.NotNil(t, res.Binding.MQTT)
	require.Len(t, d.opts, 1)
	assert.Equal(t, "ssl://10.0.0.9:8883", d.opts[0].Servers[0].String())
	require.NotNil(t, d.opts[0].TLSConfig)
	assert.Len(t, d.opts[0].TLSConfig.Certificates, 1)
	assert.NotNil(t, d.opts[0].TLSConfig.RootCAs)
}

func TestBind_bothFamilies(t *testing.T) {
	s := newCoreStub(t)
	s.on(http.MethodPost, "/orchestrator/orchestration/", orchestrationReply(
		provider("p", "10.0.0.5", 9000, "svc", client.InterfaceHTTPInsecureJSON, client.InterfaceMQTTInsecureJSON),
	))
	d := &dialRecorder{}
	c := newClient(t, s, client.WithMQTTDialer(d.dial))

	res, err := c.Orchestrate(context.Background(), "temperature", "")
	require.NoError(t, err)
	assert.NotNil(t, res.Binding.HTTP)
	assert.NotNil(t, res.Binding.MQTT)
	assert.Equal(t, []string{client.InterfaceHTTPInsecureJSON, client.InterfaceMQTTInsecureJSON}, res.Binding.Interfaces)
}

func TestBind_skipsUnknownAndMalformed(t *testing.T) {
	s := newCoreStub(t)
	s.on(http.MethodPost, "/orchestrator/orchestration/", orchestrationReply(
		provider("p", "10.0.0.5", 9000, "svc", "COAP-INSECURE-JSON", "garbage", "HTTP-INSECURE-XML", client.InterfaceHTTPInsecureJSON),
	))
	c := newClient(t, s)

	res, err := c.Orchestrate(context.Background(), "temperature", "")
	require.NoError(t, err)
	assert.Equal(t, []string{client.InterfaceHTTPInsecureJSON}, res.Binding.Interfaces)
}

func TestBind_replacingDisconnectsPreviousMQTT(t *testing.T) {
	s := newCoreStub(t)
	s.on(http.MethodPost, "/orchestrator/orchestration/", orchestrationReply(
		provider("broker", "10.0.0.9", 1883, "", client.InterfaceMQTTInsecureJSON),
	))
	d := &dialRecorder{}
	c := newClient(t, s, client.WithMQTTDialer(d.dial))

	_, err := c.Orchestrate(context.Background(), "temperature", "")
	require.NoError(t, err)
	_, err = c.Orchestrate(context.Background(), "temperature", "")
	require.NoError(t, err)

	require.Len(t, d.clients, 2)
	assert.EqualValues(t, 1, d.clients[0].disconnects.Load())
	assert.Zero(t, d.clients[1].disconnects.Load())

	require.NoError(t, c.Close())
	assert.EqualValues(t, 1, d.clients[1].disconnects.Load())
	assert.Nil(t, c.Current())
}

func TestBind_dialFailure(t *testing.T) {
	s := newCoreStub(t)
	s.on(http.MethodPost, "/orchestrator/orchestration/", orchestrationReply(
		provider("broker", "10.0.0.9", 1883, "", client.InterfaceMQTTInsecureJSON),
	))
	d := &dialRecorder{err: errors.New("connection refused")}
	c := newClient(t, s, client.WithMQTTDialer(d.dial))

	res, err := c.Orchestrate(context.Background(), "temperature", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Nil(t, res)
	assert.Nil(t, c.Current())
}

// ── Handles ──────────────────────────────────────────────────────────────

func TestHTTPHandle_Call(t *testing.T) {
	var gotPath, gotToken string
	prov := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.URL.Query().Get("token")
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]any{"celsius": 21.5, "echo": in["unit"]})
	}))
	defer prov.Close()

	addr := prov.Listener.Addr().(*net.TCPAddr)
	p := provider("p", addr.IP.String(), addr.Port, "temperature", client.InterfaceHTTPInsecureJSON)
	p.AuthorizationTokens = map[string]string{client.InterfaceHTTPInsecureJSON: "tok+en"}

	s := newCoreStub(t)
	s.on(http.MethodPost, "/orchestrator/orchestration/", orchestrationReply(p))
	c := newClient(t, s)

	res, err := c.Orchestrate(context.Background(), "temperature", "")
	require.NoError(t, err)
	h := res.Binding.HTTP
	require.NotNil(t, h)
	assert.Equal(t, "tok+en", h.Token)

	var out struct {
		Celsius float64 `json:"celsius"`
		Echo    string  `json:"echo"`
	}
	require.NoError(t, h.Call(context.Background(), http.MethodPost, "current", map[string]string{"unit": "C"}, &out))
	assert.Equal(t, 21.5, out.Celsius)
	assert.Equal(t, "C", out.Echo)
	assert.Equal(t, "/temperature/current", gotPath)
	assert.Equal(t, "tok+en", gotToken)
}

func TestHTTPHandle_CallRawError(t *testing.T) {
	prov := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "denied", http.StatusForbidden)
	}))
	defer prov.Close()

	addr := prov.Listener.Addr().(*net.TCPAddr)
	s := newCoreStub(t)
	s.on(http.MethodPost, "/orchestrator/orchestration/", orchestrationReply(
		provider("p", addr.IP.String(), addr.Port, "", client.InterfaceHTTPInsecureJSON),
	))
	c := newClient(t, s)

	res, err := c.Orchestrate(context.Background(), "temperature", "")
	require.NoError(t, err)

	_, err = res.Binding.HTTP.CallRaw(context.Background(), http.MethodGet, "", nil)
	var se *client.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusForbidden, se.StatusCode)
}

func TestHTTPHandle_URL(t *testing.T) {
	h := &client.HTTPHandle{BaseURL: "http://10.0.0.5:9000/svc/"}
	assert.Equal(t, "http://10.0.0.5:9000/svc", h.URL(""))
	assert.Equal(t, "http://10.0.0.5:9000/svc/a/b", h.URL("/a/b"))
}

func TestBinding_nilSafe(t *testing.T) {
	var b *client.Binding
	assert.False(t, b.Bound())
	assert.NoError(t, b.Close())
}
