// Package certs holds the mutual-TLS identity of an Arrowhead system.
//
// A Context is built once from configuration and never changes. It answers a
// single question for the rest of the client, whether the system runs in
// secure mode, and hands out the TLS configuration that goes with the answer.
//
//	cc, err := certs.New(certs.Material{
//	    Certificate:          "certs/consumer.crt",
//	    Key:                  "certs/consumer.key",
//	    CertificateAuthority: "certs/ca.crt",
//	})
//	cc.Secure() // true
package certs

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
)

// ErrInsecure is returned by operations that need the full certificate,
// key and authority triple when the context does not have it.
var ErrInsecure = errors.New("certificate context is not in secure mode")

// MissingCAPolicy decides what a certificate/key pair without a trust anchor
// is used for.
type MissingCAPolicy string

const (
	// MissingCAInsecure drops TLS client identity entirely when no authority
	// is configured. The system selects insecure interfaces only.
	MissingCAInsecure MissingCAPolicy = "insecure"

	// MissingCASkipVerify keeps presenting the client certificate but stops
	// verifying the server. Interface selection still uses insecure mode.
	MissingCASkipVerify MissingCAPolicy = "skip-verify"
)

// ParseMissingCAPolicy maps a configuration string to a MissingCAPolicy.
// The empty string selects MissingCAInsecure.
func ParseMissingCAPolicy(s string) (MissingCAPolicy, error) {
	switch MissingCAPolicy(s) {
	case "", MissingCAInsecure:
		return MissingCAInsecure, nil
	case MissingCASkipVerify:
		return MissingCASkipVerify, nil
	default:
		return "", fmt.Errorf("unknown missing CA policy %q", s)
	}
}

// Material is the optional certificate block of a system configuration.
// Each entry is either a file path or inline PEM; inline PEM wins when both
// are given.
type Material struct {
	Certificate          string
	Key                  string
	CertificateAuthority string

	CertPEM []byte
	KeyPEM  []byte
	CAPEM   []byte
}

// Empty reports whether no certificate material was configured at all.
func (m Material) Empty() bool {
	return m.Certificate == "" && m.Key == "" && m.CertificateAuthority == "" &&
		len(m.CertPEM) == 0 && len(m.KeyPEM) == 0 && len(m.CAPEM) == 0
}

// Context is the immutable TLS identity of one system.
type Context struct {
	certPEM []byte
	keyPEM  []byte
	caPEM   []byte

	pair   *tls.Certificate
	pool   *x509.CertPool
	policy MissingCAPolicy
}

// Option configures a Context.
type Option func(*Context)

// WithMissingCAPolicy overrides the default MissingCAInsecure policy.
func WithMissingCAPolicy(p MissingCAPolicy) Option {
	return func(c *Context) {
		c.policy = p
	}
}

// New reads and parses m. Absent fields are not an error; they only take the
// context out of secure mode. Fields that are present but unreadable or
// malformed are.
func New(m Material, opts ...Option) (*Context, error) {
	c := &Context{policy: MissingCAInsecure}
	for _, o := range opts {
		o(c)
	}

	var err error
	if c.certPEM, err = pick(m.CertPEM, m.Certificate, "certificate"); err != nil {
		return nil, err
	}
	if c.keyPEM, err = pick(m.KeyPEM, m.Key, "key"); err != nil {
		return nil, err
	}
	if c.caPEM, err = pick(m.CAPEM, m.CertificateAuthority, "certificate authority"); err != nil {
		return nil, err
	}

	if len(c.certPEM) > 0 && len(c.keyPEM) > 0 {
		pair, err := tls.X509KeyPair(c.certPEM, c.keyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse certificate/key pair: %w", err)
		}
		c.pair = &pair
	}

	if len(c.caPEM) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(c.caPEM) {
			return nil, fmt.Errorf("failed to parse certificate authority PEM")
		}
		c.pool = pool
	}
	return c, nil
}

// Insecure returns a context with no material.
func Insecure() *Context {
	return &Context{policy: MissingCAInsecure}
}

func pick(inline []byte, path, what string) ([]byte, error) {
	if len(inline) > 0 {
		return inline, nil
	}
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", what, err)
	}
	return b, nil
}

// Secure reports whether certificate, key and authority are all present.
func (c *Context) Secure() bool {
	if c == nil {
		return false
	}
	return c.pair != nil && c.pool != nil
}

// HasIdentity reports whether a certificate/key pair is configured,
// regardless of the authority.
func (c *Context) HasIdentity() bool {
	return c != nil && c.pair != nil
}

// Policy returns the configured MissingCAPolicy.
func (c *Context) Policy() MissingCAPolicy {
	if c == nil {
		return MissingCAInsecure
	}
	return c.policy
}

// Leaf returns the parsed certificate of the configured identity, or nil.
func (c *Context) Leaf() *x509.Certificate {
	if c == nil || c.pair == nil {
		return nil
	}
	if c.pair.Leaf != nil {
		return c.pair.Leaf
	}
	leaf, err := x509.ParseCertificate(c.pair.Certificate[0])
	if err != nil {
		return nil
	}
	return leaf
}

// ClientTLSConfig returns the TLS configuration for outgoing connections, or
// nil when plain system defaults apply.
func (c *Context) ClientTLSConfig() *tls.Config {
	if c == nil {
		return nil
	}
	switch {
	case c.pool != nil:
		cfg := &tls.Config{
			RootCAs:    c.pool,
			MinVersion: tls.VersionTLS12,
		}
		if c.pair != nil {
			cfg.Certificates = []tls.Certificate{*c.pair}
		}
		return cfg
	case c.pair != nil && c.policy == MissingCASkipVerify:
		return &tls.Config{
			Certificates:       []tls.Certificate{*c.pair},
			InsecureSkipVerify: true, //nolint:gosec
			MinVersion:         tls.VersionTLS12,
		}
	default:
		return nil
	}
}

// ServerTLSConfig returns a TLS configuration for a provider serving a
// secure interface. Client certificates are required and verified against
// the authority.
func (c *Context) ServerTLSConfig() (*tls.Config, error) {
	if !c.Secure() {
		return nil, ErrInsecure
	}
	return &tls.Config{
		Certificates: []tls.Certificate{*c.pair},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    c.pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// HTTPClient returns an *http.Client that presents this identity.
func (c *Context) HTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = c.ClientTLSConfig()
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}
