package config

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/vtt-om/arrowhead-client-go/pkg/certs"
	"github.com/vtt-om/arrowhead-client-go/pkg/client"
	"github.com/vtt-om/arrowhead-client-go/pkg/health"
)

// ClientSystem returns the configured identity in wire form.
func (c *Config) ClientSystem() client.System {
	return client.System{
		SystemName:         c.System.Name,
		Address:            c.System.Address,
		Port:               c.System.Port,
		AuthenticationInfo: c.System.AuthenticationInfo,
	}
}

// CoreURLs returns the configured core-service base URLs.
func (c *Config) CoreURLs() client.CoreURLs {
	return client.CoreURLs{
		ServiceRegistry: c.ServiceRegistryURL,
		Orchestrator:    c.OrchestratorURL,
		Authorization:   c.AuthorizationURL,
	}
}

// Registrations returns the services list in registration form.
func (c *Config) Registrations() []client.ServiceRegistration {
	regs := make([]client.ServiceRegistration, 0, len(c.Services))
	for _, s := range c.Services {
		regs = append(regs, client.ServiceRegistration{
			ServiceDefinition: s.ServiceDefinition,
			ServiceURI:        s.ServiceURI,
			Interfaces:        s.Interfaces,
			Secure:            s.Secure,
			Version:           s.Version,
			Metadata:          s.Metadata,
		})
	}
	return regs
}

// ServiceDefinitions returns the definition of every configured service.
func (c *Config) ServiceDefinitions() []string {
	defs := make([]string, 0, len(c.Services))
	for _, s := range c.Services {
		defs = append(defs, s.ServiceDefinition)
	}
	return defs
}

// CertContext loads the configured certificate material. A keystore takes
// precedence over PEM paths.
func (c *Config) CertContext() (*certs.Context, error) {
	policy, err := certs.ParseMissingCAPolicy(c.Certificates.MissingCAPolicy)
	if err != nil {
		return nil, &Error{Key: "certificates.missing_ca_policy", Err: fmt.Errorf("%w: %v", ErrInvalid, err)}
	}

	m := certs.Material{
		Certificate:          c.Certificates.Certificate,
		Key:                  c.Certificates.Key,
		CertificateAuthority: c.Certificates.CertificateAuthority,
	}
	if c.Certificates.Keystore != "" {
		m, err = certs.FromKeystore(c.Certificates.Keystore, c.Certificates.KeystorePassword, c.Certificates.CertificateAuthority)
		if err != nil {
			return nil, &Error{Key: "certificates.keystore", Err: fmt.Errorf("%w: %v", ErrInvalid, err)}
		}
	}

	cc, err := certs.New(m, certs.WithMissingCAPolicy(policy))
	if err != nil {
		return nil, &Error{Key: "certificates", Err: fmt.Errorf("%w: %v", ErrInvalid, err)}
	}
	return cc, nil
}

// NewClient builds a client from the configuration. opts are applied after
// the configured ones.
func (c *Config) NewClient(logger *zap.Logger, opts ...client.Option) (*client.Client, error) {
	cc, err := c.CertContext()
	if err != nil {
		return nil, err
	}
	return client.New(c.ClientSystem(), c.CoreURLs(), append(c.ClientOptions(cc, logger), opts...)...)
}

// ClientOptions returns the client options the configuration implies, for
// callers that already hold the certificate context.
func (c *Config) ClientOptions(cc *certs.Context, logger *zap.Logger) []client.Option {
	if logger == nil {
		logger = zap.NewNop()
	}
	return []client.Option{
		client.WithCertificates(cc),
		client.WithLogger(logger),
		client.WithTimeout(c.Bootstrap.RequestTimeout),
		client.WithProbeConfig(health.Config{
			RetryInterval: c.Bootstrap.RetryInterval,
			ProbeTimeout:  c.Bootstrap.ProbeTimeout,
		}),
	}
}
