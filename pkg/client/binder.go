package client

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Binding holds the transport handles built for one provider. At most one
// handle per family is set; the first suitable interface of each family wins.
type Binding struct {
	HTTP       *HTTPHandle
	MQTT       *MQTTHandle
	Interfaces []string
}

// Bound reports whether any handle was built.
func (b *Binding) Bound() bool {
	return b != nil && (b.HTTP != nil || b.MQTT != nil)
}

// Close disconnects the MQTT handle, if any.
func (b *Binding) Close() error {
	if b == nil || b.MQTT == nil {
		return nil
	}
	b.MQTT.Close()
	return nil
}

// ServiceURL builds the base URL of a provider's service. The port is left
// out when it is the scheme default.
func ServiceURL(p ProviderRecord, secure bool) string {
	scheme, defaultPort := "http", 80
	if secure {
		scheme, defaultPort = "https", 443
	}

	host := p.System.Address
	if p.System.Port != 0 && p.System.Port != defaultPort {
		host = net.JoinHostPort(host, strconv.Itoa(p.System.Port))
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	u := scheme + "://" + host
	if path := strings.TrimLeft(p.ServiceURI, "/"); path != "" {
		u += "/" + path
	}
	return u
}

// BrokerURL builds the MQTT broker address of a provider.
func BrokerURL(p ProviderRecord, secure bool) string {
	scheme := "tcp"
	if secure {
		scheme = "ssl"
	}
	return scheme + "://" + net.JoinHostPort(p.System.Address, strconv.Itoa(p.System.Port))
}

// bind builds handles for every interface of p that suits the client's mode.
// Interfaces it cannot parse or does not know are skipped.
func (c *Client) bind(ctx context.Context, p ProviderRecord) (*Binding, error) {
	secure := c.Secure()
	b := &Binding{}

	for _, iface := range p.Interfaces {
		d, err := ParseDescriptor(iface.InterfaceName)
		if err != nil || !d.Bindable(secure) {
			c.logger.Debug("interface skipped",
				zap.String("interface", iface.InterfaceName),
				zap.Bool("secure", secure),
			)
			continue
		}

		switch d.Family {
		case FamilyHTTP:
			if b.HTTP != nil {
				continue
			}
			b.HTTP = &HTTPHandle{
				BaseURL:   ServiceURL(p, secure),
				Interface: d.Name,
				Token:     p.AuthorizationTokens[d.Name],
				client:    c.httpClient,
			}
		case FamilyMQTT:
			if b.MQTT != nil {
				continue
			}
			h, err := c.bindMQTT(ctx, p, d, secure)
			if err != nil {
				return nil, err
			}
			b.MQTT = h
		}
		b.Interfaces = append(b.Interfaces, d.Name)
	}
	return b, nil
}

func (c *Client) bindMQTT(ctx context.Context, p ProviderRecord, d Descriptor, secure bool) (*MQTTHandle, error) {
	broker := BrokerURL(p, secure)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(c.system.SystemName).
		SetConnectTimeout(c.timeout)
	if secure {
		opts.SetTLSConfig(c.certs.ClientTLSConfig())
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cl, err := c.dialMQTT(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("mqtt %s: %w", broker, err)
	}
	c.logger.Info("mqtt connected", zap.String("broker", broker), zap.String("client_id", c.system.SystemName))
	return &MQTTHandle{
		Broker:    broker,
		ClientID:  c.system.SystemName,
		Interface: d.Name,
		client:    cl,
		timeout:   c.timeout,
	}, nil
}
