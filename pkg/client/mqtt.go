package client

import (
	"context"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTDialer connects an MQTT client configured by opts.
type MQTTDialer func(ctx context.Context, opts *mqtt.ClientOptions) (mqtt.Client, error)

// DialMQTT is the default MQTTDialer.
func DialMQTT(ctx context.Context, opts *mqtt.ClientOptions) (mqtt.Client, error) {
	cl := mqtt.NewClient(opts)
	if err := waitToken(ctx, cl.Connect()); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return cl, nil
}

// waitToken blocks until tok completes or ctx ends.
func waitToken(ctx context.Context, tok mqtt.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
