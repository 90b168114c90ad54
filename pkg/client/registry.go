package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

// RegisterSystem announces the system to the service registry. 201 means it
// was created and 400 means it already exists; both count as success.
func (c *Client) RegisterSystem(ctx context.Context) error {
	target, err := endpoint(c.urls.ServiceRegistry, "service registry", "register-system/")
	if err != nil {
		return fmt.Errorf("register system: %w", err)
	}

	status, body, err := c.send(ctx, "register_system", http.MethodPost, target, c.system)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusCreated:
		c.logger.Info("system registered", zap.String("system", c.system.SystemName))
		return nil
	case http.StatusBadRequest:
		c.logger.Info("system already registered", zap.String("system", c.system.SystemName))
		return nil
	default:
		c.logger.Warn("system registration failed",
			zap.String("system", c.system.SystemName),
			zap.Int("status", status),
			zap.ByteString("body", body),
		)
		return &StatusError{Op: "register_system", StatusCode: status, Body: string(body)}
	}
}

// RegisterService registers one service with a single interface. An empty
// iface registers DefaultInterface for the client's mode.
func (c *Client) RegisterService(ctx context.Context, definition, uri, iface string) error {
	reg := ServiceRegistration{ServiceDefinition: definition, ServiceURI: uri}
	if iface != "" {
		reg.Interfaces = []string{iface}
	}
	return c.registerService(ctx, reg)
}

// RegisterServices registers each entry in order and stops at the first
// failure.
func (c *Client) RegisterServices(ctx context.Context, regs []ServiceRegistration) error {
	for _, reg := range regs {
		if err := c.registerService(ctx, reg); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) registerService(ctx context.Context, reg ServiceRegistration) error {
	if reg.ServiceDefinition == "" {
		return errors.New("register service: service definition is required")
	}
	target, err := endpoint(c.urls.ServiceRegistry, "service registry", "register")
	if err != nil {
		return fmt.Errorf("register service %q: %w", reg.ServiceDefinition, err)
	}
	if len(reg.Interfaces) == 0 {
		reg.Interfaces = []string{DefaultInterface(c.Secure())}
	}

	var ack ServiceRecord
	entry := serviceRegistryEntry{ProviderSystem: c.system, ServiceRegistration: reg}
	if err := c.do(ctx, "register_service", http.MethodPost, target, entry, &ack); err != nil {
		c.logger.Warn("service registration failed",
			zap.String("service", reg.ServiceDefinition),
			zap.Error(err),
		)
		return err
	}
	c.logger.Info("service registered",
		zap.String("service", reg.ServiceDefinition),
		zap.String("uri", reg.ServiceURI),
		zap.Strings("interfaces", reg.Interfaces),
		zap.Int64("id", ack.ID),
	)
	return nil
}

// UnregisterService removes the system's registration of definition.
func (c *Client) UnregisterService(ctx context.Context, definition string) error {
	target, err := endpoint(c.urls.ServiceRegistry, "service registry", "unregister")
	if err != nil {
		return fmt.Errorf("unregister service %q: %w", definition, err)
	}
	q := url.Values{}
	q.Set("system_name", c.system.SystemName)
	q.Set("address", c.system.Address)
	q.Set("port", strconv.Itoa(c.system.Port))
	q.Set("service_definition", definition)

	if err := c.do(ctx, "unregister_service", http.MethodDelete, target+"?"+q.Encode(), nil, nil); err != nil {
		return err
	}
	c.logger.Info("service unregistered", zap.String("service", definition))
	return nil
}

// UnregisterServices removes each definition in order and stops at the
// first failure.
func (c *Client) UnregisterServices(ctx context.Context, definitions []string) error {
	for _, d := range definitions {
		if err := c.UnregisterService(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

// ServicesByDefinition lists every registry entry offering definition.
func (c *Client) ServicesByDefinition(ctx context.Context, definition string) ([]ServiceRecord, error) {
	target, err := endpoint(c.urls.ServiceRegistry, "service registry", "mgmt/servicedef/"+url.PathEscape(definition))
	if err != nil {
		return nil, fmt.Errorf("lookup %q: %w", definition, err)
	}
	var list dataList[ServiceRecord]
	if err := c.do(ctx, "services_by_definition", http.MethodGet, target, nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}
