package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Role names what a configuration is going to be used for.
type Role string

const (
	// RoleSystem registers the system and probes the registry.
	RoleSystem Role = "system"
	// RoleConsumer orchestrates.
	RoleConsumer Role = "consumer"
	// RoleProvider registers the configured services.
	RoleProvider Role = "provider"
	// RoleManager administers authorization rules.
	RoleManager Role = "manager"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("mapstructure"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks value constraints. It does not check role requirements;
// see Require.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	key := fe.Namespace()
	if _, rest, ok := strings.Cut(key, "."); ok {
		key = rest
	}
	if fe.Tag() == "required" {
		return &Error{Key: key, Err: ErrMissingKey}
	}
	return &Error{Key: key, Err: fmt.Errorf("%w: %v fails %s", ErrInvalid, fe.Value(), describe(fe))}
}

func describe(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// Require checks that every key role needs is present.
func (c *Config) Require(role Role) error {
	missing := func(key string) error { return &Error{Key: key, Err: ErrMissingKey} }

	switch role {
	case RoleSystem:
		if c.ServiceRegistryURL == "" {
			return missing("arrowheadSettings.serviceRegistryUrl")
		}
	case RoleConsumer:
		if c.OrchestratorURL == "" {
			return missing("arrowheadSettings.orchestratorUrl")
		}
	case RoleProvider:
		if c.ServiceRegistryURL == "" {
			return missing("arrowheadSettings.serviceRegistryUrl")
		}
		if len(c.Services) == 0 {
			return missing("services")
		}
		if err := c.checkServicePaths(); err != nil {
			return err
		}
	case RoleManager:
		if c.ServiceRegistryURL == "" {
			return missing("arrowheadSettings.serviceRegistryUrl")
		}
		if c.AuthorizationURL == "" {
			return missing("arrowheadSettings.authorizationUrl")
		}
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	return nil
}

// ReservedPaths are served by every provider and cannot carry a service.
var ReservedPaths = []string{"/echo", "/metrics"}

// ServicePath returns the HTTP route a provider serves uri under.
func ServicePath(uri string) string {
	return "/" + strings.Trim(uri, "/")
}

func (c *Config) checkServicePaths() error {
	seen := make(map[string]string, len(c.Services))
	for i, svc := range c.Services {
		path := ServicePath(svc.ServiceURI)
		if slices.Contains(ReservedPaths, path) {
			return &Error{
				Key: fmt.Sprintf("services[%d].serviceUri", i),
				Err: fmt.Errorf("%w: %s is reserved", ErrInvalid, path),
			}
		}
		if other, ok := seen[path]; ok {
			return &Error{
				Key: fmt.Sprintf("services[%d].serviceUri", i),
				Err: fmt.Errorf("%w: %s is already served by %s", ErrInvalid, path, other),
			}
		}
		seen[path] = svc.ServiceDefinition
	}
	return nil
}
