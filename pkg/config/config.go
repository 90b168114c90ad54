// Package config loads Arrowhead system configuration documents.
//
// One loader accepts the unified layout and the older per-role layouts:
//
//	{
//	  "system": {"systemName": "thermometer", "address": "10.0.0.7", "port": 8080},
//	  "arrowheadSettings": {
//	    "serviceRegistryUrl": "https://10.0.0.2:8443/serviceregistry/",
//	    "orchestratorUrl":    "https://10.0.0.2:8441/orchestrator/"
//	  },
//	  "certificates": {
//	    "certificate": "certs/thermometer.crt",
//	    "key": "certs/thermometer.key",
//	    "certificate_authority": "certs/ca.crt"
//	  },
//	  "services": [{"serviceDefinition": "temperature", "serviceUri": "temperature"}]
//	}
//
// Consumer documents may use requesterSystem and arrowheadOrchestratorUrl,
// provider documents providerSystem and a top-level serviceRegistryUrl, and
// manager documents top-level serviceRegistryUrl and authorizationUrl. Every
// key can be overridden from the environment with the AH_ prefix, e.g.
// AH_ARROWHEADSETTINGS_ORCHESTRATORURL.
package config

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrMissingKey is wrapped by Error when a required key is absent.
	ErrMissingKey = errors.New("missing key")
	// ErrInvalid is wrapped by Error when a key holds an unusable value.
	ErrInvalid = errors.New("invalid value")
)

// Error reports the configuration key that failed.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// System is the configured identity of this system.
type System struct {
	Name               string `mapstructure:"systemName" validate:"required"`
	Address            string `mapstructure:"address" validate:"required"`
	Port               int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	AuthenticationInfo string `mapstructure:"authenticationInfo"`
}

// Certificates points at the system's TLS material.
type Certificates struct {
	Certificate          string `mapstructure:"certificate"`
	Key                  string `mapstructure:"key"`
	CertificateAuthority string `mapstructure:"certificate_authority"`
	Keystore             string `mapstructure:"keystore"`
	KeystorePassword     string `mapstructure:"keystore_password"`
	MissingCAPolicy      string `mapstructure:"missing_ca_policy" validate:"omitempty,oneof=insecure skip-verify"`
}

// Service is one entry of the services list a provider registers.
type Service struct {
	ServiceDefinition string            `mapstructure:"serviceDefinition" validate:"required"`
	ServiceURI        string            `mapstructure:"serviceUri"`
	Interfaces        []string          `mapstructure:"interfaces" validate:"dive,required"`
	Secure            string            `mapstructure:"secure"`
	Version           int               `mapstructure:"version" validate:"gte=0"`
	Metadata          map[string]string `mapstructure:"metadata"`
}

// Bootstrap tunes the start-up probe and core-service requests.
type Bootstrap struct {
	RetryInterval  time.Duration `mapstructure:"retryInterval" validate:"gt=0"`
	ProbeTimeout   time.Duration `mapstructure:"probeTimeout" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"requestTimeout" validate:"gt=0"`
}

// Provider configures the HTTP server of a provider system.
type Provider struct {
	Listen         string   `mapstructure:"listen"`
	CORSOrigins    []string `mapstructure:"corsOrigins"`
	RateLimitRPS   float64  `mapstructure:"rateLimitRps" validate:"gte=0"`
	RateLimitBurst int      `mapstructure:"rateLimitBurst" validate:"gte=0"`
}

// Config is a loaded and validated configuration document.
type Config struct {
	System             System       `mapstructure:"system"`
	ServiceRegistryURL string       `mapstructure:"serviceRegistryUrl" validate:"omitempty,url"`
	OrchestratorURL    string       `mapstructure:"orchestratorUrl" validate:"omitempty,url"`
	AuthorizationURL   string       `mapstructure:"authorizationUrl" validate:"omitempty,url"`
	Certificates       Certificates `mapstructure:"certificates"`
	Services           []Service    `mapstructure:"services" validate:"dive"`
	Bootstrap          Bootstrap    `mapstructure:"bootstrap"`
	Provider           Provider     `mapstructure:"provider"`
}

// Alternative spellings, in lookup order.
var (
	systemKeys          = []string{"system", "providerSystem", "requesterSystem"}
	serviceRegistryKeys = []string{"arrowheadSettings.serviceRegistryUrl", "serviceRegistryUrl"}
	orchestratorKeys    = []string{"arrowheadSettings.orchestratorUrl", "arrowheadOrchestratorUrl", "orchestratorUrl"}
	authorizationKeys   = []string{"arrowheadSettings.authorizationUrl", "authorizationUrl"}
)

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("AH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("certificates.missing_ca_policy", "insecure")
	v.SetDefault("bootstrap.retryInterval", "10s")
	v.SetDefault("bootstrap.probeTimeout", "10s")
	v.SetDefault("bootstrap.requestTimeout", "10s")
	v.SetDefault("provider.rateLimitRps", 20)
	v.SetDefault("provider.rateLimitBurst", 40)
	return v
}

// Load reads and validates the JSON document at path.
func Load(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return fromViper(v)
}

// Parse reads and validates a JSON document from r.
func Parse(r io.Reader) (*Config, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	sys := firstSet(v, systemKeys)
	if sys == "" {
		return nil, &Error{Key: "system", Err: ErrMissingKey}
	}

	cfg := &Config{
		System: System{
			Name:               v.GetString(sys + ".systemName"),
			Address:            v.GetString(sys + ".address"),
			Port:               v.GetInt(sys + ".port"),
			AuthenticationInfo: v.GetString(sys + ".authenticationInfo"),
		},
		ServiceRegistryURL: firstString(v, serviceRegistryKeys),
		OrchestratorURL:    firstString(v, orchestratorKeys),
		AuthorizationURL:   firstString(v, authorizationKeys),
		Certificates: Certificates{
			Certificate:          v.GetString("certificates.certificate"),
			Key:                  v.GetString("certificates.key"),
			CertificateAuthority: v.GetString("certificates.certificate_authority"),
			Keystore:             v.GetString("certificates.keystore"),
			KeystorePassword:     v.GetString("certificates.keystore_password"),
			MissingCAPolicy:      v.GetString("certificates.missing_ca_policy"),
		},
		Provider: Provider{
			Listen:         v.GetString("provider.listen"),
			CORSOrigins:    v.GetStringSlice("provider.corsOrigins"),
			RateLimitRPS:   v.GetFloat64("provider.rateLimitRps"),
			RateLimitBurst: v.GetInt("provider.rateLimitBurst"),
		},
	}
	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"bootstrap.retryInterval", &cfg.Bootstrap.RetryInterval},
		{"bootstrap.probeTimeout", &cfg.Bootstrap.ProbeTimeout},
		{"bootstrap.requestTimeout", &cfg.Bootstrap.RequestTimeout},
	}
	for _, d := range durations {
		val, err := duration(v.Get(d.key))
		if err != nil {
			return nil, &Error{Key: d.key, Err: fmt.Errorf("%w: %v", ErrInvalid, err)}
		}
		*d.dst = val
	}
	if err := v.UnmarshalKey("services", &cfg.Services); err != nil {
		return nil, &Error{Key: "services", Err: fmt.Errorf("%w: %v", ErrInvalid, err)}
	}
	if cfg.Provider.Listen == "" && cfg.System.Port > 0 {
		cfg.Provider.Listen = fmt.Sprintf(":%d", cfg.System.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstSet(v *viper.Viper, keys []string) string {
	for _, k := range keys {
		if v.IsSet(k) {
			return k
		}
	}
	return ""
}

func firstString(v *viper.Viper, keys []string) string {
	for _, k := range keys {
		if s := v.GetString(k); s != "" {
			return s
		}
	}
	return ""
}

// duration reads a Go duration string ("1m30s") or a plain number of
// seconds, as JSON number or string.
func duration(raw any) (time.Duration, error) {
	switch x := raw.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return x, nil
	case float64:
		return seconds(x), nil
	case int:
		return time.Duration(x) * time.Second, nil
	case int64:
		return time.Duration(x) * time.Second, nil
	case string:
		if f, err := strconv.ParseFloat(x, 64); err == nil {
			return seconds(f), nil
		}
		return time.ParseDuration(x)
	default:
		return 0, fmt.Errorf("unsupported duration %v (%T)", raw, raw)
	}
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
