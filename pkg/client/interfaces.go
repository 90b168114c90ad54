package client

import (
	"fmt"
	"slices"
	"strings"
)

// Interface names a caller may request from the orchestrator.
const (
	InterfaceHTTPInsecureJSON = "HTTP-INSECURE-JSON"
	InterfaceMQTTInsecureJSON = "MQTT-INSECURE-JSON"
	InterfaceHTTPSSecureJSON  = "HTTPS-SECURE-JSON"
	InterfaceMQTTSSecureJSON  = "MQTTS-SECURE-JSON"
)

var (
	insecureInterfaces = []string{InterfaceHTTPInsecureJSON, InterfaceMQTTInsecureJSON}
	secureInterfaces   = []string{InterfaceHTTPSSecureJSON, InterfaceMQTTSSecureJSON}
)

// SupportedInterfaces returns the interface names Orchestrate accepts.
func SupportedInterfaces() []string {
	return append(slices.Clone(insecureInterfaces), secureInterfaces...)
}

// ValidateInterface fails with ErrUnsupportedInterface for any name outside
// SupportedInterfaces. Names are case-sensitive.
func ValidateInterface(name string) error {
	if slices.Contains(insecureInterfaces, name) || slices.Contains(secureInterfaces, name) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedInterface, name)
}

// DefaultInterface is requested when the caller does not name one.
func DefaultInterface(secure bool) string {
	if secure {
		return secureInterfaces[0]
	}
	return insecureInterfaces[0]
}

// Family is the transport an interface binds to.
type Family string

const (
	FamilyHTTP Family = "HTTP"
	FamilyMQTT Family = "MQTT"
)

// Descriptor is a parsed <PROTOCOL>-<SECURITY>-<ENCODING> interface name.
type Descriptor struct {
	Name     string
	Protocol string
	Family   Family // empty for protocols the binder does not know
	Secure   bool
	Encoding string
}

// ParseDescriptor splits an interface name into its three tokens.
func ParseDescriptor(name string) (Descriptor, error) {
	parts := strings.SplitN(name, "-", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return Descriptor{}, fmt.Errorf("malformed interface name %q", name)
	}

	d := Descriptor{Name: name, Protocol: parts[0], Encoding: parts[2]}
	switch parts[1] {
	case "SECURE":
		d.Secure = true
	case "INSECURE":
	default:
		return Descriptor{}, fmt.Errorf("interface %q: unknown security token %q", name, parts[1])
	}

	switch strings.TrimSuffix(d.Protocol, "S") {
	case "HTTP":
		d.Family = FamilyHTTP
	case "MQTT":
		d.Family = FamilyMQTT
	}
	return d, nil
}

// Bindable reports whether a caller in the given mode can bind d.
func (d Descriptor) Bindable(secure bool) bool {
	return d.Family != "" && d.Encoding == "JSON" && d.Secure == secure
}
