package client

// System identifies an Arrowhead system to the registry and orchestrator.
type System struct {
	SystemName         string `json:"systemName"`
	Address            string `json:"address"`
	Port               int    `json:"port"`
	AuthenticationInfo string `json:"authenticationInfo,omitempty"`
}

// ServiceRegistration describes one service a provider offers.
type ServiceRegistration struct {
	ServiceDefinition string            `json:"serviceDefinition"`
	ServiceURI        string            `json:"serviceUri"`
	Interfaces        []string          `json:"interfaces"`
	Secure            string            `json:"secure,omitempty"`
	Version           int               `json:"version,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// serviceRegistryEntry is the body of POST serviceregistry/register.
type serviceRegistryEntry struct {
	ProviderSystem System `json:"providerSystem"`
	ServiceRegistration
}

// ProviderSystem is a system record as returned by the core services.
type ProviderSystem struct {
	ID         int64  `json:"id"`
	SystemName string `json:"systemName"`
	Address    string `json:"address"`
	Port       int    `json:"port"`
}

// ServiceDefinition is a service definition record.
type ServiceDefinition struct {
	ID                int64  `json:"id"`
	ServiceDefinition string `json:"serviceDefinition"`
}

// Interface is an interface record attached to a service.
type Interface struct {
	ID            int64  `json:"id"`
	InterfaceName string `json:"interfaceName"`
}

// ServiceRecord is one entry of the service registry.
type ServiceRecord struct {
	ID                int64             `json:"id"`
	ServiceDefinition ServiceDefinition `json:"serviceDefinition"`
	Provider          ProviderSystem    `json:"provider"`
	ServiceURI        string            `json:"serviceUri"`
	Secure            string            `json:"secure,omitempty"`
	Version           int               `json:"version,omitempty"`
	Interfaces        []Interface       `json:"interfaces"`
}

// ProviderRecord is one match returned by the orchestrator.
type ProviderRecord struct {
	System              ProviderSystem    `json:"provider"`
	Service             ServiceDefinition `json:"service"`
	ServiceURI          string            `json:"serviceUri"`
	Secure              string            `json:"secure,omitempty"`
	Version             int               `json:"version,omitempty"`
	Interfaces          []Interface       `json:"interfaces"`
	AuthorizationTokens map[string]string `json:"authorizationTokens,omitempty"`
	Warnings            []string          `json:"warnings,omitempty"`
}

// AuthorizationGrant is the body of POST authorization/mgmt/intracloud.
type AuthorizationGrant struct {
	ConsumerID           int64   `json:"consumerId"`
	InterfaceIDs         []int64 `json:"interfaceIds"`
	ProviderIDs          []int64 `json:"providerIds"`
	ServiceDefinitionIDs []int64 `json:"serviceDefinitionIds"`
}

// Authorization is an intra-cloud authorization rule.
type Authorization struct {
	ID                int64             `json:"id"`
	ConsumerSystem    ProviderSystem    `json:"consumerSystem"`
	ProviderSystem    ProviderSystem    `json:"providerSystem"`
	ServiceDefinition ServiceDefinition `json:"serviceDefinition"`
	Interfaces        []Interface       `json:"interfaces"`
}

// dataList is the {data: [...]} envelope of the management endpoints.
type dataList[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
}
