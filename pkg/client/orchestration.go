package client

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/vtt-om/arrowhead-client-go/internal/metrics"
)

// OrchestrationResult is the outcome of a successful Orchestrate call.
type OrchestrationResult struct {
	// Provider is the selected match, always the first one returned.
	Provider ProviderRecord
	// Binding holds the handles built for Provider. It may be unbound when
	// none of the provider's interfaces suit the client's mode.
	Binding *Binding
	// Candidates is how many matches the orchestrator returned.
	Candidates int
}

type orchestrationRequest struct {
	RequesterSystem    System            `json:"requesterSystem"`
	RequestedService   *requestedService `json:"requestedService,omitempty"`
	OrchestrationFlags map[string]bool   `json:"orchestrationFlags,omitempty"`
}

type requestedService struct {
	ServiceDefinitionRequirement string   `json:"serviceDefinitionRequirement"`
	InterfaceRequirements        []string `json:"interfaceRequirements"`
}

type orchestrationResponse struct {
	Response []ProviderRecord `json:"response"`
}

// Orchestrate asks the orchestrator for a provider of definition and binds
// to the first match, replacing any previous binding.
//
// iface must be one of SupportedInterfaces or empty; empty requests
// DefaultInterface for the client's mode. An empty definition sends a bare
// requester-only request and lets the orchestrator pick from its store.
func (c *Client) Orchestrate(ctx context.Context, definition, iface string) (*OrchestrationResult, error) {
	if iface != "" {
		if err := ValidateInterface(iface); err != nil {
			return nil, err
		}
	}
	target, err := endpoint(c.urls.Orchestrator, "orchestrator", "orchestration/")
	if err != nil {
		return nil, fmt.Errorf("orchestrate: %w", err)
	}

	req := orchestrationRequest{RequesterSystem: c.system}
	if definition != "" {
		if iface == "" {
			iface = DefaultInterface(c.Secure())
		}
		req.RequestedService = &requestedService{
			ServiceDefinitionRequirement: definition,
			InterfaceRequirements:        []string{iface},
		}
		req.OrchestrationFlags = map[string]bool{"overrideStore": true}
	}

	var resp orchestrationResponse
	if err := c.do(ctx, "orchestrate", http.MethodPost, target, req, &resp); err != nil {
		metrics.RecordOrchestration(metrics.OrchestrationError)
		return nil, err
	}
	if len(resp.Response) == 0 {
		metrics.RecordOrchestration(metrics.OrchestrationNoProvider)
		c.logger.Info("no provider matched", zap.String("service", definition), zap.String("interface", iface))
		return nil, fmt.Errorf("%w for service definition %q", ErrNoProvider, definition)
	}

	selected := resp.Response[0]

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.releaseLocked(); err != nil {
		c.logger.Warn("release previous binding", zap.Error(err))
	}

	binding, err := c.bind(ctx, selected)
	if err != nil {
		metrics.RecordOrchestration(metrics.OrchestrationError)
		return nil, fmt.Errorf("bind %s: %w", selected.System.SystemName, err)
	}

	result := &OrchestrationResult{Provider: selected, Binding: binding, Candidates: len(resp.Response)}
	c.current = result

	if binding.Bound() {
		metrics.RecordOrchestration(metrics.OrchestrationBound)
	} else {
		metrics.RecordOrchestration(metrics.OrchestrationUnbound)
	}
	c.logger.Info("orchestration complete",
		zap.String("service", definition),
		zap.String("provider", selected.System.SystemName),
		zap.Int("candidates", len(resp.Response)),
		zap.Strings("bound_interfaces", binding.Interfaces),
	)
	return result, nil
}

// Current returns the result of the last successful Orchestrate, or nil.
func (c *Client) Current() *OrchestrationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// releaseLocked closes the current binding. c.mu must be held.
func (c *Client) releaseLocked() error {
	if c.current == nil {
		return nil
	}
	err := c.current.Binding.Close()
	c.current = nil
	return err
}
