package client

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"

	"go.uber.org/zap"
)

// AuthorizeSystem grants consumerID access to every provider of definition
// currently in the registry. It fails with ErrNoProvider when the registry
// has none.
func (c *Client) AuthorizeSystem(ctx context.Context, consumerID int64, definition string) error {
	target, err := endpoint(c.urls.Authorization, "authorization", "mgmt/intracloud")
	if err != nil {
		return fmt.Errorf("authorize system: %w", err)
	}

	services, err := c.ServicesByDefinition(ctx, definition)
	if err != nil {
		return fmt.Errorf("authorize system: %w", err)
	}
	if len(services) == 0 {
		return fmt.Errorf("authorize system: %w for service definition %q", ErrNoProvider, definition)
	}

	grant := buildGrant(consumerID, services)
	if err := c.do(ctx, "authorize_system", http.MethodPost, target, grant, nil); err != nil {
		return err
	}
	c.logger.Info("authorization granted",
		zap.Int64("consumer_id", consumerID),
		zap.String("service", definition),
		zap.Int64s("provider_ids", grant.ProviderIDs),
	)
	return nil
}

// buildGrant collects the ids of every service record. Each id appears once
// so a single-definition grant keeps a single service definition id.
func buildGrant(consumerID int64, services []ServiceRecord) AuthorizationGrant {
	grant := AuthorizationGrant{ConsumerID: consumerID}
	add := func(ids []int64, id int64) []int64 {
		if slices.Contains(ids, id) {
			return ids
		}
		return append(ids, id)
	}
	for _, s := range services {
		for _, iface := range s.Interfaces {
			grant.InterfaceIDs = add(grant.InterfaceIDs, iface.ID)
		}
		grant.ProviderIDs = add(grant.ProviderIDs, s.Provider.ID)
		grant.ServiceDefinitionIDs = add(grant.ServiceDefinitionIDs, s.ServiceDefinition.ID)
	}
	return grant
}

// ListAuthorizations returns every intra-cloud authorization rule.
func (c *Client) ListAuthorizations(ctx context.Context) ([]Authorization, error) {
	target, err := endpoint(c.urls.Authorization, "authorization", "mgmt/intracloud")
	if err != nil {
		return nil, fmt.Errorf("list authorizations: %w", err)
	}
	var list dataList[Authorization]
	if err := c.do(ctx, "list_authorizations", http.MethodGet, target, nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// DeleteAuthorizations removes every intra-cloud authorization rule in list
// order. It stops at the first failure and returns how many were deleted.
func (c *Client) DeleteAuthorizations(ctx context.Context) (int, error) {
	rules, err := c.ListAuthorizations(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete authorizations: %w", err)
	}

	deleted := 0
	for _, rule := range rules {
		target, err := endpoint(c.urls.Authorization, "authorization", "mgmt/intracloud/"+strconv.FormatInt(rule.ID, 10))
		if err != nil {
			return deleted, err
		}
		if err := c.do(ctx, "delete_authorization", http.MethodDelete, target, nil, nil); err != nil {
			c.logger.Warn("authorization delete failed",
				zap.Int64("id", rule.ID),
				zap.Int("deleted", deleted),
				zap.Error(err),
			)
			return deleted, fmt.Errorf("delete authorization %d: %w", rule.ID, err)
		}
		deleted++
	}
	c.logger.Info("authorizations deleted", zap.Int("count", deleted))
	return deleted, nil
}
