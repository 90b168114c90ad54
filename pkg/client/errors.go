package client

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProvider is returned when the orchestrator (or the registry, for
	// authorization lookups) answered successfully but matched nothing.
	ErrNoProvider = errors.New("no provider available")

	// ErrUnsupportedInterface is returned before any network call when the
	// caller asks for an interface outside SupportedInterfaces.
	ErrUnsupportedInterface = errors.New("unsupported interface")

	// ErrCoreServiceNotConfigured is returned when an operation needs a core
	// service whose base URL was not given to New.
	ErrCoreServiceNotConfigured = errors.New("core service URL not configured")
)

// StatusError is a core-service response outside the expected status range.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}
