// Package metrics holds the Prometheus collectors shared by the client
// library and the example binaries.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ClientRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ah_client_requests_total",
		Help: "Requests to Arrowhead core services by operation and response status.",
	}, []string{"op", "status"})

	ClientRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ah_client_request_duration_seconds",
		Help:    "Core service request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	ProbeAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ah_probe_attempts_total",
		Help: "Echo probes against core services by result.",
	}, []string{"result"})

	OrchestrationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ah_orchestrations_total",
		Help: "Orchestration calls by outcome.",
	}, []string{"result"})

	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ah_provider_requests_total",
		Help: "Requests served by a provider system by method, path, and response status.",
	}, []string{"method", "path", "status"})
)

// Orchestration outcomes.
const (
	OrchestrationBound      = "bound"
	OrchestrationUnbound    = "unbound"
	OrchestrationNoProvider = "no_provider"
	OrchestrationError      = "error"
)

// ObserveRequest records one core-service call. status is 0 when the request
// never got a response.
func ObserveRequest(op string, status int, elapsed time.Duration) {
	label := "transport_error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	ClientRequestsTotal.WithLabelValues(op, label).Inc()
	ClientRequestDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// RecordProbe records an echo probe result.
func RecordProbe(success bool) {
	if success {
		ProbeAttemptsTotal.WithLabelValues("success").Inc()
	} else {
		ProbeAttemptsTotal.WithLabelValues("failure").Inc()
	}
}

// RecordOrchestration records an orchestration outcome.
func RecordOrchestration(result string) {
	OrchestrationsTotal.WithLabelValues(result).Inc()
}

// ObserveProviderRequest records one request served by a provider system.
func ObserveProviderRequest(method, path string, status int) {
	providerRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}
