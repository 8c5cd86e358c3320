// Package telemetry provides Prometheus metrics and the OpenTelemetry tracer
// provider module for wai.
package telemetry

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/wai/internal/provider"
)

// LLMBuckets defines histogram buckets suited for inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Outcome label values.
const (
	OutcomeOK            = "ok"
	OutcomeConfiguration = "configuration"
	OutcomeTransport     = "transport"
	OutcomeProtocol      = "protocol"
	OutcomeStream        = "stream"
	OutcomeCancelled     = "cancelled"
	OutcomeUnknown       = "unknown"
)

var (
	// ProviderRequestsTotal counts provider calls by operation
	// (chat, chat_stream, models), topology and outcome.
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wai_provider_requests_total",
			Help: "Provider requests",
		},
		[]string{"operation", "topology", "outcome"},
	)

	// ProviderLatency records provider call duration in seconds. For streamed
	// completions it covers the whole stream, pacing included.
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wai_provider_latency_seconds",
			Help:    "Provider latency",
			Buckets: LLMBuckets,
		},
		[]string{"operation", "topology"},
	)

	// StreamFragmentsTotal counts text fragments delivered to progress callbacks.
	StreamFragmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wai_stream_fragments_total",
			Help: "Streamed fragments delivered",
		},
	)

	// ActiveStreams tracks the number of open provider event streams.
	ActiveStreams = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wai_streams_active",
			Help: "Active provider streams",
		},
	)

	// GatewayRequestsTotal counts HTTP gateway requests by route and status.
	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wai_gateway_requests_total",
			Help: "Gateway requests",
		},
		[]string{"route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		ProviderRequestsTotal,
		ProviderLatency,
		StreamFragmentsTotal,
		ActiveStreams,
		GatewayRequestsTotal,
	)
}

// Outcome maps a provider error to its outcome label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case provider.IsCancelled(err):
		return OutcomeCancelled
	case errors.Is(err, provider.ErrConfiguration):
		return OutcomeConfiguration
	case errors.Is(err, provider.ErrTransport):
		return OutcomeTransport
	case errors.Is(err, provider.ErrProtocol):
		return OutcomeProtocol
	case errors.Is(err, provider.ErrStream):
		return OutcomeStream
	default:
		return OutcomeUnknown
	}
}
