package gateway

import (
	"sync/atomic"
	"time"
)

// Metrics tracks gateway-level counters using atomic operations for lock-free
// concurrency. Prometheus carries the same signals with labels; these feed
// GET /status.
type Metrics struct {
	completions  atomic.Int64
	streamed     atomic.Int64
	errors       atomic.Int64
	cancelled    atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
}

// RecordCompletion records a successful chat completion.
func (m *Metrics) RecordCompletion(latency time.Duration, stream bool) {
	m.completions.Add(1)
	if stream {
		m.streamed.Add(1)
	}
	m.totalLatency.Add(int64(latency))
}

// RecordError records a failed chat completion.
func (m *Metrics) RecordError() {
	m.errors.Add(1)
}

// RecordCancelled records a chat completion abandoned by its client.
func (m *Metrics) RecordCancelled() {
	m.cancelled.Add(1)
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	completions := m.completions.Load()
	snap := MetricsSnapshot{
		Completions: completions,
		Streamed:    m.streamed.Load(),
		Errors:      m.errors.Load(),
		Cancelled:   m.cancelled.Load(),
	}
	if completions > 0 {
		snap.AvgLatency = time.Duration(m.totalLatency.Load() / completions)
	}
	return snap
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Completions int64         `json:"completions"`
	Streamed    int64         `json:"streamed"`
	Errors      int64         `json:"errors"`
	Cancelled   int64         `json:"cancelled"`
	AvgLatency  time.Duration `json:"avg_latency_ns"`
}
