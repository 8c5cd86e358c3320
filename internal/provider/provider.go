// Package provider defines the interfaces, payload types and error kinds shared
// by inference-provider adapters and their consumers.
package provider

import "context"

// ChatCompleter executes chat completions against a remote model.
type ChatCompleter interface {
	// ChatCompletion sends payload and returns the full reply text.
	// When payload.Stream is true, onProgress receives each fragment in
	// arrival order followed by DoneSentinel exactly once. onProgress may
	// be nil.
	ChatCompletion(ctx context.Context, payload ChatPayload, onProgress ProgressFunc) (string, error)
}

// ModelLister enumerates the text-generation models a provider exposes.
// Implementations are fail-soft: an unreachable provider yields an empty list.
type ModelLister interface {
	ListModels(ctx context.Context) []string
}

// ModelDefaulter is an optional interface for providers configured with a
// model used when a payload names none.
type ModelDefaulter interface {
	DefaultModel() string
}

// HealthChecker is an optional interface that providers may implement
// to support active health probing. Unlike ModelLister it reports failures.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
