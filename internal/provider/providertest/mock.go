// Package providertest provides test helpers for the provider package.
package providertest

import (
	"context"
	"sync"

	"github.com/flemzord/wai/internal/provider"
)

// MockProvider is a configurable test double for the provider interfaces.
// Set the Func fields to control behavior. Unset funcs panic on call.
// All methods are safe for concurrent use.
type MockProvider struct {
	ChatCompletionFunc func(ctx context.Context, payload provider.ChatPayload, onProgress provider.ProgressFunc) (string, error)
	ListModelsFunc     func(ctx context.Context) []string
	HealthCheckFunc    func(ctx context.Context) error

	// Default is returned by DefaultModel.
	Default string

	mu              sync.Mutex
	CompletionCalls int
	ListCalls       int
	HealthCalls     int
}

// ChatCompletion delegates to ChatCompletionFunc and tracks call count.
func (m *MockProvider) ChatCompletion(ctx context.Context, payload provider.ChatPayload, onProgress provider.ProgressFunc) (string, error) {
	m.mu.Lock()
	m.CompletionCalls++
	m.mu.Unlock()
	return m.ChatCompletionFunc(ctx, payload, onProgress)
}

// ListModels delegates to ListModelsFunc and tracks call count.
func (m *MockProvider) ListModels(ctx context.Context) []string {
	m.mu.Lock()
	m.ListCalls++
	m.mu.Unlock()
	return m.ListModelsFunc(ctx)
}

// HealthCheck delegates to HealthCheckFunc and tracks call count.
func (m *MockProvider) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	m.HealthCalls++
	m.mu.Unlock()
	return m.HealthCheckFunc(ctx)
}

// DefaultModel returns Default.
func (m *MockProvider) DefaultModel() string { return m.Default }

// StreamFragments returns a ChatCompletionFunc that replays fragments through
// onProgress, terminated by the done sentinel, and returns their concatenation.
func StreamFragments(fragments ...string) func(context.Context, provider.ChatPayload, provider.ProgressFunc) (string, error) {
	return func(ctx context.Context, _ provider.ChatPayload, onProgress provider.ProgressFunc) (string, error) {
		var text string
		for _, f := range fragments {
			if err := ctx.Err(); err != nil {
				return "", &provider.Error{Kind: provider.ErrCancelled, Err: err}
			}
			if onProgress != nil {
				onProgress(f)
			}
			text += f
		}
		if onProgress != nil {
			onProgress(provider.DoneSentinel)
		}
		return text, nil
	}
}

// Interface guards.
var (
	_ provider.ChatCompleter  = (*MockProvider)(nil)
	_ provider.ModelLister    = (*MockProvider)(nil)
	_ provider.HealthChecker  = (*MockProvider)(nil)
	_ provider.ModelDefaulter = (*MockProvider)(nil)
)
