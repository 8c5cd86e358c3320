package config

import (
	"slices"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestResolve_Order(t *testing.T) {
	t.Parallel()

	cfg := &Config{Modules: map[string]yaml.Node{
		"gateway.http":       {},
		"provider.workersai": {},
		"custom.thing":       {},
		"telemetry.otel":     {},
		"provider.another":   {},
	}}

	got := Resolve(cfg)
	want := []string{"telemetry.otel", "provider.another", "provider.workersai", "gateway.http", "custom.thing"}
	if !slices.Equal(got, want) {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}
