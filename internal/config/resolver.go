package config

import (
	"cmp"
	"slices"

	"github.com/flemzord/wai/internal/core"
)

// loadOrder ranks namespaces: telemetry installs the tracer provider before
// providers create spans, and the gateway consumes provider services.
var loadOrder = map[string]int{
	"telemetry": 0,
	"provider":  1,
	"gateway":   2,
}

// Resolve returns the configured module IDs in load order: by namespace
// rank, then alphabetically. Unknown namespaces load last.
func Resolve(cfg *Config) []string {
	ids := make([]string, 0, len(cfg.Modules))
	for id := range cfg.Modules {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		if c := cmp.Compare(rank(a), rank(b)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids
}

func rank(id string) int {
	if r, ok := loadOrder[core.ModuleID(id).Namespace()]; ok {
		return r
	}
	return len(loadOrder)
}
