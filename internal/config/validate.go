package config

import (
	"errors"
	"fmt"

	"github.com/flemzord/wai/internal/core"
	"github.com/flemzord/wai/internal/security"
)

// Validate checks the structural validity of a Config.
// It verifies the version field, ensures modules are present, checks that
// all referenced module IDs exist in the registry and that the logging
// section names a known level and format.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if len(cfg.Modules) == 0 {
		errs = append(errs, errors.New("config: at least one module must be configured"))
	}

	for _, id := range Resolve(cfg) {
		if _, ok := core.GetModule(id); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", id))
		}
	}

	if _, err := security.ParseLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("config: logging.level: %w", err))
	}
	switch cfg.Logging.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("config: logging.format %q must be text or json", cfg.Logging.Format))
	}

	return errors.Join(errs...)
}
