// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for wai.
package config

import "gopkg.in/yaml.v3"

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is supported.
	Version string `yaml:"version"`

	// Modules maps module IDs to their raw YAML configuration.
	// Keys must match registered module IDs (e.g. "provider.workersai").
	Modules map[string]yaml.Node `yaml:"modules"`

	// Logging configures the process-wide logger.
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	// Level is debug, info, warn or error. Default: info.
	Level string `yaml:"level"`

	// Format is text or json. Default: text.
	Format string `yaml:"format"`
}
