package workersai

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultTimeout      = "120s"
	defaultStreamPaceMS = 20
	defaultContentType  = "application/json"
)

// Config holds the YAML configuration for the Workers AI provider module.
type Config struct {
	// BaseURL is either a direct account endpoint
	// (https://api.cloudflare.com/client/v4/accounts/{account}/ai/v1) or an
	// AI Gateway endpoint (https://gateway.ai.cloudflare.com/v1/{account}/{gateway}).
	BaseURL string `yaml:"base_url"`

	// APIKey is the Cloudflare API token (required).
	APIKey string `yaml:"api_key"`

	// Headers are sent with every request, on top of
	// Content-Type: application/json. A configured Content-Type wins.
	Headers map[string]string `yaml:"headers"`

	// StreamPaceMS is the pause after each streamed fragment, in
	// milliseconds. nil means 20; 0 disables pacing.
	StreamPaceMS *int `yaml:"stream_pace_ms"`

	// Model is used when a payload does not name one (optional).
	Model string `yaml:"model"`

	// Timeout bounds dialing, the TLS handshake and the wait for response
	// headers. Streamed bodies are governed by the call context.
	// Default: "120s"
	Timeout string `yaml:"timeout"`
}

// defaults fills in zero-value fields with sensible defaults.
func (c *Config) defaults() {
	if c.Timeout == "" {
		c.Timeout = defaultTimeout
	}
}

// validate reports every problem with the configuration at once.
func (c *Config) validate() error {
	var errs []error

	if c.APIKey == "" {
		errs = append(errs, errors.New("api_key is required"))
	}

	if c.BaseURL == "" {
		errs = append(errs, errors.New("base_url is required"))
	} else if u, err := url.Parse(c.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("invalid base_url: %w", err))
	} else {
		if u.Scheme != "http" && u.Scheme != "https" {
			errs = append(errs, fmt.Errorf("base_url scheme must be http or https, got %q", u.Scheme))
		}
		if u.Host == "" {
			errs = append(errs, errors.New("base_url must include a host"))
		}
	}

	if c.StreamPaceMS != nil && *c.StreamPaceMS < 0 {
		errs = append(errs, fmt.Errorf("stream_pace_ms must not be negative, got %d", *c.StreamPaceMS))
	}

	if c.Timeout != "" {
		if d, err := c.parsedTimeout(); err != nil {
			errs = append(errs, fmt.Errorf("invalid timeout %q: %w", c.Timeout, err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("timeout must be positive, got %q", c.Timeout))
		}
	}

	return errors.Join(errs...)
}

// pace returns the delay inserted after each streamed fragment.
func (c *Config) pace() time.Duration {
	if c.StreamPaceMS == nil {
		return defaultStreamPaceMS * time.Millisecond
	}
	return time.Duration(*c.StreamPaceMS) * time.Millisecond
}

// header builds the static request headers: the JSON content type, then
// the configured extras.
func (c *Config) header() http.Header {
	h := make(http.Header, len(c.Headers)+1)
	h.Set("Content-Type", defaultContentType)
	for k, v := range c.Headers {
		h.Set(k, v)
	}
	return h
}

// parsedTimeout parses Timeout as a time.Duration.
func (c *Config) parsedTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Timeout)
}
