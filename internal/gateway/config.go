package gateway

import (
	"time"

	"github.com/flemzord/wai/internal/security"
)

const defaultProvider = "provider.workersai"

// Config holds HTTP gateway configuration.
type Config struct {
	Bind string `yaml:"bind"`

	// Provider is the service name of the chat provider to expose.
	Provider string `yaml:"provider"`

	Auth      AuthConfig               `yaml:"auth"`
	RateLimit security.RateLimitConfig `yaml:"rate_limit"`

	// AuditLog is a file receiving one JSON line per auth failure, rate
	// limit hit and completion. Empty disables auditing.
	AuditLog string `yaml:"audit_log"`

	MaxBodyBytes    int64         `yaml:"max_body_bytes"`
	MaxJSONDepth    int           `yaml:"max_json_depth"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// defaults fills zero values with sensible defaults.
func (c *Config) defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.Provider == "" {
		c.Provider = defaultProvider
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.MaxJSONDepth <= 0 {
		c.MaxJSONDepth = security.DefaultMaxJSONDepth
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	// Streamed replies are paced, so the write budget covers a whole stream.
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
}

// AuthConfig configures authentication for the API endpoints.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
