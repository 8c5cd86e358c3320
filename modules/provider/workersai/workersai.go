// Package workersai implements the provider interfaces on top of Cloudflare
// Workers AI, reached either directly through the account API or through an
// AI Gateway. Both deployment shapes are normalized by ResolveEndpoint; the
// rest of the package only ever sees a resolved run address.
package workersai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/wai/internal/core"
	"github.com/flemzord/wai/internal/provider"
	"github.com/flemzord/wai/internal/security"
)

// ModuleID is the module and service name of the Workers AI provider.
const ModuleID = "provider.workersai"

// Connection pool limits of the clients built by newHTTPClient.
const (
	idleConnTimeout     = 90 * time.Second
	maxIdleConnsPerHost = 4
)

const instrumentationName = "github.com/flemzord/wai/modules/provider/workersai"

var tracer = otel.Tracer(instrumentationName)

// Interface guards.
var (
	_ provider.ChatCompleter  = (*Client)(nil)
	_ provider.ModelLister    = (*Client)(nil)
	_ provider.ModelDefaulter = (*Client)(nil)
	_ provider.HealthChecker  = (*Client)(nil)
	_ core.Configurable       = (*Client)(nil)
	_ core.Provisioner        = (*Client)(nil)
	_ core.Validator          = (*Client)(nil)
)

func init() {
	core.RegisterModule(&Client{})
}

// Client talks to Workers AI. It is safe for concurrent use; Reconfigure
// swaps the whole settings snapshot so in-flight calls finish on the one
// they started with.
type Client struct {
	// mu serializes Reconfigure and guards config.
	mu       sync.Mutex
	config   Config
	logger   *slog.Logger
	redactor *security.Redactor

	// custom is the caller-supplied HTTP client, if any. When nil each
	// settings snapshot builds its own from Config.Timeout.
	custom *http.Client

	settings atomic.Pointer[settings]
}

// settings is an immutable snapshot derived from a Config.
type settings struct {
	config   Config
	runURL   string
	topology Topology
	header   http.Header
	pace     time.Duration
	client   *http.Client

	// owned is set when client was built for this snapshot and must have
	// its idle connections closed once the snapshot is replaced.
	owned bool
}

// Option customizes a Client or a FetchModels call.
type Option func(*options)

type options struct {
	client *http.Client
	logger *slog.Logger
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// New returns a Client for cfg. It fails with provider.ErrConfiguration
// when cfg is incomplete or its base URL is neither a direct nor a gateway
// endpoint.
func New(cfg Config, opts ...Option) (*Client, error) {
	o := buildOptions(opts)
	cfg.defaults()
	c := &Client{config: cfg, logger: o.logger, custom: o.client}
	if err := c.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// ModuleInfo returns the module metadata for registration.
func (c *Client) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Client{} },
	}
}

// Configure decodes the YAML configuration and applies defaults.
func (c *Client) Configure(node *yaml.Node) error {
	if err := node.Decode(&c.config); err != nil {
		return fmt.Errorf("workersai: decoding config: %w", err)
	}
	c.config.defaults()
	return nil
}

// Provision resolves the endpoint, registers the API key with the log
// redactor and publishes the client as a service.
func (c *Client) Provision(ctx *core.AppContext) error {
	c.logger = ctx.Logger
	c.redactor = ctx.Redactor

	if err := c.Reconfigure(c.config); err != nil {
		return err
	}

	ctx.RegisterService(ModuleID, c)
	return nil
}

// Validate checks that required configuration fields are set.
func (c *Client) Validate() error {
	c.mu.Lock()
	cfg := c.config
	c.mu.Unlock()
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("workersai: %w", err)
	}
	return nil
}

// Reconfigure atomically replaces the client's settings. On error the
// previous settings stay in effect.
func (c *Client) Reconfigure(cfg Config) error {
	cfg.defaults()
	if err := cfg.validate(); err != nil {
		return &provider.Error{Kind: provider.ErrConfiguration, Op: "workersai: configure", Err: err}
	}

	runURL, topology, err := ResolveEndpoint(cfg.BaseURL, OperationRun)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next := &settings{
		config:   cfg,
		runURL:   runURL,
		topology: topology,
		header:   cfg.header(),
		pace:     cfg.pace(),
		client:   c.custom,
	}
	if next.client == nil {
		timeout, _ := cfg.parsedTimeout()
		next.client = newHTTPClient(timeout)
		next.owned = true
	}

	if c.redactor != nil {
		c.redactor.AddLiteral(cfg.APIKey)
	}

	c.config = cfg
	prev := c.settings.Swap(next)
	// In-flight calls keep their connections; only idle ones are dropped.
	if prev != nil && prev.owned {
		prev.client.CloseIdleConnections()
	}

	c.log().Debug("workersai configured", "topology", topology.String(), "run_url", runURL)
	return nil
}

// Topology reports the deployment shape of the current base URL.
func (c *Client) Topology() Topology {
	if s := c.settings.Load(); s != nil {
		return s.topology
	}
	return TopologyUnsupported
}

// DefaultModel returns the configured fallback model, if any.
func (c *Client) DefaultModel() string {
	if s := c.settings.Load(); s != nil {
		return s.config.Model
	}
	return ""
}

// ListModels returns the text-generation models visible to the configured
// account. It never fails; see FetchModels.
func (c *Client) ListModels(ctx context.Context) []string {
	s := c.settings.Load()
	if s == nil {
		return nil
	}
	return FetchModels(ctx, s.config.BaseURL, s.config.APIKey,
		WithHTTPClient(s.client), WithLogger(c.log()))
}

// HealthCheck issues a models search and reports any failure.
func (c *Client) HealthCheck(ctx context.Context) error {
	s := c.settings.Load()
	if s == nil {
		return errNotConfigured("workersai: health check")
	}
	_, err := searchModels(ctx, s.client, s.config.BaseURL, s.config.APIKey)
	return err
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// newHTTPClient uses transport-level timeouts (dial, TLS and response
// header) instead of http.Client.Timeout so long streams are not cut off.
// Streaming body reads are governed by context cancellation instead.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           (&net.Dialer{Timeout: timeout}).DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			IdleConnTimeout:       idleConnTimeout,
			MaxIdleConnsPerHost:   maxIdleConnsPerHost,
		},
	}
}

func errNotConfigured(op string) *provider.Error {
	return &provider.Error{
		Kind: provider.ErrConfiguration,
		Op:   op,
		Err:  errors.New("client has no valid configuration"),
	}
}
