package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/wai/internal/core"
)

const defaultServiceName = "wai"

// Interface guards.
var (
	_ core.Configurable = (*Tracing)(nil)
	_ core.Provisioner  = (*Tracing)(nil)
	_ core.Validator    = (*Tracing)(nil)
	_ core.Starter      = (*Tracing)(nil)
	_ core.Stopper      = (*Tracing)(nil)
)

func init() {
	core.RegisterModule(&Tracing{})
}

// TracingConfig holds the YAML configuration for the telemetry.otel module.
type TracingConfig struct {
	// Endpoint is the OTLP/HTTP collector URL, e.g. http://localhost:4318.
	Endpoint string `yaml:"endpoint"`

	// Headers are sent with every export request (collector auth).
	Headers map[string]string `yaml:"headers"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "wai".
	ServiceName string `yaml:"service_name"`

	// SampleRatio is the fraction of root traces recorded, in [0, 1].
	// nil means 1.
	SampleRatio *float64 `yaml:"sample_ratio"`
}

func (c *TracingConfig) defaults() {
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	if c.SampleRatio == nil {
		one := 1.0
		c.SampleRatio = &one
	}
}

// Tracing installs a global OpenTelemetry tracer provider exporting spans
// over OTLP/HTTP. Provider modules create their spans through otel.Tracer,
// so they work with or without this module loaded.
type Tracing struct {
	config   TracingConfig
	logger   *slog.Logger
	provider *sdktrace.TracerProvider
}

// ModuleInfo implements core.Module.
func (t *Tracing) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "telemetry.otel",
		New: func() core.Module { return &Tracing{} },
	}
}

// Configure implements core.Configurable.
func (t *Tracing) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return fmt.Errorf("telemetry: decoding config: %w", err)
	}
	t.config.defaults()
	return nil
}

// Provision builds the exporter and the tracer provider.
// The exporter connects lazily, so an unreachable collector does not fail startup.
func (t *Tracing) Provision(ctx *core.AppContext) error {
	t.logger = ctx.Logger
	t.config.defaults()

	if t.config.Endpoint == "" {
		return errors.New("telemetry: endpoint is required")
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(t.config.Endpoint)}
	if len(t.config.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(t.config.Headers))
	}
	for _, v := range t.config.Headers {
		ctx.Redactor.AddLiteral(v)
	}

	exporter, err := otlptracehttp.New(context.Background(), opts...)
	if err != nil {
		return fmt.Errorf("telemetry: creating exporter: %w", err)
	}

	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", t.config.ServiceName),
		)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(*t.config.SampleRatio))),
	)
	return nil
}

// Validate checks the endpoint URL and sample ratio.
func (t *Tracing) Validate() error {
	u, err := url.Parse(t.config.Endpoint)
	if err != nil {
		return fmt.Errorf("telemetry: invalid endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("telemetry: endpoint scheme must be http or https, got %q", u.Scheme)
	}
	if r := *t.config.SampleRatio; r < 0 || r > 1 {
		return fmt.Errorf("telemetry: sample_ratio must be within [0, 1], got %v", r)
	}
	return nil
}

// Start installs the tracer provider globally. Tracers obtained earlier
// through otel.Tracer are delegates and switch over to it.
func (t *Tracing) Start() error {
	otel.SetTracerProvider(t.provider)
	t.logger.Info("tracing enabled", "endpoint", t.config.Endpoint, "service", t.config.ServiceName)
	return nil
}

// Stop flushes pending spans and shuts the provider down.
func (t *Tracing) Stop(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown: %w", err)
	}
	return nil
}
