// Package gateway exposes a chat provider over HTTP: health, Prometheus
// metrics, model listing and chat completions, streamed as server-sent
// events when the request asks for it.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/wai/internal/core"
	"github.com/flemzord/wai/internal/provider"
	"github.com/flemzord/wai/internal/security"
)

// ModuleID is the module name of the HTTP gateway.
const ModuleID = "gateway.http"

func init() {
	core.RegisterModule(&Gateway{})
}

// Interface guards.
var (
	_ core.Configurable = (*Gateway)(nil)
	_ core.Provisioner  = (*Gateway)(nil)
	_ core.Validator    = (*Gateway)(nil)
	_ core.Starter      = (*Gateway)(nil)
	_ core.Stopper      = (*Gateway)(nil)
)

// Gateway is the HTTP gateway module. It is a leaf module: nothing imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	addr      string
	metrics   *Metrics
	limiter   *security.RateLimiter
	audit     *security.AuditLogger
	auditFile *os.File
	startedAt time.Time

	// Resolved at Start() via the service registry.
	completer provider.ChatCompleter
	lister    provider.ModelLister
	checker   provider.HealthChecker
	defaulter provider.ModelDefaulter
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ModuleID,
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return fmt.Errorf("gateway: decoding config: %w", err)
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger
	g.metrics = &Metrics{}
	g.limiter = security.NewRateLimiter(g.config.RateLimit)

	ctx.Redactor.AddLiteral(g.config.Auth.BearerToken)
	ctx.Redactor.AddLiteral(g.config.Auth.BasicPass)

	if g.config.AuditLog != "" {
		f, err := os.OpenFile(g.config.AuditLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("gateway: opening audit log: %w", err)
		}
		g.auditFile = f
		g.audit = security.NewAuditLogger(security.AuditLoggerConfig{Writer: f, Redactor: ctx.Redactor})
	}

	ctx.RegisterService("gateway.metrics", g.metrics)
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	if g.config.Provider == "" {
		return errors.New("gateway: provider is required")
	}
	return nil
}

// Start implements core.Starter. It binds the provider from the service
// registry and starts the HTTP server.
func (g *Gateway) Start() error {
	svc, ok := g.appCtx.Service(g.config.Provider)
	if !ok {
		return fmt.Errorf("gateway: provider service %q is not registered", g.config.Provider)
	}
	if err := g.bindProvider(svc); err != nil {
		return err
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}
	g.addr = ln.Addr().String()

	go func() {
		g.logger.Info("gateway listening", "addr", g.addr, "provider", g.config.Provider)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
// The audit log is closed once in-flight requests are done.
func (g *Gateway) Stop(ctx context.Context) error {
	var err error
	if g.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
		defer cancel()

		g.logger.Info("gateway shutting down")
		err = g.server.Shutdown(shutdownCtx)
		g.server = nil
	}
	if g.auditFile != nil {
		if cerr := g.auditFile.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("gateway: closing audit log: %w", cerr))
		}
		g.auditFile = nil
	}
	return err
}

// Addr returns the address the server listens on, once started.
func (g *Gateway) Addr() string {
	return g.addr
}

// bindProvider picks up the interfaces svc implements. Chat is mandatory;
// listing and health checks are optional.
func (g *Gateway) bindProvider(svc any) error {
	completer, ok := svc.(provider.ChatCompleter)
	if !ok {
		return fmt.Errorf("gateway: service %q (%T) cannot complete chats", g.config.Provider, svc)
	}
	g.completer = completer
	g.lister, _ = svc.(provider.ModelLister)
	g.checker, _ = svc.(provider.HealthChecker)
	g.defaulter, _ = svc.(provider.ModelDefaulter)
	return nil
}
