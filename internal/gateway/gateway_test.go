package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/flemzord/wai/internal/core"
	"github.com/flemzord/wai/internal/provider/providertest"
)

func TestGateway_ModuleInfo(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	info := g.ModuleInfo()

	if info.ID != "gateway.http" {
		t.Errorf("ID = %q, want %q", info.ID, "gateway.http")
	}
	if info.New == nil {
		t.Fatal("New func is nil")
	}

	mod := info.New()
	if _, ok := mod.(*Gateway); !ok {
		t.Error("New() should return *Gateway")
	}
}

func TestGateway_ConfigureDefaults(t *testing.T) {
	t.Parallel()

	g := &Gateway{}

	node := mustYAMLNode(t, "{}")
	if err := g.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "127.0.0.1:8080" {
		t.Errorf("Bind = %q, want default", g.config.Bind)
	}
	if g.config.Provider != "provider.workersai" {
		t.Errorf("Provider = %q, want default", g.config.Provider)
	}
	if g.config.MaxBodyBytes != 1<<20 {
		t.Errorf("MaxBodyBytes = %d, want 1 MiB", g.config.MaxBodyBytes)
	}
	if g.config.ReadTimeout != 10*time.Second {
		t.Errorf("ReadTimeout = %v, want 10s", g.config.ReadTimeout)
	}
	if g.config.WriteTimeout != 10*time.Minute {
		t.Errorf("WriteTimeout = %v, want 10m", g.config.WriteTimeout)
	}
	if g.config.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 5s", g.config.ShutdownTimeout)
	}
}

func TestGateway_ConfigureCustom(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	node := mustYAMLNode(t, `
bind: "0.0.0.0:9090"
provider: provider.other
max_body_bytes: 4096
read_timeout: 5s
write_timeout: 15s
shutdown_timeout: 10s
auth:
  bearer_token: "my-token"
`)

	if err := g.Configure(node); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	if g.config.Bind != "0.0.0.0:9090" {
		t.Errorf("Bind = %q, want custom", g.config.Bind)
	}
	if g.config.Provider != "provider.other" {
		t.Errorf("Provider = %q", g.config.Provider)
	}
	if g.config.MaxBodyBytes != 4096 {
		t.Errorf("MaxBodyBytes = %d", g.config.MaxBodyBytes)
	}
	if g.config.WriteTimeout != 15*time.Second {
		t.Errorf("WriteTimeout = %v", g.config.WriteTimeout)
	}
	if g.config.Auth.BearerToken != "my-token" {
		t.Errorf("BearerToken = %q", g.config.Auth.BearerToken)
	}
}

func TestGateway_Provision(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	g.config.defaults()
	g.config.Auth.BearerToken = "gateway-secret-token"

	appCtx := core.NewAppContext(discardLogger(), nil)
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}

	if g.metrics == nil {
		t.Error("metrics should be initialized")
	}
	if _, ok := appCtx.Service("gateway.metrics"); !ok {
		t.Error("gateway.metrics not registered")
	}
	if got := appCtx.Redactor.Redact("auth gateway-secret-token"); strings.Contains(got, "gateway-secret-token") {
		t.Errorf("bearer token not registered with the redactor: %q", got)
	}
}

func TestGateway_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "good address", cfg: Config{Bind: "127.0.0.1:8080", Provider: "p"}},
		{name: "bad address", cfg: Config{Bind: "not a valid address::", Provider: "p"}, wantErr: true},
		{name: "no provider", cfg: Config{Bind: "127.0.0.1:8080"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := &Gateway{config: tt.cfg}
			if err := g.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGateway_StartStop(t *testing.T) {
	t.Parallel()

	mock := &providertest.MockProvider{
		HealthCheckFunc: func(context.Context) error { return nil },
	}
	g := newTestGateway(t, AuthConfig{}, mock)

	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp := doGet(t, "http://"+g.Addr()+"/health", "")
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" {
		t.Errorf("health.Status = %q, want %q", health.Status, "ok")
	}
	if health.Provider != testProviderService {
		t.Errorf("health.Provider = %q", health.Provider)
	}

	if err := g.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestGateway_StartRequiresProvider(t *testing.T) {
	t.Parallel()

	t.Run("missing", func(t *testing.T) {
		t.Parallel()

		g := newTestGateway(t, AuthConfig{}, nil)
		if err := g.Start(); err == nil {
			_ = g.Stop(context.Background())
			t.Fatal("Start() succeeded without a provider service")
		}
	})

	t.Run("wrong type", func(t *testing.T) {
		t.Parallel()

		g := newTestGateway(t, AuthConfig{}, "not a provider")
		if err := g.Start(); err == nil {
			_ = g.Stop(context.Background())
			t.Fatal("Start() succeeded with an incompatible service")
		}
	})
}

func TestGateway_APIWithAuth(t *testing.T) {
	t.Parallel()

	mock := &providertest.MockProvider{
		ListModelsFunc:  func(context.Context) []string { return []string{"m"} },
		HealthCheckFunc: func(context.Context) error { return nil },
	}
	g := newTestGateway(t, AuthConfig{BearerToken: "test-token"}, mock)
	if err := g.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	stopGateway(t, g)

	base := "http://" + g.Addr()

	// Without token → 401.
	resp := doGet(t, base+"/v1/models", "")
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no-auth status = %d, want %d", resp.StatusCode, http.StatusUnauthorized)
	}

	// With valid token → 200.
	resp2 := doGet(t, base+"/v1/models", "test-token")
	_ = resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("auth status = %d, want %d", resp2.StatusCode, http.StatusOK)
	}

	// Health and metrics stay public.
	for _, path := range []string{"/health", "/metrics"} {
		resp := doGet(t, base+path, "")
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, resp.StatusCode, http.StatusOK)
		}
	}
}

func TestGateway_StopNilServer(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	if err := g.Stop(context.Background()); err != nil {
		t.Errorf("Stop on nil server should not error: %v", err)
	}
}
