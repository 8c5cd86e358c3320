package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/wai/internal/core"
	"github.com/flemzord/wai/internal/provider/providertest"
)

const testProviderService = "provider.mock"

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newTestGateway returns a provisioned gateway listening on a random port
// once started. A non-nil svc is registered as the provider service.
func newTestGateway(t *testing.T, auth AuthConfig, svc any) *Gateway {
	t.Helper()
	appCtx := core.NewAppContext(discardLogger(), nil)
	if svc != nil {
		appCtx.RegisterService(testProviderService, svc)
	}

	g := &Gateway{}
	g.config = Config{
		Bind:            "127.0.0.1:0",
		Provider:        testProviderService,
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    5 * time.Second,
		ShutdownTimeout: 2 * time.Second,
		Auth:            auth,
	}
	g.config.defaults()
	if err := g.Provision(appCtx); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	return g
}

// newTestRouter returns the gateway router bound to mock, without a listener.
func newTestRouter(t *testing.T, auth AuthConfig, mock *providertest.MockProvider) (*Gateway, http.Handler) {
	t.Helper()
	g := newTestGateway(t, auth, nil)
	if err := g.bindProvider(mock); err != nil {
		t.Fatalf("bindProvider: %v", err)
	}
	g.startedAt = time.Now()
	return g, g.buildRouter()
}

// do sends a request through h and returns the recorded response.
func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// doGet makes a GET request with context against a running gateway.
func doGet(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

// mustYAMLNode parses YAML text into a *yaml.Node for Configure calls.
func mustYAMLNode(t *testing.T, text string) *yaml.Node {
	t.Helper()
	var node yaml.Node
	if err := yaml.Unmarshal([]byte(text), &node); err != nil {
		t.Fatalf("YAML parse: %v", err)
	}
	if len(node.Content) > 0 {
		return node.Content[0]
	}
	return &node
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func stopGateway(t *testing.T, g *Gateway) {
	t.Helper()
	t.Cleanup(func() { _ = g.Stop(context.Background()) })
}

// newChatRequest builds a POST /v1/chat request carrying body.
func newChatRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}
