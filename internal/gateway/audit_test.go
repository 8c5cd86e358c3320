package gateway

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/flemzord/wai/internal/core"
	"github.com/flemzord/wai/internal/provider"
	"github.com/flemzord/wai/internal/provider/providertest"
	"github.com/flemzord/wai/internal/security"
	"github.com/flemzord/wai/internal/security/securitytest"
)

func TestAudit_CompletionsAndAuthFailures(t *testing.T) {
	t.Parallel()

	mock := &providertest.MockProvider{
		ChatCompletionFunc: func(context.Context, provider.ChatPayload, provider.ProgressFunc) (string, error) {
			return "hello", nil
		},
	}
	g, _ := newTestRouter(t, AuthConfig{BearerToken: "gateway-secret"}, mock)
	audit, events := securitytest.NewTestAuditLogger()
	g.audit = audit
	h := g.buildRouter()

	rr := do(t, h, http.MethodPost, "/v1/chat", chatBody)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}

	req := newChatRequest(chatBody)
	req.Header.Set("Authorization", "Bearer gateway-secret")
	rr = serve(h, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rr.Code, rr.Body.String())
	}

	got := events()
	if len(got) != 2 {
		t.Fatalf("audit events = %+v, want 2", got)
	}
	if got[0].Type != security.EventAuthFailure || got[0].Detail != "missing authorization header" {
		t.Errorf("events[0] = %+v", got[0])
	}
	done := got[1]
	if done.Type != security.EventCompletion || done.Outcome != "ok" || done.Model != "@cf/meta/llama-3.1-8b-instruct" {
		t.Errorf("events[1] = %+v", done)
	}
	if done.RequestID == "" {
		t.Error("completion event has no request id")
	}
}

func TestAudit_FileWrittenAndClosed(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "audit.jsonl")
	g := &Gateway{}
	g.config = Config{Bind: "127.0.0.1:0", Provider: testProviderService, AuditLog: path}
	g.config.defaults()
	if err := g.Provision(core.NewAppContext(discardLogger(), security.NewRedactor())); err != nil {
		t.Fatalf("Provision: %v", err)
	}
	mock := &providertest.MockProvider{
		ChatCompletionFunc: func(context.Context, provider.ChatPayload, provider.ProgressFunc) (string, error) {
			return "", &provider.Error{Kind: provider.ErrProtocol, StatusCode: 400}
		},
	}
	if err := g.bindProvider(mock); err != nil {
		t.Fatal(err)
	}

	rr := do(t, g.buildRouter(), http.MethodPost, "/v1/chat", chatBody)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
	if err := g.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = f.Close() }()

	var lines []security.AuditEvent
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev security.AuditEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		lines = append(lines, ev)
	}
	if len(lines) != 1 || lines[0].Outcome != "protocol" {
		t.Errorf("audit lines = %+v, want one protocol failure", lines)
	}
}

func TestAudit_ProvisionFailsOnBadPath(t *testing.T) {
	t.Parallel()

	g := &Gateway{}
	g.config = Config{AuditLog: filepath.Join(t.TempDir(), "missing", "dir", "audit.jsonl")}
	g.config.defaults()
	if err := g.Provision(core.NewAppContext(discardLogger(), nil)); err == nil {
		t.Fatal("Provision() succeeded with an unwritable audit log path")
	}
}
