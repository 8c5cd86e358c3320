package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/flemzord/wai/internal/config"
	"github.com/flemzord/wai/internal/gateway"
	"github.com/flemzord/wai/internal/provider"
	"github.com/flemzord/wai/internal/provider/providertest"
	"github.com/flemzord/wai/modules/provider/workersai"
)

func testCommand() (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	return cmd, &out
}

func TestRunChat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		stream bool
		mock   *providertest.MockProvider
		want   string
	}{
		{
			name:   "streamed fragments without sentinel",
			stream: true,
			mock:   &providertest.MockProvider{ChatCompletionFunc: providertest.StreamFragments("Hel", "lo")},
			want:   "Hello\n",
		},
		{
			name: "blocking reply",
			mock: &providertest.MockProvider{
				ChatCompletionFunc: func(context.Context, provider.ChatPayload, provider.ProgressFunc) (string, error) {
					return "whole", nil
				},
			},
			want: "whole\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd, out := testCommand()
			payload := provider.ChatPayload{Stream: tt.stream, Messages: buildMessages("", "hi")}
			if err := runChat(t.Context(), tt.mock, payload, cmd); err != nil {
				t.Fatalf("runChat() error = %v", err)
			}
			if got := out.String(); got != tt.want {
				t.Errorf("output = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunChat_Errors(t *testing.T) {
	t.Parallel()

	diag := map[string]any{"success": false}
	mock := &providertest.MockProvider{
		ChatCompletionFunc: func(context.Context, provider.ChatPayload, provider.ProgressFunc) (string, error) {
			return "", &provider.Error{Kind: provider.ErrProtocol, StatusCode: 400, Diagnostic: diag}
		},
	}
	cmd, _ := testCommand()
	err := runChat(t.Context(), mock, provider.ChatPayload{}, cmd)
	if !errors.Is(err, provider.ErrProtocol) {
		t.Fatalf("runChat() error = %v, want ErrProtocol", err)
	}
	if !strings.Contains(err.Error(), "upstream: map[success:false]") {
		t.Errorf("error = %q, want the diagnostic", err)
	}

	cancelled := &providertest.MockProvider{
		ChatCompletionFunc: func(ctx context.Context, _ provider.ChatPayload, _ provider.ProgressFunc) (string, error) {
			return "", &provider.Error{Kind: provider.ErrCancelled, Err: context.Canceled}
		},
	}
	if err := runChat(t.Context(), cancelled, provider.ChatPayload{}, cmd); err == nil || err.Error() != "interrupted" {
		t.Errorf("runChat() error = %v, want interrupted", err)
	}
}

func TestBuildMessages(t *testing.T) {
	t.Parallel()

	msgs := buildMessages("be brief", "hi")
	if len(msgs) != 2 || msgs[0].Role != provider.MessageRoleSystem || msgs[1].Content != "hi" {
		t.Errorf("buildMessages() = %+v", msgs)
	}
	if msgs := buildMessages("", "hi"); len(msgs) != 1 || msgs[0].Role != provider.MessageRoleUser {
		t.Errorf("buildMessages() without system = %+v", msgs)
	}
}

func TestValidateBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		wantErr bool
	}{
		{in: "https://api.cloudflare.com/client/v4/accounts/ACC/ai/v1"},
		{in: "https://gateway.ai.cloudflare.com/v1/ACC/GW"},
		{in: "https://llm.example.com/v1", wantErr: true},
		{in: "ftp://api.cloudflare.com/x", wantErr: true},
		{in: "not a url", wantErr: true},
	}

	for _, tt := range tests {
		if err := validateBaseURL(tt.in); (err != nil) != tt.wantErr {
			t.Errorf("validateBaseURL(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
	}
}

// Not parallel: sets CLOUDFLARE_API_TOKEN.
func TestRenderConfig_RoundTrip(t *testing.T) {
	t.Setenv("CLOUDFLARE_API_TOKEN", "from-env-token")

	raw, err := renderConfig(setupAnswers{
		BaseURL:     "https://gateway.ai.cloudflare.com/v1/ACC/GW",
		APIKey:      "typed-token",
		Model:       "@cf/meta/llama-3.1-8b-instruct",
		GatewayBind: "127.0.0.1:9090",
	})
	if err != nil {
		t.Fatalf("renderConfig() error = %v", err)
	}
	if strings.Contains(string(raw), "typed-token") {
		t.Fatalf("token written although StoreKey is false:\n%s", raw)
	}

	cfg, err := config.Parse(raw)
	if err != nil {
		t.Fatalf("config.Parse() error = %v\n%s", err, raw)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("config.Validate() error = %v", err)
	}

	node, ok := cfg.Modules[workersai.ModuleID]
	if !ok {
		t.Fatalf("modules = %v, want %s", cfg.Modules, workersai.ModuleID)
	}
	var wcfg workersai.Config
	if err := node.Decode(&wcfg); err != nil {
		t.Fatal(err)
	}
	if wcfg.APIKey != "from-env-token" || wcfg.Model != "@cf/meta/llama-3.1-8b-instruct" {
		t.Errorf("provider config = %+v", wcfg)
	}
	if _, ok := cfg.Modules[gateway.ModuleID]; !ok {
		t.Errorf("gateway section missing")
	}
}

func TestRenderConfig_StoredKeyNoGateway(t *testing.T) {
	t.Parallel()

	raw, err := renderConfig(setupAnswers{
		BaseURL:  "https://api.cloudflare.com/client/v4/accounts/ACC/ai/v1",
		APIKey:   "typed-token",
		StoreKey: true,
	})
	if err != nil {
		t.Fatalf("renderConfig() error = %v", err)
	}
	s := string(raw)
	if !strings.Contains(s, "api_key: typed-token") {
		t.Errorf("stored key missing:\n%s", s)
	}
	if strings.Contains(s, gateway.ModuleID) || strings.Contains(s, "model:") {
		t.Errorf("unexpected sections:\n%s", s)
	}
}

func TestPrintModules(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	printModules(&out)
	s := out.String()

	for _, want := range []string{
		"  gateway:\n    " + gateway.ModuleID + "\n",
		"  provider:\n    " + workersai.ModuleID + "\n",
		"  telemetry:\n    telemetry.otel\n",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("output missing %q:\n%s", want, s)
		}
	}
}

func TestResolve_BrokenConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "wai.yaml")
	if err := os.WriteFile(path, []byte("modules: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var stderr bytes.Buffer
	cmd := &cobra.Command{}
	cmd.Flags().String("config", path, "")
	cmd.SetErr(&stderr)

	flags := providerFlags{
		baseURL: "https://api.cloudflare.com/client/v4/accounts/ACC/ai/v1",
		apiKey:  "flag-token",
	}
	wcfg, logger, err := flags.resolve(cmd)
	if err != nil {
		t.Fatalf("resolve() error = %v", err)
	}
	if logger == nil || wcfg.APIKey != "flag-token" {
		t.Fatalf("resolve() = %+v, logger %v", wcfg, logger)
	}
	if !strings.Contains(stderr.String(), "ignoring config file") || !strings.Contains(stderr.String(), path) {
		t.Errorf("stderr = %q, want a warning naming %s", stderr.String(), path)
	}

	flags.baseURL = ""
	if _, _, err := flags.resolve(cmd); err == nil {
		t.Error("resolve() without a base URL succeeded")
	}
}
