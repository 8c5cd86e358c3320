package workersai

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/flemzord/wai/internal/provider"
)

const (
	testDirectBase  = "https://api.cloudflare.com/client/v4/accounts/ACC/ai/v1"
	testGatewayBase = "https://gateway.ai.cloudflare.com/v1/ACC/GW"
	testModel       = "@cf/meta/llama-3.1-8b-instruct"
	testAPIKey      = "cf-test-token-0123456789"
)

// rewriteTransport sends every request to target while leaving the path
// untouched, so Cloudflare hostnames can be served by an httptest server.
type rewriteTransport struct {
	target *url.URL
	base   http.RoundTripper
}

func (rt *rewriteTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.URL.Scheme = rt.target.Scheme
	r.URL.Host = rt.target.Host
	r.Host = ""
	return rt.base.RoundTrip(r)
}

// newTestServer creates an httptest.Server with the given handler and
// registers cleanup.
func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

// rewritingClient returns an HTTP client that routes to srv.
func rewritingClient(t *testing.T, srv *httptest.Server) *http.Client {
	t.Helper()
	target, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing server URL: %v", err)
	}
	return &http.Client{Transport: &rewriteTransport{target: target, base: srv.Client().Transport}}
}

// newTestClient builds a Client for baseURL whose requests land on srv.
// Pacing is disabled unless pace is non-nil.
func newTestClient(t *testing.T, srv *httptest.Server, baseURL string, pace *int) *Client {
	t.Helper()
	if pace == nil {
		pace = new(int)
	}
	c, err := New(Config{
		BaseURL:      baseURL,
		APIKey:       testAPIKey,
		StreamPaceMS: pace,
		Headers:      map[string]string{"X-Custom": "yes"},
	}, WithHTTPClient(rewritingClient(t, srv)), WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// bufferLogger returns a logger writing text records to a buffer.
func bufferLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// writeEvent writes one SSE event and flushes if possible. The first call
// marks the response as an event stream unless the handler set a type.
func writeEvent(w http.ResponseWriter, raw string) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/event-stream")
	}
	_, _ = w.Write([]byte(raw + "\n\n"))
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// recorder collects progress callbacks.
type recorder struct {
	mu        sync.Mutex
	fragments []string
}

func (r *recorder) record(fragment string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fragments = append(r.fragments, fragment)
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fragments...)
}

func userPayload(stream bool) provider.ChatPayload {
	return provider.ChatPayload{
		Model:    testModel,
		Stream:   stream,
		Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: "Hello"}},
	}
}

func intPtr(n int) *int { return &n }
