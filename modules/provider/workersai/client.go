package workersai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/wai/internal/provider"
	"github.com/flemzord/wai/internal/telemetry"
)

// runResponse is the Cloudflare envelope of a non-streaming run.
type runResponse struct {
	Success bool `json:"success"`
	Result  struct {
		Response string `json:"response"`
	} `json:"result"`
	Errors []apiMessage `json:"errors"`
}

// ChatCompletion runs payload against {run address}/{model}. When
// payload.Model is empty the configured model is used.
//
// Without payload.Stream the call blocks for the whole reply and onProgress
// is never invoked. With it, onProgress receives each non-empty fragment
// in arrival order followed by provider.DoneSentinel once, and the
// concatenated text is returned.
//
// Failures are *provider.Error values. Nothing is retried.
func (c *Client) ChatCompletion(ctx context.Context, payload provider.ChatPayload, onProgress provider.ProgressFunc) (text string, err error) {
	s := c.settings.Load()
	if s == nil {
		return "", errNotConfigured("workersai: chat completion")
	}
	if payload.Model == "" {
		payload.Model = s.config.Model
	}
	if payload.Model == "" {
		return "", &provider.Error{
			Kind: provider.ErrConfiguration,
			Op:   "workersai: chat completion",
			Err:  errors.New("no model in payload and none configured"),
		}
	}

	operation := "chat"
	if payload.Stream {
		operation = "chat_stream"
	}

	ctx, span := tracer.Start(ctx, "workersai.chat_completion",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("workersai.model", payload.Model),
			attribute.String("workersai.topology", s.topology.String()),
			attribute.Bool("workersai.stream", payload.Stream),
		),
	)
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		outcome := telemetry.Outcome(err)
		telemetry.ProviderRequestsTotal.WithLabelValues(operation, s.topology.String(), outcome).Inc()
		telemetry.ProviderLatency.WithLabelValues(operation, s.topology.String()).Observe(elapsed.Seconds())

		logger := c.log().With("model", payload.Model, "stream", payload.Stream)
		if id := provider.RequestID(ctx); id != "" {
			logger = logger.With("request_id", id)
		}
		switch {
		case err == nil:
			span.SetAttributes(attribute.Int("workersai.response_chars", len(text)))
			logger.Debug("chat completion done", "latency", elapsed, "chars", len(text))
		case provider.IsCancelled(err):
			span.SetStatus(codes.Error, outcome)
			logger.Debug("chat completion cancelled", "latency", elapsed)
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
			logger.Warn("chat completion failed", "error", err, "status", provider.StatusCode(err))
		}
		span.End()
	}()

	if payload.Stream {
		return c.stream(ctx, s, payload, onProgress)
	}
	return c.complete(ctx, s, payload)
}

// complete performs a blocking run. It succeeds only on a 200 whose
// envelope reports success.
func (c *Client) complete(ctx context.Context, s *settings, payload provider.ChatPayload) (string, error) {
	const op = "workersai: chat completion"

	resp, err := c.doRequest(ctx, s, payload, op)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", protocolError(op, resp.StatusCode, readErrorBody(resp.Body), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError(ctx, op, provider.ErrTransport, err)
	}

	var rr runResponse
	if err := json.Unmarshal(body, &rr); err != nil {
		return "", protocolError(op, resp.StatusCode, body, fmt.Errorf("decoding response: %w", err))
	}
	if !rr.Success {
		cause := joinMessages(rr.Errors)
		if cause == nil {
			cause = errors.New("response reports success=false")
		}
		return "", protocolError(op, resp.StatusCode, body, cause)
	}
	return rr.Result.Response, nil
}

// doRequest POSTs payload to the run address of its model.
func (c *Client) doRequest(ctx context.Context, s *settings, payload provider.ChatPayload, op string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &provider.Error{Kind: provider.ErrConfiguration, Op: op, Err: fmt.Errorf("encoding payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.runURL+"/"+payload.Model, bytes.NewReader(body))
	if err != nil {
		return nil, &provider.Error{Kind: provider.ErrConfiguration, Op: op, Err: err}
	}
	for k, v := range s.header {
		req.Header[k] = v
	}
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	if payload.Stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	if id := provider.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, op, provider.ErrTransport, err)
	}
	return resp, nil
}
