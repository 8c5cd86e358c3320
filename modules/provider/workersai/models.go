package workersai

import (
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

// TextGenerationTask is the task name of the models FetchModels keeps.
const TextGenerationTask = "Text Generation"

// proxyHint is logged with every listing failure. Users often front Workers
// AI with a proxy whose endpoint name starts with "cloudflare", and such a
// proxy may misroute the models search.
const proxyHint = `if base_url points at a proxy rather than Cloudflare, an endpoint whose name begins with "cloudflare" may be misrouting requests`

// defaultModelsClient serves FetchModels calls that bring no client, so
// repeated listings share one connection pool.
var defaultModelsClient = newHTTPClient(30 * time.Second)

func (o options) modelsClient() *http.Client {
	if o.client != nil {
		return o.client
	}
	return defaultModelsClient
}

// modelEntry is one element of the models search result.
type modelEntry struct {
	Name string `json:"name"`
	Task struct {
		Name string `json:"name"`
	} `json:"task"`
}

// searchResponse is the Cloudflare envelope of a models search.
type searchResponse struct {
	Success bool         `json:"success"`
	Result  []modelEntry `json:"result"`
	Errors  []apiMessage `json:"errors"`
}

// FetchModels lists the text-generation models visible to apiKey, in the
// order the provider returns them. It needs no Client and never fails: an
// empty baseURL or apiKey returns an empty list without any I/O, and every
// other failure is logged at warn level and also yields an empty list.
func FetchModels(ctx context.Context, baseURL, apiKey string, opts ...Option) []string {
	if baseURL == "" || apiKey == "" {
		return nil
	}

	o := buildOptions(opts)
	models, err := searchModels(ctx, o.modelsClient(), baseURL, apiKey)
	if err != nil {
		o.logger.Warn("fetching workersai models failed",
			"error", err,
			"status", provider.StatusCode(err),
			"hint", proxyHint,
		)
		return nil
	}
	return models
}

// searchModels performs the models search and reports failures.
func searchModels(ctx context.Context, client *http.Client, baseURL, apiKey string) (models []string, err error) {
	const op = "workersai: models search"

	endpoint, topology, err := ResolveEndpoint(baseURL, OperationModelsSearch)
	if err != nil {
		telemetry.ProviderRequestsTotal.WithLabelValues("models", topology.String(), telemetry.Outcome(err)).Inc()
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "workersai.models_search",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("workersai.topology", topology.String())),
	)
	start := time.Now()
	defer func() {
		outcome := telemetry.Outcome(err)
		telemetry.ProviderRequestsTotal.WithLabelValues("models", topology.String(), outcome).Inc()
		telemetry.ProviderLatency.WithLabelValues("models", topology.String()).Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		} else {
			span.SetAttributes(attribute.Int("workersai.models", len(models)))
		}
		span.End()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &provider.Error{Kind: provider.ErrConfiguration, Op: op, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, transportError(ctx, op, provider.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, protocolError(op, resp.StatusCode, readErrorBody(resp.Body), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, op, provider.ErrTransport, err)
	}

	var sr searchResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, protocolError(op, resp.StatusCode, body, fmt.Errorf("decoding response: %w", err))
	}
	if !sr.Success {
		cause := joinMessages(sr.Errors)
		if cause == nil {
			cause = errors.New("response reports success=false")
		}
		return nil, protocolError(op, resp.StatusCode, body, cause)
	}

	models = make([]string, 0, len(sr.Result))
	for _, m := range sr.Result {
		if m.Task.Name == TextGenerationTask {
			models = append(models, m.Name)
		}
	}
	return models, nil
}
