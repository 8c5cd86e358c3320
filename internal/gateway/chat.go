package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flemzord/wai/internal/provider"
	"github.com/flemzord/wai/internal/security"
	"github.com/flemzord/wai/internal/telemetry"
)

// statusClientClosedRequest is the de facto status for requests the client
// abandoned. It is only ever logged and counted.
const statusClientClosedRequest = 499

// ChatResponse is the JSON response for a non-streaming POST /v1/chat.
type ChatResponse struct {
	Model    string `json:"model,omitempty"`
	Response string `json:"response"`
}

// ErrorResponse is the JSON body of every gateway error.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request. Kind is one of the provider
// outcome labels or a gateway-level code such as "invalid_request".
type ErrorDetail struct {
	Kind           string `json:"kind"`
	Message        string `json:"message"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	Diagnostic     any    `json:"diagnostic,omitempty"`
}

// streamEvent is the data of a fragment event sent to gateway clients.
// It mirrors the provider's own event shape.
type streamEvent struct {
	Response string `json:"response"`
}

// handleChat returns an http.HandlerFunc for POST /v1/chat. The body is a
// chat payload forwarded to the provider. With "stream": true the reply is
// relayed as server-sent events ending in "data: [DONE]".
func (g *Gateway) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, g.config.MaxBodyBytes)

		raw, err := io.ReadAll(r.Body)
		if err != nil {
			status := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			writeError(w, status, "invalid_request", "reading request body: "+err.Error())
			return
		}
		if err := security.ValidateJSONDepth(raw, g.config.MaxJSONDepth); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		var payload provider.ChatPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "decoding request body: "+err.Error())
			return
		}
		if len(payload.Messages) == 0 && payload.Params["prompt"] == nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "messages or prompt is required")
			return
		}

		if payload.Model == "" && g.defaulter != nil {
			payload.Model = g.defaulter.DefaultModel()
		}

		if payload.Stream {
			g.streamChat(w, r, payload)
			return
		}

		start := time.Now()
		text, err := g.completer.ChatCompletion(r.Context(), payload, nil)
		g.auditCompletion(r, payload, err)
		if err != nil {
			g.chatFailed(r, err)
			writeProviderError(w, err)
			return
		}
		g.metrics.RecordCompletion(time.Since(start), false)
		writeJSON(w, http.StatusOK, ChatResponse{Model: payload.Model, Response: text})
	}
}

// streamChat relays progress fragments as they arrive. Headers go out with
// the first fragment, so a failure to open the provider stream still gets
// a regular JSON error; later failures become an "error" event.
func (g *Gateway) streamChat(w http.ResponseWriter, r *http.Request, payload provider.ChatPayload) {
	rc := http.NewResponseController(w)
	started := false
	var writeErr error

	onProgress := func(fragment string) {
		if writeErr != nil {
			return
		}
		if !started {
			started = true
			h := w.Header()
			h.Set("Content-Type", "text/event-stream")
			h.Set("Cache-Control", "no-cache")
			h.Set("X-Accel-Buffering", "no")
			w.WriteHeader(http.StatusOK)
		}

		data := provider.DoneSentinel
		if fragment != provider.DoneSentinel {
			b, _ := json.Marshal(streamEvent{Response: fragment})
			data = string(b)
		}
		if writeErr = writeSSE(w, "", data); writeErr == nil {
			writeErr = rc.Flush()
		}
	}

	start := time.Now()
	_, err := g.completer.ChatCompletion(r.Context(), payload, onProgress)
	g.auditCompletion(r, payload, err)
	if err != nil {
		g.chatFailed(r, err)
		if !started {
			writeProviderError(w, err)
			return
		}
		if provider.IsCancelled(err) || writeErr != nil {
			return
		}
		_, detail := classify(err)
		b, _ := json.Marshal(ErrorResponse{Error: detail})
		if writeSSE(w, "error", string(b)) == nil {
			_ = rc.Flush()
		}
		return
	}

	if writeErr != nil {
		g.logger.Debug("gateway client went away mid-stream",
			"request_id", provider.RequestID(r.Context()), "error", writeErr)
	}
	g.metrics.RecordCompletion(time.Since(start), true)
}

// chatFailed logs and counts a failed completion.
func (g *Gateway) chatFailed(r *http.Request, err error) {
	id := provider.RequestID(r.Context())
	if provider.IsCancelled(err) {
		g.metrics.RecordCancelled()
		g.logger.Debug("chat request cancelled", "request_id", id)
		return
	}
	g.metrics.RecordError()
	g.logger.Warn("chat request failed",
		"request_id", id,
		"kind", telemetry.Outcome(err),
		"upstream_status", provider.StatusCode(err),
		"error", err,
	)
}

func (g *Gateway) auditCompletion(r *http.Request, payload provider.ChatPayload, err error) {
	event := security.AuditEvent{
		Type:      security.EventCompletion,
		RequestID: provider.RequestID(r.Context()),
		Client:    clientKey(r),
		Model:     payload.Model,
		Outcome:   telemetry.Outcome(err),
	}
	if payload.Stream {
		event.Metadata = map[string]string{"stream": "true"}
	}
	g.audit.Log(event)
}

// classify maps a provider error to an HTTP status and error detail.
func classify(err error) (int, ErrorDetail) {
	detail := ErrorDetail{
		Kind:           telemetry.Outcome(err),
		Message:        err.Error(),
		UpstreamStatus: provider.StatusCode(err),
	}
	var pe *provider.Error
	if errors.As(err, &pe) {
		detail.Diagnostic = pe.Diagnostic
	}

	switch detail.Kind {
	case telemetry.OutcomeConfiguration:
		return http.StatusBadRequest, detail
	case telemetry.OutcomeProtocol, telemetry.OutcomeStream, telemetry.OutcomeTransport:
		return http.StatusBadGateway, detail
	case telemetry.OutcomeCancelled:
		return statusClientClosedRequest, detail
	default:
		return http.StatusInternalServerError, detail
	}
}

func writeProviderError(w http.ResponseWriter, err error) {
	status, detail := classify(err)
	writeJSON(w, status, ErrorResponse{Error: detail})
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorDetail{Kind: kind, Message: message}})
}

// writeSSE writes one server-sent event. data must not contain newlines.
func writeSSE(w io.Writer, event, data string) error {
	if event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
