package workersai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/flemzord/wai/internal/provider"
)

// maxErrorBody caps how much of an error response is kept for diagnostics.
const maxErrorBody = 64 * 1024

// apiMessage is an entry of the errors or messages array of a Cloudflare
// API envelope.
type apiMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// joinMessages folds API error entries into one error, or nil.
func joinMessages(msgs []apiMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Code != 0 {
			parts = append(parts, m.Message+" (code "+strconv.Itoa(m.Code)+")")
			continue
		}
		parts = append(parts, m.Message)
	}
	return errors.New(strings.Join(parts, "; "))
}

// protocolError builds an ErrProtocol carrying the raw body and, when the
// body is JSON, its decoded form.
func protocolError(op string, status int, body []byte, cause error) *provider.Error {
	e := &provider.Error{
		Kind:       provider.ErrProtocol,
		Op:         op,
		StatusCode: status,
		Body:       string(body),
		Err:        cause,
	}
	var diag any
	if len(body) > 0 && json.Unmarshal(body, &diag) == nil {
		e.Diagnostic = diag
		if cause == nil {
			var env struct {
				Errors []apiMessage `json:"errors"`
			}
			if json.Unmarshal(body, &env) == nil {
				e.Err = joinMessages(env.Errors)
			}
		}
	}
	return e
}

// readErrorBody reads at most maxErrorBody bytes of an error response.
func readErrorBody(r io.Reader) []byte {
	data, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	return data
}

// transportError classifies a failure to reach the provider or to read its
// response: the caller's context ending is a cancellation, anything else
// is kind.
func transportError(ctx context.Context, op string, kind, err error) *provider.Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return cancelledError(op, ctxErr)
	}
	return &provider.Error{Kind: kind, Op: op, Err: err}
}

func cancelledError(op string, err error) *provider.Error {
	return &provider.Error{Kind: provider.ErrCancelled, Op: op, Err: err}
}
