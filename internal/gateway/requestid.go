package gateway

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/flemzord/wai/internal/provider"
)

const (
	requestIDHeader   = "X-Request-ID"
	maxRequestIDBytes = 128
)

// requestID assigns every request an ID, reusing a sane incoming
// X-Request-ID. The ID is echoed in the response and stored in the
// context, where providers pick it up.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > maxRequestIDBytes {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(provider.WithRequestID(r.Context(), id)))
	})
}
