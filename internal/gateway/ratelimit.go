package gateway

import (
	"net"
	"net/http"

	"github.com/flemzord/wai/internal/provider"
	"github.com/flemzord/wai/internal/security"
)

// rateLimit refuses requests from clients that have used their budget.
// Clients are keyed by remote IP; forwarded headers are not trusted.
func (g *Gateway) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientKey(r)
		if err := g.limiter.Allow(client); err != nil {
			g.logger.Warn("gateway rate limit hit",
				"request_id", provider.RequestID(r.Context()),
				"client", client,
				"path", r.URL.Path,
			)
			g.audit.Log(security.AuditEvent{
				Type:      security.EventRateLimit,
				RequestID: provider.RequestID(r.Context()),
				Client:    client,
				Metadata:  map[string]string{"path": r.URL.Path},
			})
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey identifies the caller for rate limiting and auditing.
func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
