package gateway

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/flemzord/wai/internal/provider"
	"github.com/flemzord/wai/internal/security"
)

// authMiddleware returns a chi-compatible middleware that validates Bearer token
// or Basic auth credentials using constant-time comparison. Failures are
// logged at warn level and audited, without the presented credentials.
func authMiddleware(cfg AuthConfig, logger *slog.Logger, audit *security.AuditLogger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				logAuthFailure(logger, audit, r, "missing authorization header")
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing credentials")
				return
			}

			// Try Bearer token first.
			if cfg.BearerToken != "" {
				if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
					if constantTimeEqual(after, cfg.BearerToken) {
						next.ServeHTTP(w, r)
						return
					}
				}
			}

			// Try Basic auth.
			if cfg.BasicUser != "" && cfg.BasicPass != "" {
				user, pass, ok := r.BasicAuth()
				if ok && constantTimeEqual(user, cfg.BasicUser) && constantTimeEqual(pass, cfg.BasicPass) {
					next.ServeHTTP(w, r)
					return
				}
			}

			logAuthFailure(logger, audit, r, "invalid credentials")
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid credentials")
		})
	}
}

func logAuthFailure(logger *slog.Logger, audit *security.AuditLogger, r *http.Request, detail string) {
	logger.Warn("gateway auth failed",
		"detail", detail,
		"remote_addr", r.RemoteAddr,
		"method", r.Method,
		"path", r.URL.Path,
	)
	audit.Log(security.AuditEvent{
		Type:      security.EventAuthFailure,
		RequestID: provider.RequestID(r.Context()),
		Client:    clientKey(r),
		Detail:    detail,
		Metadata:  map[string]string{"path": r.URL.Path},
	})
}

// constantTimeEqual compares two strings in constant time.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
