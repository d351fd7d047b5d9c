package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jassnet/Fraudhunter/internal/auth"
)

// minFailureDuration is the least time a rejected request takes, so
// failures cannot be timed.
const minFailureDuration = 200 * time.Millisecond

// TokenVerifier checks a bearer token.
type TokenVerifier interface {
	Verify(token string) bool
}

// AuthConfig configures AdminAuth.
type AuthConfig struct {
	Logger *slog.Logger
	// Verifier is nil when no admin token is configured; every request
	// then passes.
	Verifier TokenVerifier
}

// AdminAuth requires "Authorization: Bearer <admin token>".
func AdminAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if cfg.Verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			token := bearerToken(r)

			if token == "" || !cfg.Verifier.Verify(token) {
				reason := "invalid_token"
				if token == "" {
					reason = "missing_token"
				}
				cfg.Logger.Warn("authentication failed",
					slog.String("reason", reason),
					slog.String("ip", clientIP(r)),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				if elapsed := time.Since(start); elapsed < minFailureDuration {
					time.Sleep(minFailureDuration - elapsed)
				}
				writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or missing admin token")
				return
			}

			ctx := auth.ContextWithPrincipal(r.Context(), auth.Principal{Fingerprint: auth.Fingerprint(token)})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
