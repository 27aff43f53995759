package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/rhuss/copilot-bridge/pkg/api"
	"github.com/rhuss/copilot-bridge/pkg/debug"
	"github.com/rhuss/copilot-bridge/pkg/observability"
)

// DefaultBypassEndpoints lists paths that skip authentication and rate
// limiting.
var DefaultBypassEndpoints = []string{"/health", "/metrics"}

// Middleware creates HTTP middleware from an AuthChain and an optional
// RateLimiter. Rejections use the bridge's {"error": "..."} body.
func Middleware(chain *AuthChain, limiter RateLimiter, bypassEndpoints []string) func(http.Handler) http.Handler {
	bypass := make(map[string]bool, len(bypassEndpoints))
	for _, ep := range bypassEndpoints {
		bypass[ep] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if bypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			result := chain.Authenticate(r.Context(), r)

			if result.Decision != Yes || result.Identity == nil {
				slog.Warn("authentication failed",
					"path", r.URL.Path,
					"remote_addr", r.RemoteAddr,
					"error", result.Err,
				)
				writeError(w, http.StatusUnauthorized, ErrUnauthenticated.Error())
				return
			}

			if result.Identity.Subject == "" {
				slog.Error("authenticator returned identity with empty subject", "method", result.Identity.Method)
				writeError(w, http.StatusInternalServerError, "internal authentication error")
				return
			}

			debug.Log("auth", "authenticated",
				"subject", result.Identity.Subject,
				"method", result.Identity.Method,
				"path", r.URL.Path,
			)

			if limiter != nil {
				if err := limiter.Allow(r.Context(), result.Identity); err != nil {
					slog.Warn("rate limit exceeded",
						"subject", result.Identity.Subject,
						"backend", limiter.Backend(),
					)
					observability.RateLimitRejectedTotal.WithLabelValues(limiter.Backend()).Inc()
					writeError(w, http.StatusTooManyRequests, ErrTooManyRequests.Error())
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), result.Identity)))
		})
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: msg})
}
