package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/af-corp/aegis-ids/internal/httputil"
	"github.com/af-corp/aegis-ids/internal/telemetry"
)

// HeaderToken carries the access token.
const HeaderToken = "x-access-token"

// Middleware returns a chi middleware that requires a valid access token.
func Middleware(issuer *Issuer, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			token := r.Header.Get(HeaderToken)
			if token == "" {
				slog.Warn("unauthorized access attempt", "request_id", reqID, "remote_addr", r.RemoteAddr)
				metrics.RecordRejection("auth")
				httputil.WriteAuthError(w, reqID, "token is missing")
				return
			}

			info, err := issuer.Verify(token)
			if err != nil {
				metrics.RecordRejection("auth")
				if errors.Is(err, ErrTokenExpired) {
					slog.Warn("expired token used", "request_id", reqID, "remote_addr", r.RemoteAddr)
					httputil.WriteAuthError(w, reqID, "token expired")
					return
				}
				slog.Warn("invalid token attempt", "request_id", reqID, "remote_addr", r.RemoteAddr, "error", err)
				httputil.WriteAuthError(w, reqID, "invalid token")
				return
			}

			ctx := ContextWithAuth(r.Context(), info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
