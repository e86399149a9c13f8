package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/af-corp/aegis-ids/internal/auth"
	"github.com/af-corp/aegis-ids/internal/ratelimit"
	"github.com/af-corp/aegis-ids/internal/telemetry"
)

// Version is reported by GET /health. Set at build time.
var Version = "dev"

type RouterOptions struct {
	// Issuer enables token auth on the prediction routes when non-nil.
	Issuer *auth.Issuer
	// Limiter enables per-IP rate limiting on /predict when non-nil.
	Limiter *ratelimit.Limiter
	RPM     int
	// Metrics is served on GET /metrics when non-nil.
	Metrics http.Handler
	Stats   *telemetry.Metrics
}

// NewRouter wires the handlers and middleware.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(RequestID)

	r.Get("/", h.Home)
	r.Get("/favicon.ico", h.Favicon)
	r.Get("/health", h.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}
	if h.issuer != nil {
		r.Post("/login", h.Login)
	}

	r.Group(func(r chi.Router) {
		if opts.Issuer != nil {
			r.Use(auth.Middleware(opts.Issuer, opts.Stats))
		}
		r.Get("/task-status/{task_id}", h.TaskStatus)

		r.Group(func(r chi.Router) {
			if opts.Limiter != nil {
				r.Use(ratelimit.Middleware(opts.Limiter, opts.RPM, opts.Stats))
			}
			r.Post("/predict", h.Predict)
			r.Post("/predict/sync", h.PredictSync)
		})
	})

	return r
}

// RequestID propagates or assigns the X-Request-ID header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = "req_" + uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}
