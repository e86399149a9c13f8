package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/af-corp/aegis-ids/internal/auth"
	"github.com/af-corp/aegis-ids/internal/httputil"
	"github.com/af-corp/aegis-ids/internal/pipeline"
	"github.com/af-corp/aegis-ids/internal/queue"
	"github.com/af-corp/aegis-ids/internal/ratelimit"
	"github.com/af-corp/aegis-ids/internal/telemetry"
	"github.com/af-corp/aegis-ids/internal/types"
)

const (
	msgPayloadRequired = "payload required"
	msgMethodURL       = "method and url are required"
	msgInvalidJSON     = "invalid JSON"
	msgTaskNotFound    = "task not found"
)

var validate = validator.New()

// TaskQueue enqueues prediction tasks and reads their status.
type TaskQueue interface {
	Enqueue(ctx context.Context, req types.RequestDescriptor, clientIP string) (*types.Task, error)
	Get(ctx context.Context, id string) (*types.Task, error)
}

// Predictor runs the classification pipeline inline.
type Predictor interface {
	Predict(ctx context.Context, req types.RequestDescriptor, clientIP string) types.PredictionResult
}

// HealthCheck reports the state of one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) (state string, healthy bool)
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	queue        TaskQueue
	predictor    Predictor
	issuer       *auth.Issuer
	credentials  auth.Credentials
	checks       []HealthCheck
	metrics      *telemetry.Metrics
	maxBodyBytes int64
}

func NewHandler(q TaskQueue, predictor Predictor, metrics *telemetry.Metrics) *Handler {
	return &Handler{
		queue:        q,
		predictor:    predictor,
		metrics:      metrics,
		maxBodyBytes: 1 << 20,
	}
}

// WithLogin enables POST /login for the given account.
func (h *Handler) WithLogin(issuer *auth.Issuer, creds auth.Credentials) *Handler {
	h.issuer = issuer
	h.credentials = creds
	return h
}

// WithHealthChecks adds dependency checks to GET /health.
func (h *Handler) WithHealthChecks(checks ...HealthCheck) *Handler {
	h.checks = append(h.checks, checks...)
	return h
}

// WithMaxBodyBytes limits request bodies. Zero or less keeps the default.
func (h *Handler) WithMaxBodyBytes(n int64) *Handler {
	if n > 0 {
		h.maxBodyBytes = n
	}
	return h
}

// decodePredictRequest parses and validates a /predict body, writing the
// 400 response itself when the request is rejected.
func (h *Handler) decodePredictRequest(w http.ResponseWriter, r *http.Request, reqID string) (*types.RequestDescriptor, bool) {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	dec.UseNumber()

	var req types.PredictRequest
	if err := dec.Decode(&req); err != nil {
		h.metrics.RecordRejection("invalid_json")
		if errors.Is(err, io.EOF) {
			httputil.WriteBadRequestError(w, reqID, msgPayloadRequired)
			return nil, false
		}
		httputil.WriteBadRequestError(w, reqID, msgInvalidJSON)
		return nil, false
	}

	if req.Payload == nil {
		h.metrics.RecordRejection("validation")
		httputil.WriteBadRequestError(w, reqID, msgPayloadRequired)
		return nil, false
	}
	req.Payload.Method = strings.TrimSpace(req.Payload.Method)
	req.Payload.URL = strings.TrimSpace(req.Payload.URL)
	if err := validate.Struct(req); err != nil {
		h.metrics.RecordRejection("validation")
		httputil.WriteBadRequestError(w, reqID, msgMethodURL)
		return nil, false
	}
	return req.Payload, true
}

// Predict handles POST /predict by queueing the request for classification.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	desc, ok := h.decodePredictRequest(w, r, reqID)
	if !ok {
		return
	}

	task, err := h.queue.Enqueue(r.Context(), *desc, ratelimit.ClientIP(r))
	if err != nil {
		slog.Error("enqueue failed", "request_id", reqID, "error", err)
		if errors.Is(err, queue.ErrUnavailable) {
			httputil.WriteServiceUnavailableError(w, reqID, "queue unavailable")
			return
		}
		httputil.WriteInternalError(w, reqID, pipeline.InternalError)
		return
	}

	slog.Info("enqueued task", "request_id", reqID, "task_id", task.ID)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"task_id": task.ID,
		"message": "prediction task started",
	})
}

// PredictSync handles POST /predict/sync by running the pipeline inline.
func (h *Handler) PredictSync(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	desc, ok := h.decodePredictRequest(w, r, reqID)
	if !ok {
		return
	}

	ctx := pipeline.WithWorker(r.Context(), pipeline.WorkerHTTP)
	result := h.predictor.Predict(ctx, *desc, ratelimit.ClientIP(r))
	if result.Failed() {
		if result.Error == pipeline.ErrEmptyRequest.Error() {
			httputil.WriteBadRequestError(w, reqID, msgPayloadRequired)
			return
		}
		httputil.WriteInternalError(w, reqID, pipeline.InternalError)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

// TaskStatus handles GET /task-status/{task_id}.
func (h *Handler) TaskStatus(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	id := chi.URLParam(r, "task_id")

	task, err := h.queue.Get(r.Context(), id)
	switch {
	case errors.Is(err, queue.ErrTaskNotFound):
		httputil.WriteNotFoundError(w, reqID, msgTaskNotFound)
		return
	case errors.Is(err, queue.ErrUnavailable):
		httputil.WriteServiceUnavailableError(w, reqID, "queue unavailable")
		return
	case err != nil:
		slog.Error("loading task failed", "request_id", reqID, "task_id", id, "error", err)
		httputil.WriteInternalError(w, reqID, pipeline.InternalError)
		return
	}

	switch task.Status {
	case types.TaskFinished:
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"status": "done",
			"result": task.Result,
		})
	case types.TaskFailed:
		httputil.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"status": "failed",
			"error":  task.Error,
		})
	default:
		httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
	}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login handles POST /login and issues an access token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	if h.issuer == nil {
		httputil.WriteNotFoundError(w, reqID, "login disabled")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		httputil.WriteBadRequestError(w, reqID, msgInvalidJSON)
		return
	}
	if !h.credentials.Check(req.Username, req.Password) {
		slog.Warn("failed login attempt", "request_id", reqID, "ip", ratelimit.ClientIP(r))
		h.metrics.RecordRejection("login")
		httputil.WriteAuthError(w, reqID, "invalid credentials")
		return
	}

	token, exp, err := h.issuer.Issue(req.Username)
	if err != nil {
		slog.Error("issuing token failed", "request_id", reqID, "error", err)
		httputil.WriteInternalError(w, reqID, pipeline.InternalError)
		return
	}
	slog.Info("token issued", "request_id", reqID, "user", req.Username, "ip", ratelimit.ClientIP(r))
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": exp.UTC(),
	})
}

// Home handles GET /.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "Welcome to the Intrusion Detection API")
}

// Favicon handles GET /favicon.ico so browsers do not pollute the logs.
func (h *Handler) Favicon(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /health. It answers 503 when any check is unhealthy.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	components := make(map[string]string, len(h.checks))
	for _, c := range h.checks {
		state, ok := c.Check(r.Context())
		components[c.Name] = state
		if !ok {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	httputil.WriteJSON(w, code, map[string]any{
		"status":     status,
		"version":    Version,
		"components": components,
	})
}
