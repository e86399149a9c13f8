// Package pipeline runs one request through normalization, the prediction
// cache and the classifier.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"time"

	"github.com/af-corp/aegis-ids/internal/audit"
	"github.com/af-corp/aegis-ids/internal/cache"
	"github.com/af-corp/aegis-ids/internal/classifier"
	"github.com/af-corp/aegis-ids/internal/mask"
	"github.com/af-corp/aegis-ids/internal/normalize"
	"github.com/af-corp/aegis-ids/internal/telemetry"
	"github.com/af-corp/aegis-ids/internal/types"
)

// InternalError is the only error text callers ever see for a failed classification.
const InternalError = "internal server error"

// ErrEmptyRequest is returned for requests whose canonical text is empty.
var ErrEmptyRequest = errors.New("payload required")

// Outcome is a pipeline result together with the intermediate forms callers
// need for logging.
type Outcome struct {
	types.PredictionResult
	Canonical string
	Fields    normalize.Fields
	// Skipped is set when the request had no method and url.
	Skipped bool
}

// SourceAPI tags audit records of requests that came in over HTTP.
const SourceAPI = "api"

// Auditor receives one record per audited request.
type Auditor interface {
	Record(ctx context.Context, rec types.AuditRecord)
}

// AuditRecord builds the audit record for out. The URL is masked here, the
// raw remainder is left out of the text.
func (out Outcome) AuditRecord(m *mask.Masker, source, worker, ip, method, url string) types.AuditRecord {
	fields := out.Fields
	if _, ok := fields.Remainder(); ok {
		fields = maps.Clone(fields)
		delete(fields, normalize.RawKey)
	}

	rec := types.AuditRecord{
		Level:   audit.LevelInfo,
		Source:  source,
		Worker:  worker,
		IP:      ip,
		Payload: m.Line(method, url, fields),
	}
	switch {
	case out.Prediction != "":
		rec.Prediction = out.Prediction
		rec.CacheHit = out.CacheHit
	case out.Skipped:
		rec.Level = audit.LevelWarning
		rec.Event = audit.EventPredictionSkipped
		rec.Reason = "no prediction result returned"
	default:
		rec.Level = audit.LevelWarning
		rec.Event = audit.EventPredictionFailed
		rec.Error = out.Error
	}
	return rec
}

// Pipeline is safe for concurrent use. The cache may be nil.
type Pipeline struct {
	normalizer *normalize.Normalizer
	cache      *cache.Cache
	classifier classifier.Classifier
	auditor    Auditor
	masker     *mask.Masker
	metrics    *telemetry.Metrics
	logger     *slog.Logger
}

func New(clf classifier.Classifier, c *cache.Cache, metrics *telemetry.Metrics, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		cache:      c,
		classifier: clf,
		metrics:    metrics,
		logger:     logger,
	}
	p.normalizer = &normalize.Normalizer{
		OnFallback: func(stage string, err error) {
			metrics.RecordNormalizeFallback(stage)
			logger.Debug("payload decode fallback", "stage", stage, "error", err)
		},
	}
	return p
}

// WithAudit makes Predict write a masked audit record for every request.
func (p *Pipeline) WithAudit(a Auditor, m *mask.Masker) *Pipeline {
	if m == nil {
		m = mask.New()
	}
	p.auditor = a
	p.masker = m
	return p
}

// Predict classifies req, audits it and returns the caller-facing result.
func (p *Pipeline) Predict(ctx context.Context, req types.RequestDescriptor, clientIP string) types.PredictionResult {
	out := p.Run(ctx, req, clientIP)
	if p.auditor != nil {
		rec := out.AuditRecord(p.masker, SourceAPI, WorkerFrom(ctx), clientIP, req.Method, req.URL)
		p.auditor.Record(context.WithoutCancel(ctx), rec)
	}
	return out.PredictionResult
}

// Run classifies req. Classification errors are logged here with full
// context and reduced to InternalError in the result.
func (p *Pipeline) Run(ctx context.Context, req types.RequestDescriptor, clientIP string) (out Outcome) {
	start := time.Now()
	worker := WorkerFrom(ctx)

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("classification panic",
				"timestamp", time.Now().UTC().Format(time.RFC3339),
				"worker", worker,
				"ip", clientIP,
				"error", r,
			)
			p.metrics.RecordPredictionError(worker, "panic")
			out.PredictionResult = types.PredictionResult{Error: InternalError}
		}
	}()

	out.Canonical, out.Fields = p.normalizer.Canonicalize(req)
	if out.Canonical == "" {
		out.Skipped = true
		out.Error = ErrEmptyRequest.Error()
		p.metrics.RecordPredictionError(worker, "empty")
		return out
	}

	key := cache.Key(req.Method, out.Canonical)
	if label, hit, err := p.cache.Lookup(ctx, key); err != nil {
		p.metrics.RecordCacheError("lookup")
		p.logger.Warn("prediction cache lookup failed", "worker", worker, "error", err)
	} else if hit {
		out.Prediction = label
		out.CacheHit = true
		p.record(worker, out, start)
		return out
	}

	label, err := p.classifier.Classify(ctx, out.Canonical)
	if err != nil {
		p.logger.Error("classification failed",
			"timestamp", time.Now().UTC().Format(time.RFC3339),
			"worker", worker,
			"ip", clientIP,
			"error", err,
		)
		p.metrics.RecordPredictionError(worker, "classify")
		out.Error = InternalError
		return out
	}

	if err := p.cache.Store(ctx, key, label); err != nil {
		p.metrics.RecordCacheError("store")
		p.logger.Warn("prediction cache store failed", "worker", worker, "error", err)
	}

	out.Prediction = label
	p.record(worker, out, start)
	return out
}

func (p *Pipeline) record(worker string, out Outcome, start time.Time) {
	p.metrics.RecordPrediction(telemetry.PredictionLabels{
		Label:      string(out.Prediction),
		CacheHit:   out.CacheHit,
		Source:     worker,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000,
	})
}
