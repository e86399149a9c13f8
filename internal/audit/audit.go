// Package audit writes one JSON line per classified log message to a
// rotating file, and optionally mirrors each record into PostgreSQL.
package audit

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/af-corp/aegis-ids/internal/types"
)

// Audit events for records that carry no prediction.
const (
	EventPredictionFailed  = "prediction_failed"
	EventPredictionSkipped = "prediction_skipped_or_empty"
)

// Record levels.
const (
	LevelInfo    = "INFO"
	LevelWarning = "WARNING"
	LevelError   = "ERROR"
)

// Sink receives a copy of every audit record.
type Sink interface {
	Write(ctx context.Context, rec types.AuditRecord) error
}

// FileOptions configures the rotating audit file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// Logger writes audit records. It is safe for concurrent use.
type Logger struct {
	out    *slog.Logger
	closer io.Closer
	sinks  []Sink
	logger *slog.Logger
}

// NewFile opens a rotating audit file, creating its directory when needed.
func NewFile(opts FileOptions, logger *slog.Logger) (*Logger, error) {
	if opts.Path == "" {
		opts.Path = "logs/intrusion_detection.log"
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 10
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 5
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, err
	}
	w := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}
	l := New(w, logger)
	l.closer = w
	return l, nil
}

// New writes audit records as JSON lines to w.
func New(w io.Writer, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Records carry their own timestamp and level.
			if len(groups) == 0 && (a.Key == slog.TimeKey || a.Key == slog.LevelKey) {
				return slog.Attr{}
			}
			return a
		},
	})
	return &Logger{out: slog.New(h), logger: logger}
}

// AddSink mirrors every subsequent record into s.
func (l *Logger) AddSink(s Sink) {
	l.sinks = append(l.sinks, s)
}

// Record writes rec. Sink failures are logged and never block the file write.
func (l *Logger) Record(ctx context.Context, rec types.AuditRecord) {
	if rec.Timestamp == "" {
		rec.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if rec.Level == "" {
		rec.Level = LevelInfo
	}

	attrs := []slog.Attr{
		slog.String("timestamp", rec.Timestamp),
		slog.String("level", rec.Level),
		slog.String("source", rec.Source),
		slog.String("worker", rec.Worker),
		slog.String("ip", rec.IP),
		slog.String("payload", rec.Payload),
	}
	if rec.Prediction != "" {
		attrs = append(attrs, slog.String("prediction", string(rec.Prediction)), slog.Bool("cache_hit", rec.CacheHit))
	}
	if rec.Event != "" {
		attrs = append(attrs, slog.String("event", rec.Event))
	}
	if rec.Error != "" {
		attrs = append(attrs, slog.String("error", rec.Error))
	}
	if rec.Reason != "" {
		attrs = append(attrs, slog.String("reason", rec.Reason))
	}
	l.out.LogAttrs(ctx, slogLevel(rec.Level), message(rec), attrs...)

	for _, s := range l.sinks {
		if err := s.Write(ctx, rec); err != nil {
			l.logger.Warn("audit sink write failed", "error", err)
		}
	}
}

// Close closes the underlying file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

func message(rec types.AuditRecord) string {
	switch {
	case rec.Prediction != "":
		return "prediction"
	case rec.Event != "":
		return rec.Event
	default:
		return "audit"
	}
}

func slogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelError:
		return slog.LevelError
	case LevelWarning, "WARN":
		return slog.LevelWarn
	case "DEBUG":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
