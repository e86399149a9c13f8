// Package subscriber consumes HTTP log messages published by the edge proxy,
// classifies each request and writes the verdict to the audit log.
package subscriber

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/aegis-ids/internal/audit"
	"github.com/af-corp/aegis-ids/internal/mask"
	"github.com/af-corp/aegis-ids/internal/pipeline"
	"github.com/af-corp/aegis-ids/internal/retry"
	"github.com/af-corp/aegis-ids/internal/telemetry"
	"github.com/af-corp/aegis-ids/internal/types"
)

const (
	DefaultChannel   = "http_logs"
	DefaultDedupSize = 100_000

	source = "subscriber"
)

// State is the connection state of the subscriber.
type State int32

const (
	StateConnecting State = iota
	StateConnected
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Runner classifies one request.
type Runner interface {
	Run(ctx context.Context, req types.RequestDescriptor, clientIP string) pipeline.Outcome
}

// Auditor receives one record per handled message.
type Auditor interface {
	Record(ctx context.Context, rec types.AuditRecord)
}

type Options struct {
	Channel      string
	DedupSize    int
	Backoff      retry.Backoff
	PingInterval time.Duration
}

// Subscriber listens on a Redis pub/sub channel until its context ends.
type Subscriber struct {
	rdb     *redis.Client
	runner  Runner
	auditor Auditor
	masker  *mask.Masker
	opts    Options
	metrics *telemetry.Metrics
	logger  *slog.Logger

	seen  *lru.Cache[string, struct{}]
	state atomic.Int32
}

func New(rdb *redis.Client, runner Runner, auditor Auditor, masker *mask.Masker, opts Options, metrics *telemetry.Metrics, logger *slog.Logger) (*Subscriber, error) {
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.DedupSize <= 0 {
		opts.DedupSize = DefaultDedupSize
	}
	if opts.Backoff == (retry.Backoff{}) {
		opts.Backoff = retry.Default
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = time.Minute
	}
	if masker == nil {
		masker = mask.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	seen, err := lru.New[string, struct{}](opts.DedupSize)
	if err != nil {
		return nil, fmt.Errorf("creating dedup cache: %w", err)
	}
	return &Subscriber{
		rdb:     rdb,
		runner:  runner,
		auditor: auditor,
		masker:  masker,
		opts:    opts,
		metrics: metrics,
		logger:  logger,
		seen:    seen,
	}, nil
}

// State returns the current connection state.
func (s *Subscriber) State() State {
	return State(s.state.Load())
}

func (s *Subscriber) setState(st State) {
	s.state.Store(int32(st))
}

// Run subscribes and handles messages, reconnecting with backoff whenever
// the connection drops. It returns nil once ctx is canceled.
func (s *Subscriber) Run(ctx context.Context) error {
	defer s.setState(StateStopped)
	ctx = pipeline.WithWorker(ctx, pipeline.WorkerSubscriber)

	attempt := 0
	for {
		connected, err := s.listen(ctx)
		if ctx.Err() != nil {
			s.logger.Info("subscriber stopped", "channel", s.opts.Channel)
			return nil
		}
		if connected {
			attempt = 0
		}

		delay := s.opts.Backoff.Next(attempt)
		attempt++
		s.setState(StateReconnecting)
		s.metrics.RecordSubscriberReconnect()
		s.logger.Warn("subscriber connection lost",
			"channel", s.opts.Channel,
			"error", err,
			"retry_in", delay.String(),
		)
		if retry.Sleep(ctx, delay) != nil {
			return nil
		}
	}
}

// listen runs one subscription. connected reports whether the subscription
// was confirmed before the error.
func (s *Subscriber) listen(ctx context.Context) (connected bool, err error) {
	ps := s.rdb.Subscribe(ctx, s.opts.Channel)
	defer ps.Close()
	stop := context.AfterFunc(ctx, func() { ps.Close() })
	defer stop()

	if _, err := ps.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribing to %s: %w", s.opts.Channel, err)
	}
	s.setState(StateConnected)
	s.logger.Info("subscribed", "channel", s.opts.Channel)

	for {
		msg, err := ps.ReceiveTimeout(ctx, s.opts.PingInterval)
		if err != nil {
			if ctx.Err() != nil {
				return true, nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if err := ps.Ping(ctx); err != nil {
					return true, fmt.Errorf("ping: %w", err)
				}
				continue
			}
			return true, err
		}

		if m, ok := msg.(*redis.Message); ok {
			s.Handle(ctx, []byte(m.Payload))
		}
	}
}

// Handle processes one raw message. Messages already seen are dropped.
func (s *Subscriber) Handle(ctx context.Context, raw []byte) {
	sum := sha256.Sum256(raw)
	if seen, _ := s.seen.ContainsOrAdd(hex.EncodeToString(sum[:]), struct{}{}); seen {
		s.metrics.RecordSubscriberMessage("duplicate")
		return
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var ev types.LogEvent
	if err := dec.Decode(&ev); err != nil {
		s.metrics.RecordSubscriberMessage("invalid")
		s.auditor.Record(ctx, types.AuditRecord{
			Level:  audit.LevelError,
			Source: source,
			Worker: pipeline.WorkerFrom(ctx),
			IP:     "N/A",
			Error:  fmt.Sprintf("message processing error: %v", err),
		})
		return
	}
	s.handleEvent(ctx, &ev)
}

func (s *Subscriber) handleEvent(ctx context.Context, ev *types.LogEvent) {
	ip := ev.ClientIP()
	method := strings.ToUpper(strings.TrimSpace(ev.Method))
	target := ev.URL
	if u, err := url.PathUnescape(target); err == nil {
		target = u
	}
	target = s.masker.URLQuery(target)

	out := s.runner.Run(ctx, types.RequestDescriptor{Method: method, URL: target, Body: ev.Body()}, ip)

	rec := out.AuditRecord(s.masker, source, pipeline.WorkerFrom(ctx), ip, method, target)
	switch {
	case out.Prediction != "":
		s.metrics.RecordSubscriberMessage("processed")
	case out.Skipped:
		s.metrics.RecordSubscriberMessage("skipped")
	default:
		s.metrics.RecordSubscriberMessage("failed")
	}
	s.auditor.Record(ctx, rec)
}
