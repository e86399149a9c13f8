package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/af-corp/aegis-ids/internal/pipeline"
	"github.com/af-corp/aegis-ids/internal/retry"
	"github.com/af-corp/aegis-ids/internal/telemetry"
	"github.com/af-corp/aegis-ids/internal/types"
)

// ErrJobTimeout is recorded on tasks that exceeded the job timeout.
var ErrJobTimeout = errors.New("job timed out")

// Predictor runs one request through the classification pipeline.
type Predictor interface {
	Predict(ctx context.Context, req types.RequestDescriptor, clientIP string) types.PredictionResult
}

// PoolOptions configures the worker pool.
type PoolOptions struct {
	Workers     int
	JobTimeout  time.Duration
	PollTimeout time.Duration
	Backoff     retry.Backoff
}

// Pool runs named workers that drain the queue.
type Pool struct {
	q         *Queue
	predictor Predictor
	opts      PoolOptions
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

func NewPool(q *Queue, predictor Predictor, opts PoolOptions, metrics *telemetry.Metrics, logger *slog.Logger) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	// BLPOP timeouts have one second resolution.
	if opts.PollTimeout < time.Second {
		opts.PollTimeout = time.Second
	}
	if opts.Backoff == (retry.Backoff{}) {
		opts.Backoff = retry.Default
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{q: q, predictor: predictor, opts: opts, metrics: metrics, logger: logger}
}

// WorkerName returns the identity of worker i (0-based).
func WorkerName(i int) string {
	return fmt.Sprintf("WorkerProcess-%d", i+1)
}

// Run starts the workers and blocks until ctx is canceled and every worker
// has returned.
func (p *Pool) Run(ctx context.Context) error {
	if p.q.rdb == nil {
		return ErrUnavailable
	}

	var wg sync.WaitGroup
	for i := 0; i < p.opts.Workers; i++ {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			p.work(pipeline.WithWorker(ctx, name))
		}(WorkerName(i))
	}
	wg.Wait()
	return nil
}

func (p *Pool) work(ctx context.Context) {
	worker := pipeline.WorkerFrom(ctx)
	p.logger.Info("queue worker started", "worker", worker, "queue", p.q.key)

	attempt := 0
	for ctx.Err() == nil {
		id, err := p.q.dequeue(ctx, p.opts.PollTimeout)
		if errors.Is(err, redis.Nil) {
			attempt = 0
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			delay := p.opts.Backoff.Next(attempt)
			attempt++
			p.logger.Warn("queue dequeue failed", "worker", worker, "error", err, "retry_in", delay.String())
			if retry.Sleep(ctx, delay) != nil {
				break
			}
			continue
		}
		attempt = 0
		p.process(ctx, id)
	}

	p.logger.Info("queue worker stopped", "worker", worker)
}

func (p *Pool) process(ctx context.Context, id string) {
	worker := pipeline.WorkerFrom(ctx)
	// Task bookkeeping must survive shutdown of the worker context.
	store := context.WithoutCancel(ctx)

	task, err := p.q.Get(store, id)
	if err != nil {
		p.logger.Error("loading queued task", "worker", worker, "task_id", id, "error", err)
		return
	}

	task.Status = types.TaskStarted
	if err := p.q.save(store, task); err != nil {
		p.logger.Warn("marking task started", "worker", worker, "task_id", id, "error", err)
	}
	waitMs := float64(p.q.now().Sub(task.EnqueuedAt).Milliseconds())

	result, err := p.run(ctx, task)
	ended := p.q.now().UTC()
	task.EndedAt = &ended

	switch {
	case err != nil:
		task.Status = types.TaskFailed
		task.Error = err.Error()
	case result.Failed():
		task.Status = types.TaskFailed
		task.Error = result.Error
	default:
		task.Status = types.TaskFinished
		task.Result = &result
	}

	if err := p.q.save(store, task); err != nil {
		p.logger.Error("saving task result", "worker", worker, "task_id", id, "error", err)
	}
	p.metrics.RecordQueueJob(string(task.Status), waitMs)
	p.logger.Debug("task processed", "worker", worker, "task_id", id, "status", task.Status)
}

// run executes the prediction bounded by the job timeout. A timed-out job is
// abandoned; its goroutine finishes in the background.
func (p *Pool) run(ctx context.Context, task *types.Task) (types.PredictionResult, error) {
	if p.opts.JobTimeout <= 0 {
		return p.predictor.Predict(ctx, task.Request, task.ClientIP), nil
	}

	jobCtx, cancel := context.WithTimeout(ctx, p.opts.JobTimeout)
	defer cancel()

	done := make(chan types.PredictionResult, 1)
	go func() {
		done <- p.predictor.Predict(jobCtx, task.Request, task.ClientIP)
	}()

	select {
	case res := <-done:
		return res, nil
	case <-jobCtx.Done():
		if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
			return types.PredictionResult{}, ErrJobTimeout
		}
		return types.PredictionResult{}, jobCtx.Err()
	}
}
