// Package queue is the Redis-backed prediction job queue. POST /predict
// enqueues a task; a pool of workers drains it and records the result on the
// task, which GET /task-status reads back.
package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/aegis-ids/internal/types"
)

const (
	DefaultKey       = "ids:queue:predict"
	DefaultRetention = 24 * time.Hour

	taskKeyPrefix = "ids:task:"
)

var (
	// ErrTaskNotFound is returned for unknown or expired task ids.
	ErrTaskNotFound = errors.New("task not found")
	// ErrUnavailable is returned when Redis is missing or unreachable.
	ErrUnavailable = errors.New("queue unavailable")
)

// Queue stores tasks as JSON values and their ids in a Redis list.
type Queue struct {
	rdb       *redis.Client
	key       string
	retention time.Duration
	now       func() time.Time
}

// New creates a queue. Empty key and zero retention get the defaults.
func New(rdb *redis.Client, key string, retention time.Duration) *Queue {
	if key == "" {
		key = DefaultKey
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Queue{rdb: rdb, key: key, retention: retention, now: time.Now}
}

func taskKey(id string) string { return taskKeyPrefix + id }

// Enqueue records a new queued task and pushes it onto the list.
func (q *Queue) Enqueue(ctx context.Context, req types.RequestDescriptor, clientIP string) (*types.Task, error) {
	if q.rdb == nil {
		return nil, ErrUnavailable
	}

	task := &types.Task{
		ID:         uuid.NewString(),
		Status:     types.TaskQueued,
		Request:    req,
		ClientIP:   clientIP,
		EnqueuedAt: q.now().UTC(),
	}
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("marshaling task: %w", err)
	}

	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, taskKey(task.ID), data, q.retention)
		pipe.RPush(ctx, q.key, task.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: enqueueing task %s: %w", ErrUnavailable, task.ID, err)
	}
	return task, nil
}

// Get loads a task by id.
func (q *Queue) Get(ctx context.Context, id string) (*types.Task, error) {
	if q.rdb == nil {
		return nil, ErrUnavailable
	}
	data, err := q.rdb.Get(ctx, taskKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading task %s: %w", id, err)
	}

	return decodeTask(id, data)
}

// decodeTask keeps body numbers as their literal text so the request
// canonicalizes the same way it did when it was enqueued.
func decodeTask(id string, data []byte) (*types.Task, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var task types.Task
	if err := dec.Decode(&task); err != nil {
		return nil, fmt.Errorf("decoding task %s: %w", id, err)
	}
	return &task, nil
}

// Len returns the number of tasks waiting in the list.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	if q.rdb == nil {
		return 0, ErrUnavailable
	}
	return q.rdb.LLen(ctx, q.key).Result()
}

func (q *Queue) save(ctx context.Context, task *types.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshaling task: %w", err)
	}
	if err := q.rdb.Set(ctx, taskKey(task.ID), data, q.retention).Err(); err != nil {
		return fmt.Errorf("saving task %s: %w", task.ID, err)
	}
	return nil
}

// dequeue blocks up to timeout for the next task id. It returns redis.Nil
// when the wait timed out with an empty list.
func (q *Queue) dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err != nil {
		return "", err
	}
	// BLPOP returns [key, value].
	return res[1], nil
}
