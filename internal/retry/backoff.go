// Package retry holds the bounded exponential backoff shared by the queue
// workers and the log subscriber.
package retry

import (
	"context"
	"time"
)

// Backoff doubles the delay per attempt from Initial up to Max.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Default is 500ms doubling up to 5s.
var Default = Backoff{Initial: 500 * time.Millisecond, Max: 5 * time.Second}

// Next returns the delay before retry number attempt (0-based).
func (b Backoff) Next(attempt int) time.Duration {
	initial, max := b.Initial, b.Max
	if initial <= 0 {
		initial = Default.Initial
	}
	if max < initial {
		max = initial
	}
	d := initial
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max || d <= 0 {
			return max
		}
	}
	return d
}

// Sleep waits for d or until ctx is done. It returns ctx.Err() when canceled.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
