package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLimiter_NilRedis_FailOpen(t *testing.T) {
	l := NewLimiter(nil)
	result, err := l.Check(context.Background(), "test:key", 60, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Allowed {
		t.Error("expected allowed when Redis is nil")
	}
	if result.Remaining != 59 {
		t.Errorf("expected remaining=59, got %d", result.Remaining)
	}
}

func TestLimiter_NilRedis_MultipleChecks(t *testing.T) {
	l := NewLimiter(nil)
	// Without Redis, every check passes (fail open)
	for i := 0; i < 100; i++ {
		result, _ := l.Check(context.Background(), "test:key", 10, time.Minute)
		if !result.Allowed {
			t.Fatalf("expected allowed on check %d", i)
		}
	}
}

func TestLimiter_Redis_EnforcesLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	l := NewLimiter(rdb)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, "ip:1", 3, time.Minute)
		if err != nil || !res.Allowed {
			t.Fatalf("check %d: allowed=%v err=%v", i, res.Allowed, err)
		}
		if res.Remaining != int64(2-i) {
			t.Errorf("check %d: remaining=%d", i, res.Remaining)
		}
	}

	res, _ := l.Check(ctx, "ip:1", 3, time.Minute)
	if res.Allowed {
		t.Error("fourth check should be denied")
	}
	if res.RetryAfter <= 0 {
		t.Error("denied check should carry RetryAfter")
	}
	if !mr.Exists("ids:rl:ip:1") {
		t.Error("expected sliding-window key in redis")
	}
}
