package main

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/af-corp/aegis-ids/internal/cache"
	"github.com/af-corp/aegis-ids/internal/config"
	"github.com/af-corp/aegis-ids/internal/gateway"
)

func redisConfig(t *testing.T, addr string) config.RedisConfig {
	t.Helper()
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatal(err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		t.Fatal(err)
	}
	return config.RedisConfig{Host: host, Port: p}
}

func checkByName(checks []gateway.HealthCheck, name string) (gateway.HealthCheck, bool) {
	for _, c := range checks {
		if c.Name == name {
			return c, true
		}
	}
	return gateway.HealthCheck{}, false
}

func TestRedisDownAtBootRecovers(t *testing.T) {
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		t.Fatal(err)
	}
	cfg := redisConfig(t, mr.Addr())
	mr.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	ctx := context.Background()

	rdb := newRedisClient(ctx, cfg, logger)
	if rdb == nil {
		t.Fatal("client must be kept when Redis is down at boot")
	}
	defer rdb.Close()
	if !strings.Contains(logs.String(), "redis not reachable") {
		t.Errorf("expected a warning, got %q", logs.String())
	}

	c := cache.New(rdb, nil)
	redisCheck, ok := checkByName(healthChecks(rdb, c, nil), "redis")
	if !ok {
		t.Fatal("missing redis health check")
	}
	if state, healthy := redisCheck.Check(ctx); healthy || state != "down" {
		t.Errorf("while down: state=%q healthy=%v", state, healthy)
	}

	if err := mr.Restart(); err != nil {
		t.Fatal(err)
	}
	defer mr.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		state, healthy := redisCheck.Check(ctx)
		if healthy && state == "up" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("redis never reported up after restart, last state %q", state)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestHealthChecks_Components(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := newRedisClient(context.Background(), redisConfig(t, mr.Addr()), slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	defer rdb.Close()

	checks := healthChecks(rdb, nil, nil)
	if len(checks) != 1 || checks[0].Name != "redis" {
		t.Errorf("without cache or subscriber only redis is checked, got %d checks", len(checks))
	}

	checks = healthChecks(rdb, cache.New(rdb, nil), nil)
	cacheCheck, ok := checkByName(checks, "cache")
	if !ok {
		t.Fatal("missing cache health check")
	}
	if state, healthy := cacheCheck.Check(context.Background()); !healthy || state != "closed" {
		t.Errorf("cache state=%q healthy=%v", state, healthy)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"warn":  slog.LevelWarn,
		"":      slog.LevelInfo,
		"bogus": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
