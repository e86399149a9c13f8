package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/af-corp/aegis-ids/internal/audit"
	"github.com/af-corp/aegis-ids/internal/auth"
	"github.com/af-corp/aegis-ids/internal/cache"
	"github.com/af-corp/aegis-ids/internal/classifier"
	"github.com/af-corp/aegis-ids/internal/config"
	"github.com/af-corp/aegis-ids/internal/gateway"
	"github.com/af-corp/aegis-ids/internal/mask"
	"github.com/af-corp/aegis-ids/internal/pipeline"
	"github.com/af-corp/aegis-ids/internal/queue"
	"github.com/af-corp/aegis-ids/internal/ratelimit"
	"github.com/af-corp/aegis-ids/internal/retry"
	"github.com/af-corp/aegis-ids/internal/subscriber"
	"github.com/af-corp/aegis-ids/internal/telemetry"
)

var version = "dev"

func main() {
	configDir := flag.String("config", "configs", "path to configuration directory")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before the config")
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := config.LoadDotEnv(*envFile); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	loader := config.NewLoader(*configDir, logger)
	if err := loader.Load(); err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()
	level.Set(parseLevel(cfg.Telemetry.LogLevel))

	loader.OnReload(func() {
		level.Set(parseLevel(loader.Config().Telemetry.LogLevel))
		logger.Info("log level reloaded", "level", level.Level().String())
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Redis backs the cache, the queue, the rate limiter and the log channel.
	rdb := newRedisClient(ctx, cfg.Redis, logger)
	defer rdb.Close()

	clf, err := buildClassifier(cfg.Classifier)
	if err != nil {
		logger.Error("failed to load classifier", "error", err)
		os.Exit(1)
	}
	probeCtx, cancelProbe := context.WithTimeout(ctx, 5*time.Second)
	err = classifier.Probe(probeCtx, clf)
	cancelProbe()
	if err != nil {
		logger.Error("classifier probe failed", "error", err)
		os.Exit(1)
	}
	logger.Info("classifier ready", "remote", cfg.Classifier.Endpoint != "")

	metrics := telemetry.NewMetrics()

	// Audit log
	auditLog, err := audit.NewFile(audit.FileOptions{
		Path:       cfg.Audit.Path,
		MaxSizeMB:  cfg.Audit.MaxSizeMB,
		MaxBackups: cfg.Audit.MaxBackups,
	}, logger)
	if err != nil {
		logger.Error("failed to open audit log", "error", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	if cfg.Database.Enabled {
		dbPool, err := newDBPool(ctx, cfg.Database)
		if err != nil {
			logger.Warn("database not reachable (audit mirror disabled)", "error", err)
		} else {
			defer dbPool.Close()
			auditLog.AddSink(audit.NewPostgresSink(dbPool))
			logger.Info("database connected")
		}
	}

	masker := mask.New()

	var predCache *cache.Cache
	if cfg.Cache.Enabled {
		breaker := cache.NewCircuitBreaker(cfg.Cache.FailureThreshold, cfg.Cache.RecoveryProbeInterval)
		predCache = cache.New(rdb, breaker)
	}
	pipe := pipeline.New(clf, predCache, metrics, logger).WithAudit(auditLog, masker)

	// Workers
	q := queue.New(rdb, cfg.Queue.Key, cfg.Queue.Retention)
	pool := queue.NewPool(q, pipe, queue.PoolOptions{
		Workers:    cfg.Queue.Workers,
		JobTimeout: cfg.Queue.JobTimeout,
	}, metrics, logger)
	go func() {
		if err := pool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("worker pool stopped", "error", err)
		}
	}()

	var sub *subscriber.Subscriber
	if cfg.Subscriber.Enabled {
		sub, err = subscriber.New(rdb, pipe, auditLog, masker, subscriber.Options{
			Channel:   cfg.Subscriber.Channel,
			DedupSize: cfg.Subscriber.DedupSize,
			Backoff: retry.Backoff{
				Initial: cfg.Subscriber.BackoffInitial,
				Max:     cfg.Subscriber.BackoffMax,
			},
			PingInterval: cfg.Subscriber.PingInterval,
		}, metrics, logger)
		if err != nil {
			logger.Error("failed to create subscriber", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := sub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("subscriber stopped", "error", err)
			}
		}()
	}

	// HTTP
	handler := gateway.NewHandler(q, pipe, metrics).
		WithMaxBodyBytes(cfg.Server.MaxBodyBytes).
		WithHealthChecks(healthChecks(rdb, predCache, sub)...)

	gateway.Version = version
	opts := gateway.RouterOptions{Stats: metrics}
	if cfg.Auth.Enabled {
		issuer, err := auth.NewIssuer(cfg.Auth.SecretKey, cfg.Auth.TokenTTL)
		if err != nil {
			logger.Error("failed to create token issuer", "error", err)
			os.Exit(1)
		}
		opts.Issuer = issuer
		if cfg.Auth.Username != "" {
			handler.WithLogin(issuer, auth.Credentials{Username: cfg.Auth.Username, Password: cfg.Auth.Password})
		}
	}
	if cfg.RateLimit.Enabled {
		opts.Limiter = ratelimit.NewLimiter(rdb)
		opts.RPM = cfg.RateLimit.RequestsPerMinute
	}
	if cfg.Telemetry.MetricsEnabled {
		opts.Metrics = promhttp.Handler()
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      gateway.NewRouter(handler, opts),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ids starting", "addr", srv.Addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("ids stopped")
}

// newRedisClient builds the shared client. A failed ping is logged and the
// client returned anyway.
func newRedisClient(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) *redis.Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis not reachable, will keep retrying", "addr", cfg.Addr(), "error", err)
	} else {
		logger.Info("redis connected", "addr", cfg.Addr())
	}
	return rdb
}

func buildClassifier(cfg config.ClassifierConfig) (classifier.Classifier, error) {
	if cfg.Endpoint != "" {
		return classifier.NewRemote(cfg.Endpoint, cfg.Timeout), nil
	}
	return classifier.Load(cfg.ModelPath, cfg.VectorizerPath)
}

func newDBPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func healthChecks(rdb *redis.Client, c *cache.Cache, sub *subscriber.Subscriber) []gateway.HealthCheck {
	checks := []gateway.HealthCheck{{
		Name: "redis",
		Check: func(ctx context.Context) (string, bool) {
			ctx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			if err := rdb.Ping(ctx).Err(); err != nil {
				return "down", false
			}
			return "up", true
		},
	}}
	if c.Enabled() {
		checks = append(checks, gateway.HealthCheck{
			Name: "cache",
			Check: func(context.Context) (string, bool) {
				state := c.State()
				return state.String(), state != cache.StateOpen
			},
		})
	}
	if sub != nil {
		checks = append(checks, gateway.HealthCheck{
			Name: "subscriber",
			Check: func(context.Context) (string, bool) {
				state := sub.State()
				return state.String(), state == subscriber.StateConnected
			},
		})
	}
	return checks
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
