package config

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Cache      CacheConfig      `yaml:"cache"`
	Queue      QueueConfig      `yaml:"queue"`
	Subscriber SubscriberConfig `yaml:"subscriber"`
	Audit      AuditConfig      `yaml:"audit"`
	Auth       AuthConfig       `yaml:"auth"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	MaxBodyBytes     int64         `yaml:"max_body_bytes" validate:"min=0"`
}

func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig configures the optional PostgreSQL audit sink.
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled"`
	URL             string        `yaml:"url"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Name            string        `yaml:"name"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN returns URL when set, otherwise a DSN built from the discrete fields.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

func (r RedisConfig) Addr() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	MetricsEnabled bool   `yaml:"metrics_enabled"`
}

// ClassifierConfig selects the model. A non-empty Endpoint uses the remote
// scorer instead of the local artifacts.
type ClassifierConfig struct {
	ModelPath      string        `yaml:"model_path" validate:"required_without=Endpoint"`
	VectorizerPath string        `yaml:"vectorizer_path" validate:"required_without=Endpoint"`
	Endpoint       string        `yaml:"endpoint" validate:"omitempty,url"`
	Timeout        time.Duration `yaml:"timeout"`
}

type CacheConfig struct {
	Enabled               bool          `yaml:"enabled"`
	FailureThreshold      int           `yaml:"failure_threshold"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval"`
}

type QueueConfig struct {
	Key        string        `yaml:"key"`
	Workers    int           `yaml:"workers" validate:"min=1"`
	JobTimeout time.Duration `yaml:"job_timeout"`
	Retention  time.Duration `yaml:"retention"`
}

type SubscriberConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Channel        string        `yaml:"channel"`
	DedupSize      int           `yaml:"dedup_size"`
	BackoffInitial time.Duration `yaml:"backoff_initial"`
	BackoffMax     time.Duration `yaml:"backoff_max"`
	PingInterval   time.Duration `yaml:"ping_interval"`
}

type AuditConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

type AuthConfig struct {
	Enabled   bool          `yaml:"enabled"`
	SecretKey string        `yaml:"secret_key" validate:"required_if=Enabled true"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
	Username  string        `yaml:"username"`
	Password  string        `yaml:"password"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             5000,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     30 * time.Second,
			IdleTimeout:      120 * time.Second,
			GracefulShutdown: 30 * time.Second,
			MaxBodyBytes:     1 << 20,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "ids",
			User:            "ids",
			MaxOpenConns:    10,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Host:     "localhost",
			Port:     6379,
			PoolSize: 50,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			MetricsEnabled: true,
		},
		Classifier: ClassifierConfig{
			ModelPath:      "model/linear_model.json",
			VectorizerPath: "model/tfidf_vectorizer.json",
			Timeout:        800 * time.Millisecond,
		},
		Cache: CacheConfig{
			Enabled:               true,
			FailureThreshold:      5,
			RecoveryProbeInterval: 10 * time.Second,
		},
		Queue: QueueConfig{
			Key:        "ids:queue:predict",
			Workers:    3,
			JobTimeout: 30 * time.Second,
			Retention:  24 * time.Hour,
		},
		Subscriber: SubscriberConfig{
			Enabled:        true,
			Channel:        "http_logs",
			DedupSize:      100_000,
			BackoffInitial: 500 * time.Millisecond,
			BackoffMax:     5 * time.Second,
			PingInterval:   60 * time.Second,
		},
		Audit: AuditConfig{
			Path:       "logs/intrusion_detection.log",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
		Auth: AuthConfig{
			TokenTTL: time.Hour,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: 60,
		},
	}
}
