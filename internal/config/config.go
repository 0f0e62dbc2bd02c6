package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Backend names for the analytics store.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all configuration for the clickstack service.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Admin     AdminConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Metrics   MetricsConfig
	Analytics AnalyticsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

// DatabaseConfig selects and configures the storage backend.
type DatabaseConfig struct {
	Backend    string // sqlite or postgres
	SQLitePath string

	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// AdminConfig guards the maintenance rollup endpoint. An empty Secret
// means the endpoint is not configured and must fail closed.
type AdminConfig struct {
	Secret string
}

type RateLimitConfig struct {
	Enabled     bool
	IngestRPS   float64
	IngestBurst int
	QueryRPS    float64
	QueryBurst  int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// AnalyticsConfig holds the rollup and query policy knobs.
type AnalyticsConfig struct {
	// RetentionDays is the raw-event retention horizon.
	RetentionDays int
	// PopularCacheTTL bounds staleness of the cached popular widget.
	PopularCacheTTL time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("CLICKSTACK_HTTP_ADDR", ":8080"),
			Env:             getEnv("CLICKSTACK_ENV", "development"),
			ShutdownTimeout: getDurationEnv("CLICKSTACK_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Backend:    getEnv("CLICKSTACK_DB_BACKEND", BackendSQLite),
			SQLitePath: getEnv("CLICKSTACK_SQLITE_PATH", "instance/analytics.db"),
			Host:       getEnv("CLICKSTACK_DB_HOST", "localhost"),
			Port:       getIntEnv("CLICKSTACK_DB_PORT", 5432),
			User:       getEnv("CLICKSTACK_DB_USER", "clickstack"),
			Password:   getEnv("CLICKSTACK_DB_PASSWORD", ""),
			DBName:     getEnv("CLICKSTACK_DB_NAME", "clickstack"),
			SSLMode:    getEnv("CLICKSTACK_DB_SSLMODE", "disable"),
			MaxConns:   getIntEnv("CLICKSTACK_DB_MAX_CONNS", 25),
			MinConns:   getIntEnv("CLICKSTACK_DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("CLICKSTACK_REDIS_ENABLED", false),
			Addr:     getEnv("CLICKSTACK_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("CLICKSTACK_REDIS_PASSWORD", ""),
			DB:       getIntEnv("CLICKSTACK_REDIS_DB", 0),
		},
		Admin: AdminConfig{
			Secret: getEnv("CLICKSTACK_ADMIN_SECRET", ""),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getBoolEnv("CLICKSTACK_RATE_LIMIT_ENABLED", true),
			IngestRPS:   getFloatEnv("CLICKSTACK_RATE_LIMIT_INGEST_RPS", 200),
			IngestBurst: getIntEnv("CLICKSTACK_RATE_LIMIT_INGEST_BURST", 50),
			QueryRPS:    getFloatEnv("CLICKSTACK_RATE_LIMIT_QUERY_RPS", 50),
			QueryBurst:  getIntEnv("CLICKSTACK_RATE_LIMIT_QUERY_BURST", 10),
		},
		Log: LogConfig{
			Level:  getEnv("CLICKSTACK_LOG_LEVEL", "info"),
			Format: getEnv("CLICKSTACK_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("CLICKSTACK_METRICS_ENABLED", true),
			Path:    getEnv("CLICKSTACK_METRICS_PATH", "/metrics"),
		},
		Analytics: AnalyticsConfig{
			RetentionDays:   getIntEnv("CLICKSTACK_RETENTION_DAYS", 90),
			PopularCacheTTL: getDurationEnv("CLICKSTACK_POPULAR_CACHE_TTL", time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	switch c.Database.Backend {
	case BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("unknown database backend %q", c.Database.Backend)
	}
	if c.Analytics.RetentionDays < 2 {
		return fmt.Errorf("CLICKSTACK_RETENTION_DAYS must be at least 2, got %d", c.Analytics.RetentionDays)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
