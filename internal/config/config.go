package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Workflow WorkflowConfig
	Tracker  TrackerConfig
	Live     LiveConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines how upstream-issued bearer tokens are verified.
type AuthConfig struct {
	JWTSecret       string
	PrivilegedRoles []string
}

// WorkflowConfig lists who handles requests and where links point.
type WorkflowConfig struct {
	Handlers []string
	BaseURL  string
}

// TrackerConfig configures the external issue tracker bridge.
type TrackerConfig struct {
	BaseURL           string
	Token             string
	Project           string
	WebhookSecret     string
	CacheTTLSeconds   int
	ListLimit         int
	RateLimit         int
	RateWindowSeconds int
	StateBackend      string
}

// LiveConfig tunes the live event stream.
type LiveConfig struct {
	HeartbeatSeconds int
	BufferSize       int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	backend := strings.ToLower(getEnv("TRACKER_STATE_BACKEND", "memory"))
	if backend != "memory" && backend != "redis" {
		return nil, fmt.Errorf("invalid TRACKER_STATE_BACKEND: %q", backend)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "picto-request-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:  os.Getenv("REDIS_PASSWORD"),
			DB:        redisDB,
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "picto"),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:       getEnv("AUTH_JWT_SECRET", "dev-secret"),
			PrivilegedRoles: getEnvAsList("AUTH_PRIVILEGED_ROLES", []string{"handler", "admin"}),
		},
		Workflow: WorkflowConfig{
			Handlers: getEnvAsList("WORKFLOW_HANDLERS", nil),
			BaseURL:  strings.TrimSuffix(getEnv("WORKFLOW_BASE_URL", ""), "/"),
		},
		Tracker: TrackerConfig{
			BaseURL:           os.Getenv("TRACKER_BASE_URL"),
			Token:             os.Getenv("TRACKER_TOKEN"),
			Project:           os.Getenv("TRACKER_PROJECT"),
			WebhookSecret:     os.Getenv("TRACKER_WEBHOOK_SECRET"),
			CacheTTLSeconds:   getEnvAsInt("TRACKER_CACHE_TTL_SECONDS", 300),
			ListLimit:         getEnvAsInt("TRACKER_LIST_LIMIT", 30),
			RateLimit:         getEnvAsInt("TRACKER_RATE_LIMIT", 5),
			RateWindowSeconds: getEnvAsInt("TRACKER_RATE_WINDOW_SECONDS", 3600),
			StateBackend:      backend,
		},
		Live: LiveConfig{
			HeartbeatSeconds: getEnvAsInt("LIVE_HEARTBEAT_SECONDS", 25),
			BufferSize:       getEnvAsInt("LIVE_BUFFER_SIZE", 16),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Configured reports whether outbound tracker calls can be made.
func (t TrackerConfig) Configured() bool {
	return t.Token != "" && t.Project != ""
}

// CacheTTL returns the listing cache lifetime.
func (t TrackerConfig) CacheTTL() time.Duration {
	return time.Duration(t.CacheTTLSeconds) * time.Second
}

// RateWindow returns the fixed rate-limit window.
func (t TrackerConfig) RateWindow() time.Duration {
	return time.Duration(t.RateWindowSeconds) * time.Second
}

// Heartbeat returns the keep-alive interval for live streams.
func (l LiveConfig) Heartbeat() time.Duration {
	if l.HeartbeatSeconds <= 0 {
		return 25 * time.Second
	}
	return time.Duration(l.HeartbeatSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
