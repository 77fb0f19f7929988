package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider modes.
const (
	ProviderModeStub   = "stub"
	ProviderModeRemote = "remote"
)

// Remote provider backends.
const (
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Queue        QueueConfig
	Worker       WorkerConfig
	Provider     ProviderConfig
	Triage       TriageConfig
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
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig holds stub notification endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// QueueConfig controls the triage job queue.
type QueueConfig struct {
	Driver             string
	Name               string
	KeyPrefix          string
	MaxAttempts        int
	BackoffBaseMillis  int
	PollWaitMillis     int
	DoneRetentionHours int
}

// WorkerConfig controls triage worker processes.
type WorkerConfig struct {
	Enabled     bool
	Concurrency int
	// SerializePerTicket guards each ticket with an in-process lock when
	// Concurrency > 1.
	SerializePerTicket bool
	RecoverOnStart     bool
}

// ProviderConfig selects and configures the classification/drafting provider.
type ProviderConfig struct {
	Mode           string
	Backend        string
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
	PromptVersion  string
}

// TriageConfig holds the defaults used when the triage settings singleton is
// first created, and how long a loaded copy stays fresh.
type TriageConfig struct {
	AutoCloseEnabled    bool
	ConfidenceThreshold float64
	SLAHours            int
	RefreshIntervalSec  int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	backend := strings.ToLower(getEnv("PROVIDER_BACKEND", BackendOpenAI))

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "triage-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
		Queue: QueueConfig{
			Driver:             strings.ToLower(getEnv("QUEUE_DRIVER", "redis")),
			Name:               getEnv("QUEUE_NAME", "triageQueue"),
			KeyPrefix:          getEnv("QUEUE_KEY_PREFIX", "triage"),
			MaxAttempts:        getEnvAsInt("QUEUE_MAX_ATTEMPTS", 3),
			BackoffBaseMillis:  getEnvAsInt("QUEUE_BACKOFF_BASE_MS", 1000),
			PollWaitMillis:     getEnvAsInt("QUEUE_POLL_WAIT_MS", 1000),
			DoneRetentionHours: getEnvAsInt("QUEUE_DONE_RETENTION_HOURS", 24),
		},
		Worker: WorkerConfig{
			Enabled:            getEnvAsBool("WORKER_ENABLED", true),
			Concurrency:        getEnvAsInt("WORKER_CONCURRENCY", 1),
			SerializePerTicket: getEnvAsBool("WORKER_SERIALIZE_PER_TICKET", true),
			RecoverOnStart:     getEnvAsBool("WORKER_RECOVER_ON_START", false),
		},
		Provider: ProviderConfig{
			Mode:           strings.ToLower(getEnv("PROVIDER_MODE", ProviderModeStub)),
			Backend:        backend,
			BaseURL:        getEnv("PROVIDER_BASE_URL", "https://api.openai.com/v1"),
			APIKey:         os.Getenv("PROVIDER_API_KEY"),
			Model:          getEnv("PROVIDER_MODEL", defaultModel(backend)),
			TimeoutSeconds: getEnvAsInt("PROVIDER_TIMEOUT_SECONDS", 10),
			PromptVersion:  getEnv("PROVIDER_PROMPT_VERSION", "1.0"),
		},
		Triage: TriageConfig{
			AutoCloseEnabled:    getEnvAsBool("TRIAGE_AUTO_CLOSE_ENABLED", true),
			ConfidenceThreshold: getEnvAsFloat("TRIAGE_CONFIDENCE_THRESHOLD", 0.78),
			SLAHours:            getEnvAsInt("TRIAGE_SLA_HOURS", 24),
			RefreshIntervalSec:  getEnvAsInt("TRIAGE_CONFIG_REFRESH_SECONDS", 30),
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

// BackoffBase returns the first retry delay.
func (q QueueConfig) BackoffBase() time.Duration {
	if q.BackoffBaseMillis <= 0 {
		return time.Second
	}
	return time.Duration(q.BackoffBaseMillis) * time.Millisecond
}

// PollWait returns how long a worker blocks waiting for a job.
func (q QueueConfig) PollWait() time.Duration {
	if q.PollWaitMillis <= 0 {
		return time.Second
	}
	return time.Duration(q.PollWaitMillis) * time.Millisecond
}

// DoneRetention returns how long completed job records are kept.
func (q QueueConfig) DoneRetention() time.Duration {
	if q.DoneRetentionHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(q.DoneRetentionHours) * time.Hour
}

// Timeout returns the per-call provider timeout.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// RefreshInterval returns how long a cached settings singleton is trusted.
func (t TriageConfig) RefreshInterval() time.Duration {
	if t.RefreshIntervalSec <= 0 {
		return 0
	}
	return time.Duration(t.RefreshIntervalSec) * time.Second
}

// AccessTokenTTL returns the lifetime of issued tokens.
func (a AuthConfig) AccessTokenTTL() time.Duration {
	if a.AccessTokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.AccessTokenTTLMinutes) * time.Minute
}

func defaultModel(backend string) string {
	if backend == BackendGemini {
		return "gemini-2.0-flash"
	}
	return "gpt-3.5-turbo"
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

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}
