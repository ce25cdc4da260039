package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	AppHost  string `env:"APP_HOST" env-default:"0.0.0.0"`
	HTTPPort string `env:"APP_PORT" env-default:"8097"`
	AppEnv   string `env:"APP_ENV" env-default:"development"`

	Log      LogConfig
	DB       DBConfig
	Queue    QueueConfig
	LLM      LLMConfig
	Feedback FeedbackConfig
	Kafka    KafkaConfig
	Auth     AuthConfig
	Realtime RealtimeConfig
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"json"`
}

// DBConfig selects PostgreSQL (production) or a SQLite file for local runs.
type DBConfig struct {
	Driver     string `env:"DB_DRIVER" env-default:"postgres"`
	Host       string `env:"DB_HOST" env-default:"localhost"`
	Port       string `env:"DB_PORT" env-default:"5432"`
	User       string `env:"DB_USER" env-default:"postgres"`
	Password   string `env:"DB_PASSWORD" env-default:"postgres"`
	Database   string `env:"DB_DATABASE" env-default:"counselor_service"`
	SSLMode    string `env:"DB_SSLMODE" env-default:"disable"`
	SQLitePath string `env:"DB_SQLITE_PATH" env-default:"counselor.db"`
}

type QueueConfig struct {
	LeaseDuration time.Duration `env:"QUEUE_LEASE_DURATION" env-default:"2h"`
	// SweepInterval 0 disables the in-process sweeper.
	SweepInterval time.Duration `env:"QUEUE_SWEEP_INTERVAL" env-default:"1m"`
	SweepBatch    int           `env:"QUEUE_SWEEP_BATCH" env-default:"100"`
	PendingLimit  int           `env:"QUEUE_PENDING_LIMIT" env-default:"100"`
}

type LLMConfig struct {
	// Provider is one of mock, gemini, claude.
	Provider  string        `env:"LLM_PROVIDER" env-default:"mock"`
	Model     string        `env:"LLM_MODEL"`
	APIKey    string        `env:"LLM_API_KEY"`
	Project   string        `env:"LLM_PROJECT"`
	Location  string        `env:"LLM_LOCATION" env-default:"us-central1"`
	Timeout   time.Duration `env:"LLM_TIMEOUT" env-default:"20s"`
	Window    int           `env:"LLM_HISTORY_WINDOW" env-default:"6"`
	MaxTokens int           `env:"LLM_MAX_TOKENS" env-default:"512"`
	// DefaultPersona overrides the built-in preamble for unknown cultural tags.
	DefaultPersona string `env:"LLM_DEFAULT_PERSONA"`
}

// FeedbackConfig configures the secondary analyzer. Empty URL disables it.
type FeedbackConfig struct {
	URL        string        `env:"FEEDBACK_URL"`
	Workers    int           `env:"FEEDBACK_WORKERS" env-default:"2"`
	QueueSize  int           `env:"FEEDBACK_QUEUE_SIZE" env-default:"256"`
	MaxRetries uint64        `env:"FEEDBACK_MAX_RETRIES" env-default:"3"`
	Timeout    time.Duration `env:"FEEDBACK_TIMEOUT" env-default:"5s"`
}

type KafkaConfig struct {
	Brokers string `env:"KAFKA_BROKERS"`
	Topic   string `env:"KAFKA_TOPIC_REQUEST" env-default:"counselor.request-events"`
}

// AuthConfig: empty JWTSecret switches the identity middleware to development headers.
type AuthConfig struct {
	JWTSecret string `env:"AUTH_JWT_SECRET"`
	JWTIssuer string `env:"AUTH_JWT_ISSUER"`
}

type RealtimeConfig struct {
	// Feed is local (single replica) or postgres (LISTEN/NOTIFY).
	Feed    string `env:"REALTIME_FEED" env-default:"local"`
	Channel string `env:"REALTIME_CHANNEL" env-default:"request_events"`
	Buffer  int    `env:"REALTIME_BUFFER" env-default:"64"`
}

// Load reads .env files if present and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "postgres":
		if c.DB.Host == "" || c.DB.Database == "" {
			return errors.New("config: DB_HOST and DB_DATABASE are required")
		}
		if c.AppEnv == "production" && c.DB.Password == "" {
			return errors.New("config: in production DB_PASSWORD is required")
		}
	case "sqlite":
		if c.DB.SQLitePath == "" {
			return errors.New("config: DB_SQLITE_PATH is required for sqlite")
		}
		if c.Realtime.Feed == "postgres" {
			return errors.New("config: REALTIME_FEED=postgres requires DB_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("config: unknown DB_DRIVER %q", c.DB.Driver)
	}
	if c.Queue.LeaseDuration <= 0 {
		return errors.New("config: QUEUE_LEASE_DURATION must be positive")
	}
	if c.Queue.SweepInterval < 0 || c.Queue.SweepBatch <= 0 {
		return errors.New("config: QUEUE_SWEEP_INTERVAL must be >= 0 and QUEUE_SWEEP_BATCH > 0")
	}
	if c.Queue.PendingLimit < 0 {
		return errors.New("config: QUEUE_PENDING_LIMIT must be >= 0")
	}
	switch c.LLM.Provider {
	case "mock":
	case "gemini":
		if c.LLM.APIKey == "" && c.LLM.Project == "" {
			return errors.New("config: gemini needs LLM_API_KEY or LLM_PROJECT")
		}
	case "claude":
		if c.LLM.APIKey == "" {
			return errors.New("config: claude needs LLM_API_KEY")
		}
	default:
		return fmt.Errorf("config: unknown LLM_PROVIDER %q", c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 || c.LLM.Window <= 0 {
		return errors.New("config: LLM_TIMEOUT and LLM_HISTORY_WINDOW must be positive")
	}
	if c.Feedback.URL != "" && (c.Feedback.Workers <= 0 || c.Feedback.QueueSize <= 0) {
		return errors.New("config: FEEDBACK_WORKERS and FEEDBACK_QUEUE_SIZE must be positive")
	}
	if c.Realtime.Feed != "local" && c.Realtime.Feed != "postgres" {
		return fmt.Errorf("config: unknown REALTIME_FEED %q", c.Realtime.Feed)
	}
	if c.AppEnv == "production" && len(c.Auth.JWTSecret) < 32 {
		return errors.New("config: in production AUTH_JWT_SECRET of at least 32 characters is required")
	}
	return nil
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}
