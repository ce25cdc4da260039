package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_PORT", "9000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.HTTPPort)
	assert.Equal(t, "counselor_service", cfg.DB.Database)
	assert.Equal(t, 2*time.Hour, cfg.Queue.LeaseDuration)
	assert.Equal(t, 20*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 6, cfg.LLM.Window)
	assert.Equal(t, "mock", cfg.LLM.Provider)
	assert.Equal(t, "local", cfg.Realtime.Feed)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("QUEUE_LEASE_DURATION", "30m")
	t.Setenv("LLM_PROVIDER", "claude")
	t.Setenv("LLM_API_KEY", "key")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Queue.LeaseDuration)
	assert.Equal(t, "claude", cfg.LLM.Provider)
	assert.Equal(t, "k1:9092,k2:9092", cfg.Kafka.Brokers)
	require.NoError(t, cfg.Validate())
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"sqlite", func(c *Config) { c.DB.Driver = "sqlite" }, true},
		{"unknown driver", func(c *Config) { c.DB.Driver = "mysql" }, false},
		{"sqlite with pg feed", func(c *Config) { c.DB.Driver = "sqlite"; c.Realtime.Feed = "postgres" }, false},
		{"zero lease", func(c *Config) { c.Queue.LeaseDuration = 0 }, false},
		{"negative pending limit", func(c *Config) { c.Queue.PendingLimit = -1 }, false},
		{"unbounded pending list", func(c *Config) { c.Queue.PendingLimit = 0 }, true},
		{"gemini without credentials", func(c *Config) { c.LLM.Provider = "gemini" }, false},
		{"gemini with vertex project", func(c *Config) { c.LLM.Provider = "gemini"; c.LLM.Project = "p" }, true},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "gpt" }, false},
		{"zero window", func(c *Config) { c.LLM.Window = 0 }, false},
		{"production without secret", func(c *Config) { c.AppEnv = "production" }, false},
		{"production with secret", func(c *Config) {
			c.AppEnv = "production"
			c.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestDatabaseURL_EscapesPassword(t *testing.T) {
	cfg := &Config{}
	cfg.DB = DBConfig{Host: "db", Port: "5432", User: "u", Password: "p@ss word", Database: "d", SSLMode: "disable"}

	assert.Equal(t, "postgres://u:p%40ss+word@db:5432/d?sslmode=disable", cfg.DatabaseURL())
	assert.Equal(t, "host=db port=5432 user=u password=p@ss word dbname=d sslmode=disable", cfg.DSN())
}
