package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv изолирует тест от окружения машины.
func clearEnv(t *testing.T) {
	t.Helper()
	for name := range envKeys {
		t.Setenv(name, "")
	}
	t.Setenv(FileEnv, "")
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "courier.tasks", cfg.Broker.Queue)
	assert.Equal(t, 8, cfg.Worker.Concurrency)
	assert.Equal(t, 5, cfg.Worker.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Worker.ShutdownGrace)
	assert.Equal(t, 34*time.Millisecond, cfg.Delivery.RateLimitInterval)
	assert.Equal(t, int32(10), cfg.Store.MaxConns, "max conns = concurrency + 2")
	assert.Equal(t, 8082, cfg.HTTP.Port)
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("RABBITMQ_URL", "amqp://u:p@mq:5672/")
	t.Setenv("RABBITMQ_QUEUE", "telegram_queue")
	t.Setenv("DATABASE_URL", "postgres://db/courier")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("WORKER_CONCURRENCY", "16")
	t.Setenv("WORKER_RETRY_INITIAL", "250ms")
	t.Setenv("WORKER_SHUTDOWN_GRACE", "5s")
	t.Setenv("RATE_LIMIT_INTERVAL", "0s")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "amqp://u:p@mq:5672/", cfg.Broker.URL)
	assert.Equal(t, "telegram_queue", cfg.Broker.Queue)
	assert.Equal(t, "postgres://db/courier", cfg.Store.URL)
	assert.Equal(t, "123:abc", cfg.Telegram.BotToken)
	assert.Equal(t, 16, cfg.Worker.Concurrency)
	assert.Equal(t, int32(18), cfg.Store.MaxConns)
	assert.Equal(t, 250*time.Millisecond, cfg.Worker.RetryInitial)
	assert.Equal(t, 5*time.Second, cfg.Worker.ShutdownGrace)
	assert.Equal(t, time.Duration(0), cfg.Delivery.RateLimitInterval)
	assert.Equal(t, "DEBUG", cfg.Log.Level)
}

func TestLoad_DatabaseURLPrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("DB_URL", "postgres://legacy/db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://legacy/db", cfg.Store.URL)

	t.Setenv("DATABASE_URL", "postgres://primary/db")

	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres://primary/db", cfg.Store.URL)
}

func TestLoad_FileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "courier.yaml")
	yaml := `
broker:
  queue: notifications
worker:
  concurrency: 4
  max_attempts: 3
telegram:
  bot_token: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv(FileEnv, path)
	t.Setenv("WORKER_MAX_ATTEMPTS", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "notifications", cfg.Broker.Queue)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 7, cfg.Worker.MaxAttempts, "env overrides file")
	assert.Equal(t, "from-file", cfg.Telegram.BotToken)
	assert.Equal(t, 30*time.Second, cfg.Worker.RetryMax, "untouched keys keep defaults")
}

func TestLoad_MissingFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(FileEnv, filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr []string
	}{
		{
			name: "valid",
			mutate: func(c *Config) {
				c.Store.URL = "postgres://db"
				c.Telegram.BotToken = "t"
			},
		},
		{
			name:    "missing required",
			mutate:  func(*Config) {},
			wantErr: []string{"store.url is required (DATABASE_URL)", "telegram.bot_token is required (TELEGRAM_BOT_TOKEN)"},
		},
		{
			name: "zero concurrency",
			mutate: func(c *Config) {
				c.Store.URL = "postgres://db"
				c.Telegram.BotToken = "t"
				c.Worker.Concurrency = 0
			},
			wantErr: []string{"worker.concurrency", "WORKER_CONCURRENCY"},
		},
		{
			name: "retry max below initial",
			mutate: func(c *Config) {
				c.Store.URL = "postgres://db"
				c.Telegram.BotToken = "t"
				c.Worker.RetryMax = time.Millisecond
			},
			wantErr: []string{"worker.retry_max"},
		},
		{
			name: "bad log format",
			mutate: func(c *Config) {
				c.Store.URL = "postgres://db"
				c.Telegram.BotToken = "t"
				c.Log.Format = "xml"
			},
			wantErr: []string{"log.format must be one of [json text]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if len(tt.wantErr) == 0 {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalid)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestValidateCLI_IgnoresTelegram(t *testing.T) {
	cfg := Default()
	cfg.Store.URL = "postgres://db"

	assert.NoError(t, cfg.ValidateCLI())
	assert.Error(t, cfg.Validate())

	cfg.Store.URL = ""
	err := cfg.ValidateCLI()
	require.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "store.url")
	assert.NotContains(t, err.Error(), "telegram")
}
