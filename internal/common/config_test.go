package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	t.Setenv("DB_URL", "file:test.db")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("CALENDAR_AUTH_WINDOW", "10m")
	t.Setenv("CALENDAR_SYNC_CONCURRENCY", "4")
	t.Setenv("DB_MAX_CONNS", "not-a-number")
	t.Setenv("GOOGLE_CLIENT_ID", "client")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, int32(20), cfg.Database.MaxConns)
	assert.Equal(t, 10*time.Minute, cfg.Calendar.AuthorizationWindow)
	assert.Equal(t, 4, cfg.Calendar.Concurrency)
	assert.Equal(t, "School", cfg.Calendar.CalendarName)
	assert.Equal(t, 20000, cfg.LLM.MaxInputChars)
	assert.Equal(t, "syllabi", cfg.Blob.Prefix)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "postgres", DSN: "postgres://x"},
			Server:   ServerConfig{GRPCAddr: ":8080"},
			Calendar: CalendarConfig{ClientID: "id", Concurrency: 1},
		}
	}
	require.NoError(t, base().Validate())

	for name, mutate := range map[string]func(*Config){
		"driver":      func(c *Config) { c.Database.Driver = "mysql" },
		"dsn":         func(c *Config) { c.Database.DSN = "" },
		"grpc":        func(c *Config) { c.Server.GRPCAddr = "" },
		"client id":   func(c *Config) { c.Calendar.ClientID = "" },
		"concurrency": func(c *Config) { c.Calendar.Concurrency = 0 },
		"retries":     func(c *Config) { c.LLM.MaxRetries = -1 },
	} {
		t.Run(name, func(t *testing.T) {
			c := base()
			mutate(c)
			err := c.Validate()
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, "CONFIG_ERROR", ErrorCode(err))
		})
	}
}
