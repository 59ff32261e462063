package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123"

func TestLoadDefaultsWithEnv(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("RECONCILE_INTERVAL", "30s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, 30*time.Second, cfg.Reconcile.Interval)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gigboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7000
store:
  backend: postgres
database:
  dsn: postgres://file/db
  max_lifetime: 10m
auth:
  jwt_secret: from-file-secret-value
notify:
  backend: redis
  queue_key: q
tracing:
  exporter: stdout
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DATABASE_DSN", "postgres://env/db")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, StorePostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://env/db", cfg.Database.DSN, "env overrides the file")
	assert.Equal(t, 10*time.Minute, cfg.Database.MaxLifetime)
	assert.Equal(t, "from-file-secret-value", cfg.Auth.JWTSecret)
	assert.Equal(t, NotifyRedis, cfg.Notify.Backend)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns, "unset keys keep defaults")
}

func TestLoadBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [nope"), 0o600))
	t.Setenv("CONFIG_FILE", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"short secret", func(c *Config) { c.Auth.JWTSecret = "short" }},
		{"unknown store", func(c *Config) { c.Store.Backend = "mongo" }},
		{"postgres without dsn", func(c *Config) { c.Store.Backend = StorePostgres; c.Database.DSN = "" }},
		{"unknown notify", func(c *Config) { c.Notify.Backend = "kafka" }},
		{"redis without key", func(c *Config) { c.Notify.Backend = NotifyRedis; c.Notify.QueueKey = "" }},
		{"zero buffer", func(c *Config) { c.Notify.BufferSize = 0 }},
		{"negative rate", func(c *Config) { c.RateLimit.ApplyPerMinute = -1 }},
		{"zero reconcile interval", func(c *Config) { c.Reconcile.Interval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Auth.JWTSecret = testSecret
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
