package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServer_Defaults(t *testing.T) {
	cfg := LoadServer()

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "callguard", cfg.Database.Database)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 30, cfg.Retention.ActivityDays)
	assert.Equal(t, 90, cfg.Retention.AlertDays)
	assert.Equal(t, 30*time.Second, cfg.Realtime.HeartbeatInterval)
	assert.Equal(t, 30*time.Minute, cfg.Database.ConnMaxLifetime)
}

func TestLoadServer_EnvOverride(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DB_PORT", "5433")
	t.Setenv("RETENTION_ACTIVITY_DAYS", "7")
	t.Setenv("REALTIME_HEARTBEAT_INTERVAL", "10s")

	cfg := LoadServer()
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, 7, cfg.Retention.ActivityDays)
	assert.Equal(t, 10*time.Second, cfg.Realtime.HeartbeatInterval)
}

func TestLoadServer_YAMLBase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
http:
  addr: ":7070"
database:
  host: db.internal
  port: 6000
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("CONFIG_FILE", path)
	// 环境变量仍然覆盖 YAML
	t.Setenv("DB_PORT", "6001")

	cfg := LoadServer()
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6001, cfg.Database.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadAgent_Defaults(t *testing.T) {
	cfg := LoadAgent()

	assert.Equal(t, "http://localhost:8080", cfg.ServerURL)
	assert.Equal(t, 100, cfg.Sync.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, 30*time.Second, cfg.Sync.UploadTimeout)
	assert.Equal(t, 500, cfg.ContactCacheSize)
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "h", Port: 5432, User: "u", Password: "p",
		Database: "d", SSLMode: "disable",
	}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=d sslmode=disable", cfg.DSN())
}
