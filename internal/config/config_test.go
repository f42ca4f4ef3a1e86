package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, ":5000", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, "postgres", cfg.Engine)
	assert.Equal(t, "localhost", cfg.MySQL.Host)
	assert.Equal(t, 3306, cfg.MySQL.Port)
	assert.Equal(t, "abacws", cfg.MySQL.Database)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "abacws", cfg.Database.Database)
	assert.Equal(t, 30, cfg.Retry.MaxAttempts)
	assert.Equal(t, 300*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 5*time.Second, cfg.Retry.MaxDelay)
	assert.True(t, cfg.SeedDevices)
	assert.Equal(t, 8*time.Second, cfg.Stream.Interval)
	assert.False(t, cfg.Mirror.Enabled)
	assert.False(t, cfg.MQTT.Enabled)
	assert.Empty(t, cfg.Webhook.URL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":8089")
	t.Setenv("DB_ENGINE", "disabled")
	t.Setenv("PGHOST", "db.internal")
	t.Setenv("PG_MAX_CONNECT_ATTEMPTS", "5")
	t.Setenv("PG_INITIAL_DELAY_MS", "100")
	t.Setenv("STREAM_INTERVAL_MS", "2000")
	t.Setenv("SEED_DEVICES", "false")
	t.Setenv("MIRROR_ENABLED", "true")
	t.Setenv("RULE_WEBHOOK_URL", "http://hooks.internal/rules")

	cfg := Load()

	assert.Equal(t, ":8089", cfg.HTTP.Addr)
	assert.Equal(t, "disabled", cfg.Engine)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Retry.InitialDelay)
	assert.Equal(t, 2*time.Second, cfg.Stream.Interval)
	assert.False(t, cfg.SeedDevices)
	assert.True(t, cfg.Mirror.Enabled)
	assert.Equal(t, "http://hooks.internal/rules", cfg.Webhook.URL)
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "api",
		Password: "secret",
		Database: "abacws",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.internal port=5433 user=api password=secret dbname=abacws sslmode=require",
		c.DSN())
}

func TestMySQLDSN(t *testing.T) {
	c := DatabaseConfig{
		Host:     "db.internal",
		Port:     3307,
		User:     "api",
		Password: "secret",
		Database: "abacws",
	}
	assert.Equal(t, "api:secret@tcp(db.internal:3307)/abacws?parseTime=true", c.MySQLDSN())
}

func TestLoad_BadNumbersFallBack(t *testing.T) {
	t.Setenv("PGPORT", "not-a-port")
	t.Setenv("PG_MAX_CONNECT_ATTEMPTS", "")

	cfg := Load()
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 30, cfg.Retry.MaxAttempts)
}
