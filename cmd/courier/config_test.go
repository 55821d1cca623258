package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	assert.Equal(t, ":4700", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "*/5 * * * *", cfg.SnapshotCadence)
	assert.Equal(t, int64(100), cfg.SnapshotThreshold)
	assert.NotEmpty(t, cfg.DBPath)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("COURIER_LISTEN_ADDR", ":9999")
	t.Setenv("COURIER_DB_PATH", "/tmp/courier-test.db")
	t.Setenv("COURIER_LOG_LEVEL", "debug")
	t.Setenv("COURIER_SNAPSHOT_THRESHOLD", "25")
	t.Setenv("COURIER_NTFY_TOPIC", "courier-alerts")

	cfg := loadConfig()

	assert.Equal(t, ":9999", cfg.ListenAddr)
	assert.Equal(t, "/tmp/courier-test.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, int64(25), cfg.SnapshotThreshold)
	assert.Equal(t, "courier-alerts", cfg.NtfyTopic)
}

func TestLoadConfigBadThresholdIgnored(t *testing.T) {
	t.Setenv("COURIER_SNAPSHOT_THRESHOLD", "not-a-number")

	cfg := loadConfig()
	assert.Equal(t, int64(100), cfg.SnapshotThreshold)
}
