package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all courier configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	ListenAddr        string `json:"listen_addr"`
	DBPath            string `json:"db_path"`
	LogLevel          string `json:"log_level"`
	SnapshotCadence   string `json:"snapshot_cadence"`
	SnapshotThreshold int64  `json:"snapshot_threshold"`
	NtfyServer        string `json:"ntfy_server"`
	NtfyTopic         string `json:"ntfy_topic"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:        ":4700",
		DBPath:            filepath.Join(courierDir(), "courier.db"),
		LogLevel:          "info",
		SnapshotCadence:   "*/5 * * * *",
		SnapshotThreshold: 100,
	}
}

func courierDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".courier"
	}
	return filepath.Join(home, ".courier")
}

func settingsPath() string {
	return filepath.Join(courierDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("COURIER_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("COURIER_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("COURIER_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("COURIER_SNAPSHOT_CADENCE"); v != "" {
		cfg.SnapshotCadence = v
	}
	if v := os.Getenv("COURIER_SNAPSHOT_THRESHOLD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.SnapshotThreshold = n
		}
	}
	if v := os.Getenv("COURIER_NTFY_SERVER"); v != "" {
		cfg.NtfyServer = v
	}
	if v := os.Getenv("COURIER_NTFY_TOPIC"); v != "" {
		cfg.NtfyTopic = v
	}

	return cfg
}
