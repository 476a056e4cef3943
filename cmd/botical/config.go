package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all botical server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath      string `json:"db_path"`
	LogLevel    string `json:"log_level"`
	PoolSize    int    `json:"pool_size"`
	Scheduler   bool   `json:"scheduler"`
	HTTPTimeout int    `json:"http_timeout_seconds"`
	HTTPBodyMax int64  `json:"http_body_max_bytes"`
}

func defaultConfig() Config {
	return Config{
		DBPath:    filepath.Join(boticalDir(), "botical.db"),
		LogLevel:  "info",
		PoolSize:  10,
		Scheduler: true,
	}
}

func boticalDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".botical"
	}
	return filepath.Join(home, ".botical")
}

func settingsPath() string {
	return filepath.Join(boticalDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("BOTICAL_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("BOTICAL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BOTICAL_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PoolSize = n
		}
	}
	if v := os.Getenv("BOTICAL_SCHEDULER"); v != "" {
		cfg.Scheduler = v == "true" || v == "1"
	}
	if v := os.Getenv("BOTICAL_HTTP_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HTTPTimeout = n
		}
	}
	if v := os.Getenv("BOTICAL_HTTP_BODY_MAX"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.HTTPBodyMax = n
		}
	}
	return cfg
}
