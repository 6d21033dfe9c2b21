package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all advisor CLI configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	RulesPath  string `json:"rules_path"`
	LogLevel   string `json:"log_level"`
	MaxExprLen int    `json:"max_expr_len"`
	MaxDepth   int    `json:"max_depth"`
	Telemetry  bool   `json:"telemetry"`
	ReloadCron string `json:"reload_cron"`
}

func defaultConfig() Config {
	return Config{
		LogLevel:  "info",
		Telemetry: true,
	}
}

func advisorDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".advisor"
	}
	return filepath.Join(home, ".advisor")
}

func settingsPath() string {
	return filepath.Join(advisorDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("ADVISOR_RULES"); v != "" {
		cfg.RulesPath = v
	}
	if v := os.Getenv("ADVISOR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ADVISOR_MAX_EXPR_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxExprLen = n
		}
	}
	if v := os.Getenv("ADVISOR_MAX_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxDepth = n
		}
	}
	if v := os.Getenv("ADVISOR_TELEMETRY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Telemetry = b
		}
	}
	if v := os.Getenv("ADVISOR_RELOAD_CRON"); v != "" {
		cfg.ReloadCron = v
	}

	return cfg
}
