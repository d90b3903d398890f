package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	AppEnv       string
	PortalURL    string
	Username     string
	Password     string
	Referer      string
	ServiceURL   string
	Levels       string
	ExportExtent string
	TilePackage  bool
	DestDir      string
	PollInterval time.Duration
	LogLevel     string
	LogFormat    string
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:       getEnv("APP_ENV", "development"),
		PortalURL:    getEnv("PORTAL_URL", ""),
		Username:     getEnv("PORTAL_USERNAME", ""),
		Password:     getEnv("PORTAL_PASSWORD", ""),
		Referer:      getEnv("PORTAL_REFERER", ""),
		ServiceURL:   getEnv("SERVICE_URL", ""),
		Levels:       getEnv("EXPORT_LEVELS", ""),
		ExportExtent: getEnv("EXPORT_EXTENT", ""),
		DestDir:      getEnv("DEST_DIR", "."),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogFormat:    getEnv("LOG_FORMAT", "text"),
	}

	if cfg.PortalURL == "" {
		return nil, fmt.Errorf("PORTAL_URL is required")
	}
	if cfg.ServiceURL == "" {
		return nil, fmt.Errorf("SERVICE_URL is required")
	}
	if cfg.Levels == "" {
		return nil, fmt.Errorf("EXPORT_LEVELS is required")
	}

	// Credentials: both must be set together, anonymous access otherwise
	if (cfg.Username == "") != (cfg.Password == "") {
		return nil, fmt.Errorf("PORTAL_USERNAME and PORTAL_PASSWORD must be set together")
	}

	if raw := getEnv("TILE_PACKAGE", ""); raw != "" {
		tilePackage, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("TILE_PACKAGE must be a boolean: %w", err)
		}
		cfg.TilePackage = tilePackage
	}

	cfg.PollInterval = 5 * time.Second
	if raw := getEnv("POLL_INTERVAL", ""); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("POLL_INTERVAL must be a duration like 5s: %w", err)
		}
		if interval <= 0 {
			return nil, fmt.Errorf("POLL_INTERVAL must be positive")
		}
		cfg.PollInterval = interval
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
