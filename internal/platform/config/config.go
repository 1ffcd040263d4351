package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
)

type HTTPConfig struct {
	Addr        string
	CORSOrigins string // comma separated, empty means "*"
	// ReadTimeout bounds reading a whole request, uploads included.
	ReadTimeout time.Duration
}

type AppConfig struct {
	ServiceName string
	Env         string
	LogLevel    string
	HTTP        HTTPConfig
}

// IsProduction reports whether APP_ENV=production. Production forbids the
// in-memory fallbacks used during development.
func (c AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Load reads the settings every service shares from the environment.
func Load() (AppConfig, error) {
	cfg := AppConfig{
		ServiceName: strings.TrimSpace(os.Getenv("SERVICE_NAME")),
		Env:         strings.TrimSpace(os.Getenv("APP_ENV")),
		LogLevel:    strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))),
		HTTP: HTTPConfig{
			Addr:        strings.TrimSpace(os.Getenv("HTTP_ADDR")),
			CORSOrigins: strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")),
		},
	}
	if cfg.ServiceName == "" {
		return AppConfig{}, errors.New("SERVICE_NAME is required")
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, err := zapcore.ParseLevel(cfg.LogLevel); err != nil {
		return AppConfig{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}

	if raw := strings.TrimSpace(os.Getenv("HTTP_READ_TIMEOUT")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return AppConfig{}, fmt.Errorf("HTTP_READ_TIMEOUT: invalid duration %q", raw)
		}
		cfg.HTTP.ReadTimeout = d
	}
	return cfg, nil
}
