package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	AppEnv               string
	Port                 string
	DatabaseURL          string
	RedisURL             string
	SessionSecret        string
	SessionCookieName    string
	ExcludedSubprotocols []string
	LogLevel             string
	LogFormat            string
	MaxConnections       int64
	ConnectionsPerSecond float64
	ConnectionBurst      int
}

func Load() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisURL:          getEnv("REDIS_URL", ""),
		SessionSecret:     getEnv("SESSION_SECRET", ""),
		SessionCookieName: getEnv("SESSION_COOKIE_NAME", "portal_session"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		LogFormat:         getEnv("LOG_FORMAT", "text"),
	}

	// Dev-server hot-reload sockets share the upgrade path in local setups
	// and must never be treated as application connections.
	cfg.ExcludedSubprotocols = splitList(getEnv("EXCLUDED_SUBPROTOCOLS", "vite-hmr"))

	var err error
	cfg.MaxConnections, err = getEnvInt64("WS_MAX_CONNECTIONS", 10000)
	if err != nil {
		return nil, err
	}
	cfg.ConnectionsPerSecond, err = getEnvFloat("WS_CONNECTIONS_PER_SECOND", 10)
	if err != nil {
		return nil, err
	}
	burst, err := getEnvInt64("WS_CONNECTION_BURST", 10)
	if err != nil {
		return nil, err
	}
	cfg.ConnectionBurst = int(burst)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}
	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}
	if len(cfg.SessionSecret) < 16 {
		return nil, fmt.Errorf("SESSION_SECRET must be at least 16 characters")
	}
	if cfg.MaxConnections <= 0 {
		return nil, fmt.Errorf("WS_MAX_CONNECTIONS must be positive")
	}
	if cfg.ConnectionsPerSecond <= 0 {
		return nil, fmt.Errorf("WS_CONNECTIONS_PER_SECOND must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
