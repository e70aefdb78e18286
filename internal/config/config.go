package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Environment string
	LogLevel    slog.Level

	RedisURL string

	AnthropicAPIKey string
	ModelName       string

	CacheCapacity        int
	CacheTTL             time.Duration
	BranchExpirySeconds  int
	AnticipationInterval time.Duration
	AnticipationActions  int
}

func Load() *Config {
	return &Config{
		Environment:          getEnv("ENVIRONMENT", "development"),
		LogLevel:             parseLogLevel(getEnv("LOG_LEVEL", "info")),
		RedisURL:             getEnv("REDIS_URL", "localhost:6379"),
		AnthropicAPIKey:      getEnv("ANTHROPIC_API_KEY", ""),
		ModelName:            getEnv("MODEL_NAME", "claude-sonnet-4-20250514"),
		CacheCapacity:        getEnvInt("CACHE_CAPACITY", 64),
		CacheTTL:             getEnvDuration("CACHE_TTL", 5*time.Minute),
		BranchExpirySeconds:  getEnvInt("BRANCH_EXPIRY_SECONDS", 180),
		AnticipationInterval: getEnvDuration("ANTICIPATION_INTERVAL", 3*time.Second),
		AnticipationActions:  getEnvInt("ANTICIPATION_ACTIONS", 4),
	}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
