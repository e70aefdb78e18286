package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	if cfg.Environment != "development" {
		t.Errorf("environment = %q, want development", cfg.Environment)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("log level = %v, want info", cfg.LogLevel)
	}
	if cfg.RedisURL != "localhost:6379" {
		t.Errorf("redis url = %q", cfg.RedisURL)
	}
	if cfg.CacheCapacity != 64 {
		t.Errorf("cache capacity = %d, want 64", cfg.CacheCapacity)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("cache ttl = %v, want 5m", cfg.CacheTTL)
	}
	if cfg.AnticipationActions != 4 {
		t.Errorf("anticipation actions = %d, want 4", cfg.AnticipationActions)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CACHE_CAPACITY", "128")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("BRANCH_EXPIRY_SECONDS", "60")

	cfg := Load()

	if cfg.Environment != "production" {
		t.Errorf("environment = %q, want production", cfg.Environment)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v, want debug", cfg.LogLevel)
	}
	if cfg.CacheCapacity != 128 {
		t.Errorf("cache capacity = %d, want 128", cfg.CacheCapacity)
	}
	if cfg.CacheTTL != 90*time.Second {
		t.Errorf("cache ttl = %v, want 90s", cfg.CacheTTL)
	}
	if cfg.BranchExpirySeconds != 60 {
		t.Errorf("branch expiry = %d, want 60", cfg.BranchExpirySeconds)
	}
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("CACHE_CAPACITY", "plenty")
	t.Setenv("CACHE_TTL", "soonish")
	t.Setenv("LOG_LEVEL", "loud")

	cfg := Load()

	if cfg.CacheCapacity != 64 {
		t.Errorf("cache capacity = %d, want default 64", cfg.CacheCapacity)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("cache ttl = %v, want default 5m", cfg.CacheTTL)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("log level = %v, want default info", cfg.LogLevel)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
