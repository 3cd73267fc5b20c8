package config

import (
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_DSN", "host=localhost user=test password=test dbname=test port=5432 sslmode=disable")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("DISCORD_BOT_TOKEN", "bot-token-test")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 8080 {
		t.Errorf("APIPort = %d, want 8080", cfg.APIPort)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %s, want info", cfg.LogLevel)
	}
	if cfg.PollIntervalSec != 30 {
		t.Errorf("PollIntervalSec = %d, want 30", cfg.PollIntervalSec)
	}
	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.BatchSize)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.RateLimitPerSec != 25 {
		t.Errorf("RateLimitPerSec = %d, want 25", cfg.RateLimitPerSec)
	}
	if cfg.DiscordAPIBaseURL != "https://discord.com/api/v10" {
		t.Errorf("DiscordAPIBaseURL = %s, want https://discord.com/api/v10", cfg.DiscordAPIBaseURL)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("POLL_INTERVAL_SEC", "5")
	t.Setenv("BATCH_SIZE", "50")
	t.Setenv("MAX_RETRIES", "1")
	t.Setenv("DISCORD_API_BASE_URL", "http://localhost:9999/api")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", cfg.APIPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.PollIntervalSec != 5 {
		t.Errorf("PollIntervalSec = %d, want 5", cfg.PollIntervalSec)
	}
	if cfg.BatchSize != 50 {
		t.Errorf("BatchSize = %d, want 50", cfg.BatchSize)
	}
	if cfg.MaxRetries != 1 {
		t.Errorf("MaxRetries = %d, want 1", cfg.MaxRetries)
	}
	if cfg.DiscordAPIBaseURL != "http://localhost:9999/api" {
		t.Errorf("DiscordAPIBaseURL = %s, want http://localhost:9999/api", cfg.DiscordAPIBaseURL)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_DSN", "host=localhost")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
}

func TestLoad_RequiredFields(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DatabaseDSN == "" {
		t.Error("DatabaseDSN should not be empty")
	}
	if cfg.RedisURL == "" {
		t.Error("RedisURL should not be empty")
	}
	if cfg.DiscordBotToken == "" {
		t.Error("DiscordBotToken should not be empty")
	}
}
