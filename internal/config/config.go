package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN       string `env:"DATABASE_DSN,required=true"`
	RedisURL          string `env:"REDIS_URL,required=true"`
	DiscordBotToken   string `env:"DISCORD_BOT_TOKEN,required=true"`
	DiscordAPIBaseURL string `env:"DISCORD_API_BASE_URL,default=https://discord.com/api/v10"`
	PollIntervalSec   int    `env:"POLL_INTERVAL_SEC,default=30"`
	BatchSize         int    `env:"BATCH_SIZE,default=100"`
	MaxRetries        int    `env:"MAX_RETRIES,default=3"`
	RateLimitPerSec   int    `env:"RATE_LIMIT_PER_SEC,default=25"`
	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
