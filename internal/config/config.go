package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	DatabaseURL string
	DBMaxConns  int32

	// Poll cadences for the two queue views. The waiting-room board polls
	// slower than the consultation worklist.
	ConsultPollInterval     time.Duration
	WaitingRoomPollInterval time.Duration

	RateLimitPerMinute int
	RateLimitBurst     int
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_MAX_CONNS", 8)
	v.SetDefault("CONSULT_POLL_SECONDS", 10)
	v.SetDefault("WAITING_ROOM_POLL_SECONDS", 30)
	v.SetDefault("RATE_LIMIT_PER_MIN", 120)
	v.SetDefault("RATE_LIMIT_BURST", 30)

	v.BindEnv("PORT")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("CONSULT_POLL_SECONDS")
	v.BindEnv("WAITING_ROOM_POLL_SECONDS")
	v.BindEnv("RATE_LIMIT_PER_MIN")
	v.BindEnv("RATE_LIMIT_BURST")

	// .env is optional; real deployments set environment variables.
	_ = v.ReadInConfig()

	cfg := &Config{
		Port:                    v.GetString("PORT"),
		DatabaseURL:             v.GetString("DATABASE_URL"),
		DBMaxConns:              v.GetInt32("DB_MAX_CONNS"),
		ConsultPollInterval:     secondsDuration(v.GetInt("CONSULT_POLL_SECONDS"), 10),
		WaitingRoomPollInterval: secondsDuration(v.GetInt("WAITING_ROOM_POLL_SECONDS"), 30),
		RateLimitPerMinute:      v.GetInt("RATE_LIMIT_PER_MIN"),
		RateLimitBurst:          v.GetInt("RATE_LIMIT_BURST"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func secondsDuration(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}
