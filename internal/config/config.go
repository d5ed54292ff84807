package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the bot.
type Config struct {
	BotToken string
	Mongo    MongoConfig
	Reminder ReminderConfig
	Logger   LoggerConfig
}

type MongoConfig struct {
	URI  string
	Name string
}

type ReminderConfig struct {
	Interval  time.Duration
	Lookahead time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

// Load reads configuration from environment variables (optionally .env)
// and applies defaults. Only the bot token is mandatory.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		BotToken: os.Getenv("BOT_TOKEN"),
		Mongo: MongoConfig{
			URI:  os.Getenv("MONGO_URI"),
			Name: getString("MONGO_DB", "tomato_bot"),
		},
		Reminder: ReminderConfig{
			Interval:  getDuration("REMINDER_INTERVAL", time.Hour),
			Lookahead: getDuration("REMINDER_LOOKAHEAD", 24*time.Hour),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "console"),
		},
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN environment variable is required")
	}
	if cfg.Reminder.Interval <= 0 {
		return nil, fmt.Errorf("REMINDER_INTERVAL must be positive")
	}
	return cfg, nil
}

func getString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
