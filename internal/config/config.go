package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseURL string // empty selects the local SQLite file
	RedisURL    string // empty keeps messages in the database

	AllowedOrigins []string

	// Chat rules
	RoomExpiryDays   int
	LeaveGracePeriod time.Duration
	MessagePageSize  int
	BcryptCost       int
	SessionIOTimeout time.Duration

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisURL:           os.Getenv("REDIS_URL"),
		AllowedOrigins:     splitList(getEnv("ALLOWED_ORIGINS", "*")),
		RateLimitWhitelist: splitList(os.Getenv("RATE_LIMIT_WHITELIST")),
		AutoBlockEnabled:   getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	var err error
	if cfg.RoomExpiryDays, err = getInt("ROOM_EXPIRY_DAYS", 7); err != nil {
		return nil, err
	}
	if cfg.MessagePageSize, err = getInt("MESSAGE_PAGE_SIZE", 30); err != nil {
		return nil, err
	}
	if cfg.BcryptCost, err = getInt("BCRYPT_COST", 10); err != nil {
		return nil, err
	}
	if cfg.LeaveGracePeriod, err = getDuration("LEAVE_GRACE_PERIOD", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionIOTimeout, err = getDuration("SESSION_IO_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.RoomExpiryDays < 1 {
		return nil, fmt.Errorf("ROOM_EXPIRY_DAYS must be at least 1")
	}
	if cfg.MessagePageSize < 1 {
		return nil, fmt.Errorf("MESSAGE_PAGE_SIZE must be at least 1")
	}

	if cfg.Env == "production" && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required in production")
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// MessageTTL is how long the Redis message log keeps a room's history.
// It outlives the room by a day so late page reads still resolve.
func (c *Config) MessageTTL() time.Duration {
	return time.Duration(c.RoomExpiryDays+1) * 24 * time.Hour
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, entry := range strings.Split(s, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
