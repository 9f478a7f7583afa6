package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        int
	DatabaseURL string
	JWTSecret   string

	// SyncPullLimit bounds each resource's row count in one pull response.
	SyncPullLimit int

	// Tombstone retention: rows older than TTL plus the safety margin are
	// purged. The margin protects devices that stay offline past the TTL.
	TombstoneTTLDays    int
	TombstoneSafety     time.Duration
	RetentionInterval   time.Duration
	RetentionBackground bool
}

func Load() (Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Port:             8080,
		SyncPullLimit:    500,
		TombstoneTTLDays: 30,
		TombstoneSafety:  24 * time.Hour,
	}

	if raw := strings.TrimSpace(os.Getenv("PORT")); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port <= 0 {
			return Config{}, fmt.Errorf("invalid PORT: %q", raw)
		}
		cfg.Port = port
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required (environment variable or .env)")
	}

	cfg.JWTSecret = strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required (environment variable or .env)")
	}

	if raw := strings.TrimSpace(os.Getenv("SYNC_PULL_LIMIT")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return Config{}, fmt.Errorf("invalid SYNC_PULL_LIMIT: %q", raw)
		}
		cfg.SyncPullLimit = limit
	}

	if raw := strings.TrimSpace(os.Getenv("TOMBSTONE_TTL_DAYS")); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days <= 0 {
			return Config{}, fmt.Errorf("invalid TOMBSTONE_TTL_DAYS: %q", raw)
		}
		cfg.TombstoneTTLDays = days
	}

	if raw := strings.TrimSpace(os.Getenv("TOMBSTONE_SAFETY_SEC")); raw != "" {
		sec, err := strconv.Atoi(raw)
		if err != nil || sec < 0 {
			return Config{}, fmt.Errorf("invalid TOMBSTONE_SAFETY_SEC: %q", raw)
		}
		cfg.TombstoneSafety = time.Duration(sec) * time.Second
	}

	intervalMin := 360
	if raw := strings.TrimSpace(os.Getenv("RETENTION_INTERVAL_MIN")); raw != "" {
		min, err := strconv.Atoi(raw)
		if err != nil || min < 0 {
			return Config{}, fmt.Errorf("invalid RETENTION_INTERVAL_MIN: %q", raw)
		}
		intervalMin = min
	}
	cfg.RetentionInterval = time.Duration(intervalMin) * time.Minute
	cfg.RetentionBackground = intervalMin > 0

	return cfg, nil
}
