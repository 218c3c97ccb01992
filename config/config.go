package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Servers
	HTTPAddr    string
	MetricsAddr string

	// Infrastructure
	RedisAddr     string
	RedisPassword string

	// Feed
	FeedWSURL      string
	FeedTOTPSecret string

	// Batching
	BatchMaxSize int
	BatchFlushMs int

	// Initial positions, comma-separated "ticker:name:qty:avgPrice" entries
	SeedPositions string

	// Logging
	LogLevel string
}

// SeedPosition is one parsed entry of SeedPositions.
type SeedPosition struct {
	Ticker   string
	Name     string
	Qty      int64
	AvgPrice int64
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		FeedWSURL:      getEnv("FEED_WS_URL", "ws://localhost:9001/ws"),
		FeedTOTPSecret: getEnv("FEED_TOTP_SECRET", ""),

		BatchMaxSize: getEnvInt("BATCH_MAX_SIZE", 100),
		BatchFlushMs: getEnvInt("BATCH_FLUSH_MS", 100),

		SeedPositions: getEnv("SEED_POSITIONS", ""),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// ParseSeeds parses the SeedPositions string. Malformed entries are skipped
// with a warning so one bad entry does not block startup.
func (c *Config) ParseSeeds() []SeedPosition {
	if strings.TrimSpace(c.SeedPositions) == "" {
		return nil
	}

	var seeds []SeedPosition
	for _, entry := range strings.Split(c.SeedPositions, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) != 4 {
			slog.Warn("skipping malformed seed position", "entry", entry)
			continue
		}
		qty, err1 := strconv.ParseInt(strings.TrimSpace(parts[2]), 10, 64)
		avgPrice, err2 := strconv.ParseInt(strings.TrimSpace(parts[3]), 10, 64)
		if err1 != nil || err2 != nil || avgPrice < 0 {
			slog.Warn("skipping malformed seed position", "entry", entry)
			continue
		}
		seeds = append(seeds, SeedPosition{
			Ticker:   strings.TrimSpace(parts[0]),
			Name:     strings.TrimSpace(parts[1]),
			Qty:      qty,
			AvgPrice: avgPrice,
		})
	}
	return seeds
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer env var, using fallback", "key", key, "value", v)
		return fallback
	}
	return n
}
