package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"sitemapaudit/internal/checker"
)

// Config holds the application's configuration values.
type Config struct {
	PaceInterval    time.Duration
	HTTPTimeout     time.Duration
	RunTimeout      time.Duration
	MaxURLs         int
	Concurrency     int
	UserAgent       string
	CacheDriver     string
	CacheURL        string
	CacheTTL        time.Duration
	MetricsTextfile string
	Pager           string
	LogLevel        slog.Level
	LogFormat       string
}

// Load reads an optional .env file, then environment variables, falling back
// to defaults.
func Load() *Config {
	_ = godotenv.Load() // optional

	return &Config{
		PaceInterval:    getEnvDuration("PACE_INTERVAL", checker.DefaultPaceInterval),
		HTTPTimeout:     getEnvDuration("HTTP_TIMEOUT", 10*time.Second),
		RunTimeout:      getEnvDuration("RUN_TIMEOUT", 0),
		MaxURLs:         getEnvInt("MAX_URLS", 0),
		Concurrency:     getEnvInt("CONCURRENCY", 1),
		UserAgent:       getEnv("USER_AGENT", "sitemapaudit/1.0"),
		CacheDriver:     strings.ToLower(getEnv("CACHE_DRIVER", "")),
		CacheURL:        getEnv("CACHE_URL", "sitemapaudit.db"),
		CacheTTL:        getEnvDuration("CACHE_TTL", 0),
		MetricsTextfile: getEnv("METRICS_TEXTFILE", ""),
		Pager:           getEnv("PAGER", "less"),
		LogLevel:        getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
}

// CacheEnabled reports whether previous runs may be reused.
func (c *Config) CacheEnabled() bool {
	return c.CacheDriver != "" && c.CacheTTL > 0
}

// Helper function to get an environment variable or return a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Helper function to get an environment variable as an integer.
func getEnvInt(key string, fallback int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

// Helper function to get an environment variable as a time.Duration.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return fallback
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	if valueStr, exists := os.LookupEnv(key); exists {
		var level slog.Level
		if err := level.UnmarshalText([]byte(valueStr)); err == nil {
			return level
		}
	}
	return fallback
}
