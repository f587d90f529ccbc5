package config

import (
	"os"
	"strconv"
)

// Config holds the core runtime configuration for the service.
// Values are primarily sourced from environment variables, with
// sensible defaults where appropriate. See .env.example.
type Config struct {
	DatabaseURL string

	// RedisAddr enables the TTL cache used by geo enrichment when set.
	// Empty means "no redis": geo falls back to the geo_cache table and
	// everything still works, just slower.
	RedisAddr     string
	RedisPassword string

	// RetentionDays is how long raw events are kept before the retention
	// pass deletes them. Aggregated buckets are never pruned.
	RetentionDays int

	ListenAddr string

	// BootstrapAPIKey seeds an ingestion key on first boot so a fresh
	// deployment can accept events without manual setup. If empty, no
	// key is created.
	BootstrapAPIKey    string
	BootstrapProjectID string

	// AggregationFanout bounds how many projects one trigger invocation
	// aggregates concurrently.
	AggregationFanout int

	RateLimits RateLimitConfig
}

// RateLimitConfig holds the (maxRequests, windowSeconds) pair per scope.
type RateLimitConfig struct {
	IPMax            int
	IPWindowSec      int
	SessionMax       int
	SessionWindowSec int
	ProjectMax       int
	ProjectWindowSec int
}

// Load reads configuration from environment variables and applies defaults.
func Load() *Config {
	cfg := &Config{
		DatabaseURL:        os.Getenv("CLICKGUARD_DATABASE_URL"),
		RedisAddr:          getenv("CLICKGUARD_REDIS_ADDR", ""),
		RedisPassword:      getenv("CLICKGUARD_REDIS_PASSWORD", ""),
		ListenAddr:         getenv("CLICKGUARD_LISTEN_ADDR", ":8080"),
		RetentionDays:      90,
		BootstrapAPIKey:    getenv("CLICKGUARD_BOOTSTRAP_API_KEY", ""),
		BootstrapProjectID: getenv("CLICKGUARD_BOOTSTRAP_PROJECT_ID", "default"),
		AggregationFanout:  4,
		RateLimits: RateLimitConfig{
			IPMax:            getenvInt("CLICKGUARD_RATELIMIT_IP_MAX", 100),
			IPWindowSec:      getenvInt("CLICKGUARD_RATELIMIT_IP_WINDOW", 60),
			SessionMax:       getenvInt("CLICKGUARD_RATELIMIT_SESSION_MAX", 50),
			SessionWindowSec: getenvInt("CLICKGUARD_RATELIMIT_SESSION_WINDOW", 60),
			ProjectMax:       getenvInt("CLICKGUARD_RATELIMIT_PROJECT_MAX", 1000),
			ProjectWindowSec: getenvInt("CLICKGUARD_RATELIMIT_PROJECT_WINDOW", 60),
		},
	}

	if v := os.Getenv("CLICKGUARD_RETENTION_DAYS"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			cfg.RetentionDays = days
		}
	}
	if v := os.Getenv("CLICKGUARD_AGGREGATION_FANOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AggregationFanout = n
		}
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
