package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds process-wide configuration for the gateway. Per-tenant
// provider credentials live on the App row (see internal/models), not
// here — the core never reads environment variables for tenant secrets.
type Config struct {
	// Server configuration
	Port string
	Mode string

	// Database configuration
	DatabaseURL string

	// Redis configuration
	RedisURL string

	// Database migration configuration
	AutoMigrate bool

	// Retry runner configuration
	RetryRunnerInterval int // seconds between sweeps
	RetryRunnerBatch    int // max deliveries per sweep

	// Metrics
	MetricsEnabled bool

	// IdempotencyCacheTTLSeconds bounds how long a notification's
	// dedup witness is cached in Redis in front of the Postgres
	// source of truth.
	IdempotencyCacheTTLSeconds int
}

var AppConfig *Config

func InitConfig() error {
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = &Config{
		Port:                       getEnv("PORT", "8080"),
		Mode:                       getEnv("GIN_MODE", "debug"),
		DatabaseURL:                getEnv("DATABASE_URL", ""),
		RedisURL:                   getEnv("REDIS_URL", "redis://localhost:6379/0"),
		AutoMigrate:                getEnvBool("AUTO_MIGRATE", true),
		RetryRunnerInterval:        getEnvInt("RETRY_RUNNER_INTERVAL_SECONDS", 30),
		RetryRunnerBatch:           getEnvInt("RETRY_RUNNER_BATCH_SIZE", 100),
		MetricsEnabled:             getEnvBool("METRICS_ENABLED", true),
		IdempotencyCacheTTLSeconds: getEnvInt("IDEMPOTENCY_CACHE_TTL_SECONDS", 86400),
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
