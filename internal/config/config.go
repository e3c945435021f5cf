// Package config loads Sentinel's runtime configuration: required and
// defaulted environment variables for connection strings and tunables,
// including the path of the trigger rule YAML file (the file itself is
// parsed by the triggers package).
package config

import (
	"log"
	"os"
	"strconv"
)

// Settings holds every environment-derived tunable, with defaults
// matching the original system's settings module exactly.
type Settings struct {
	RedisURL    string
	PostgresURL string

	RedisStreamMaxLen       int64
	StreamConsumerCount     int
	StreamConsumerBatchSize int64
	StreamConsumerBlockMS   int

	DedupTTLSeconds           int
	DeltaLogRetentionMinutes  int
	MinSwapConfidence         float64

	DegradedLagSeconds int
	CriticalLagSeconds int
	DegradedStreamLen  int64
	CriticalStreamLen  int64

	EnrichmentDailyCreditLimit int

	PendingClaimMinIdleMS int64

	CircuitBreakerFailureThreshold int
	CircuitBreakerRecoverySeconds  int

	HotMaintenanceIntervalSeconds int

	TriggerConfigPath string
	Port              string
}

// Load reads Settings from the environment. DATABASE_URL is required
// (RequireEnv aborts the process if missing); everything else,
// REDIS_URL included, has a default.
func Load() Settings {
	return Settings{
		RedisURL:    getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		PostgresURL: RequireEnv("DATABASE_URL"),

		RedisStreamMaxLen:       getEnvInt64("REDIS_STREAM_MAXLEN", 100000),
		StreamConsumerCount:     getEnvInt("STREAM_CONSUMER_COUNT", 1),
		StreamConsumerBatchSize: getEnvInt64("STREAM_CONSUMER_BATCH_SIZE", 100),
		StreamConsumerBlockMS:   getEnvInt("STREAM_CONSUMER_BLOCK_MS", 1000),

		DedupTTLSeconds:          getEnvInt("DEDUP_TTL_SECONDS", 600),
		DeltaLogRetentionMinutes: getEnvInt("DELTA_LOG_RETENTION_MINUTES", 60),
		MinSwapConfidence:        getEnvFloat("MIN_SWAP_CONFIDENCE", 0.7),

		DegradedLagSeconds: getEnvInt("DEGRADED_LAG_SECONDS", 5),
		CriticalLagSeconds: getEnvInt("CRITICAL_LAG_SECONDS", 30),
		DegradedStreamLen:  getEnvInt64("DEGRADED_STREAM_LEN", 50000),
		CriticalStreamLen:  getEnvInt64("CRITICAL_STREAM_LEN", 80000),

		EnrichmentDailyCreditLimit: getEnvInt("ENRICHMENT_DAILY_CREDIT_LIMIT", 300000),

		PendingClaimMinIdleMS: getEnvInt64("PENDING_CLAIM_MIN_IDLE_MS", 30000),

		CircuitBreakerFailureThreshold: getEnvInt("CIRCUIT_BREAKER_FAILURE_THRESHOLD", 5),
		CircuitBreakerRecoverySeconds:  getEnvInt("CIRCUIT_BREAKER_RECOVERY_SECONDS", 30),

		HotMaintenanceIntervalSeconds: getEnvInt("HOT_MAINTENANCE_INTERVAL_SECONDS", 60),

		TriggerConfigPath: getEnvOrDefault("TRIGGER_CONFIG_PATH", "./triggers.yaml"),
		Port:              getEnvOrDefault("PORT", "8080"),
	}
}

// RequireEnv reads a required environment variable and exits if unset,
// so a missing credential fails at startup rather than at first use.
func RequireEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		log.Fatalf("FATAL: required environment variable %s is not set", key)
	}
	return val
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
