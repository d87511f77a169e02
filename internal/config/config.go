// Package config loads server configuration from environment variables
// with typed accessors and defaults (SPEC_FULL §2-NEW).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable the core and its transports need.
type Config struct {
	Addr              string
	WireAddr          string
	DataDir           string
	WorkerCount       int
	DefaultDeadline   time.Duration
	AdmissionWait     time.Duration
	SessionTTL        time.Duration

	AuthToken        string
	AuthJWTSecret    string
	AuthUsername     string
	AuthPassword     string
	AuthPasswordHash string

	RateLimit  int
	RateWindow time.Duration
	RedisAddr  string // when set, rate limiting uses the Redis bucket store

	LogLevel  string
	LogFormat string

	UIRoot string
}

// Load builds a Config from environment variables, applying defaults for
// anything unset.
func Load() Config {
	return Config{
		Addr:            getEnv("GRAFEODB_ADDR", ":8080"),
		WireAddr:        getEnv("GRAFEODB_WIRE_ADDR", ":9090"),
		DataDir:         getEnv("GRAFEODB_DATA_DIR", ""),
		WorkerCount:     getEnvInt("GRAFEODB_WORKER_COUNT", 16),
		DefaultDeadline: getEnvDuration("GRAFEODB_DEFAULT_DEADLINE", 30*time.Second),
		AdmissionWait:   getEnvDuration("GRAFEODB_ADMISSION_WAIT", 2*time.Second),
		SessionTTL:      getEnvDuration("GRAFEODB_SESSION_TTL", 5*time.Minute),

		AuthToken:        os.Getenv("GRAFEODB_AUTH_TOKEN"),
		AuthJWTSecret:    os.Getenv("GRAFEODB_AUTH_JWT_SECRET"),
		AuthUsername:     os.Getenv("GRAFEODB_AUTH_USERNAME"),
		AuthPassword:     os.Getenv("GRAFEODB_AUTH_PASSWORD"),
		AuthPasswordHash: os.Getenv("GRAFEODB_AUTH_PASSWORD_HASH"),

		RateLimit:  getEnvInt("GRAFEODB_RATE_LIMIT", 100),
		RateWindow: getEnvDuration("GRAFEODB_RATE_WINDOW", 60*time.Second),
		RedisAddr:  os.Getenv("GRAFEODB_REDIS_ADDR"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		UIRoot: getEnv("GRAFEODB_UI_ROOT", ""),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}
