// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const devJWTSecret = "skill-worlds-dev-secret-change-me"

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	CatalogPath string // optional override of the embedded catalog
	ThinkDelay  time.Duration
	FlowIdleTTL time.Duration
	JWT         JWTConfig
	Password    PasswordConfig
	RateLimit   RateLimitConfig
	Retry       RetryConfig
	Timeout     TimeoutConfig
	Transcript  TranscriptConfig
}

// JWTConfig controls session token issuance.
type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

// PasswordConfig controls password hashing.
type PasswordConfig struct {
	BcryptCost int
	Pepper     string
}

// RateLimitConfig bounds chat traffic per user.
type RateLimitConfig struct {
	PerSecond float64
	Burst     int
}

// RetryConfig controls retries of SQLite busy errors.
type RetryConfig struct {
	DatabaseMaxRetries     int
	DatabaseRetryBaseDelay time.Duration
}

// TimeoutConfig holds request-scoped timeouts.
type TimeoutConfig struct {
	HealthCheck time.Duration
	Shutdown    time.Duration
}

// TranscriptConfig controls NDJSON chat transcript logging.
type TranscriptConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("TRANSCRIPT_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/skillworlds.db"),
		CatalogPath: getEnv("CATALOG_PATH", ""),
		ThinkDelay:  getEnvDuration("CHAT_THINK_DELAY", 800*time.Millisecond),
		FlowIdleTTL: getEnvDuration("FLOW_IDLE_TTL", 60*time.Minute),
		JWT: JWTConfig{
			Secret:     getEnv("JWT_SECRET", ""),
			Expiration: getEnvDuration("JWT_EXPIRATION", 24*time.Hour),
		},
		Password: PasswordConfig{
			BcryptCost: getEnvInt("BCRYPT_COST", 12),
			Pepper:     getEnv("PASSWORD_PEPPER", ""),
		},
		RateLimit: RateLimitConfig{
			PerSecond: getEnvFloat("CHAT_RATE_PER_SECOND", 5),
			Burst:     getEnvInt("CHAT_RATE_BURST", 10),
		},
		Retry: RetryConfig{
			DatabaseMaxRetries:     getEnvInt("DB_MAX_RETRIES", 3),
			DatabaseRetryBaseDelay: getEnvDuration("DB_RETRY_BASE_DELAY", 50*time.Millisecond),
		},
		Timeout: TimeoutConfig{
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
			Shutdown:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Transcript: TranscriptConfig{
			Enabled:   getEnvBool("TRANSCRIPT_LOG_ENABLED", true),
			Dir:       getEnv("TRANSCRIPT_LOG_DIR", "./data/logs/transcripts"),
			QueueSize: queueSize,
		},
	}

	if cfg.JWT.Secret == "" && cfg.IsDevelopment() {
		slog.Warn("JWT_SECRET not set, using development secret")
		cfg.JWT.Secret = devJWTSecret
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.ThinkDelay < 0 {
		return fmt.Errorf("CHAT_THINK_DELAY cannot be negative")
	}
	if c.FlowIdleTTL <= 0 {
		return fmt.Errorf("FLOW_IDLE_TTL must be > 0")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if c.JWT.Expiration <= 0 {
		return fmt.Errorf("JWT_EXPIRATION must be > 0")
	}
	if c.Password.BcryptCost < 10 || c.Password.BcryptCost > 14 {
		return fmt.Errorf("BCRYPT_COST out of range: %d (must be 10-14)", c.Password.BcryptCost)
	}
	// bcrypt rejects inputs over 72 bytes; passwords are capped at 64
	if len(c.Password.Pepper) > 8 {
		return fmt.Errorf("PASSWORD_PEPPER must be at most 8 bytes")
	}
	if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("CHAT_RATE_PER_SECOND and CHAT_RATE_BURST must be > 0")
	}
	if c.Retry.DatabaseMaxRetries <= 0 {
		return fmt.Errorf("DB_MAX_RETRIES must be > 0")
	}
	if c.Transcript.Dir == "" {
		return fmt.Errorf("TRANSCRIPT_LOG_DIR cannot be empty")
	}
	if c.Transcript.QueueSize <= 0 {
		return fmt.Errorf("TRANSCRIPT_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the frontend.
func (c *Config) AllowedOrigins() []string {
	if c.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.FrontendURL, "/")}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

// getEnvDuration accepts Go duration strings ("800ms") or plain milliseconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}
