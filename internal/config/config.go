// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/gigboard/gigboard/internal/money"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Marketplace settings
	PostingFee          string // Flat fee charged on every posting (e.g., "1.00")
	CommissionRate      string // Fraction of the payment kept on approval (e.g., "0.05")
	CancellationPenalty string // Fraction forfeited when cancelling a claimed gig

	// Timeout sweep
	SweepInterval  time.Duration
	ReviewDeadline time.Duration

	// Connection pool
	PoolMaxSize int
	PoolMinWarm int

	// Observability
	OTLPEndpoint string // OpenTelemetry collector (optional)
}

const (
	DefaultPort                = "8080"
	DefaultEnv                 = "development"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
	DefaultPostingFee          = "1.00"
	DefaultCommissionRate      = "0.05"
	DefaultCancellationPenalty = "0.25"
	DefaultSweepInterval       = 30 * time.Second
	DefaultReviewDeadline      = 72 * time.Hour
	DefaultPoolMaxSize         = 16
	DefaultPoolMinWarm         = 4
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", DefaultPort),
		Env:                 getEnv("ENV", DefaultEnv),
		LogLevel:            getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:           getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:         os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		PostingFee:          getEnv("POSTING_FEE", DefaultPostingFee),
		CommissionRate:      getEnv("COMMISSION_RATE", DefaultCommissionRate),
		CancellationPenalty: getEnv("CANCELLATION_PENALTY", DefaultCancellationPenalty),
		SweepInterval:       getEnvDuration("SWEEP_INTERVAL", DefaultSweepInterval),
		ReviewDeadline:      getEnvDuration("REVIEW_DEADLINE", DefaultReviewDeadline),
		PoolMaxSize:         int(getEnvInt64("POOL_MAX_SIZE", DefaultPoolMaxSize)),
		PoolMinWarm:         int(getEnvInt64("POOL_MIN_WARM", DefaultPoolMinWarm)),
		OTLPEndpoint:        os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and well formed
func (c *Config) Validate() error {
	if _, ok := money.Parse(c.PostingFee); !ok {
		return fmt.Errorf("POSTING_FEE must be a non-negative decimal amount, got %q", c.PostingFee)
	}
	if _, ok := money.ParseFraction(c.CommissionRate); !ok {
		return fmt.Errorf("COMMISSION_RATE must be a fraction between 0 and 1, got %q", c.CommissionRate)
	}
	if _, ok := money.ParseFraction(c.CancellationPenalty); !ok {
		return fmt.Errorf("CANCELLATION_PENALTY must be a fraction between 0 and 1, got %q", c.CancellationPenalty)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval)
	}
	if c.ReviewDeadline <= 0 {
		return fmt.Errorf("REVIEW_DEADLINE must be positive, got %s", c.ReviewDeadline)
	}
	if c.PoolMaxSize <= 0 {
		return fmt.Errorf("POOL_MAX_SIZE must be positive, got %d", c.PoolMaxSize)
	}
	if c.PoolMinWarm < 0 || c.PoolMinWarm > c.PoolMaxSize {
		return fmt.Errorf("POOL_MIN_WARM must be between 0 and POOL_MAX_SIZE, got %d", c.PoolMinWarm)
	}
	return nil
}

// Commission returns the parsed commission rate. Validate must have passed.
func (c *Config) Commission() money.Fraction {
	f, _ := money.ParseFraction(c.CommissionRate)
	return f
}

// Penalty returns the parsed cancellation penalty. Validate must have passed.
func (c *Config) Penalty() money.Fraction {
	f, _ := money.ParseFraction(c.CancellationPenalty)
	return f
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
