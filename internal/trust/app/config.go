package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Issuer        string // Optional: issuer claim for access tokens (default: trustcore)
	Algorithm     string // Optional: JWT signing algorithm (ES256, EdDSA) (default: EdDSA)
	NumKeys       int    // Optional: number of signing keys to generate (default: 2, max: 10)
	MasterKeyPath string // Optional: file holding the master key; falls back to TRUST_MASTER_KEY
	DatabaseFile  string // Optional: path to SQLite database file (default: ./trust.db)

	KVDriver      string // Optional: shared KV backend (redis, memory) (default: redis)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	SignatureClockSkew time.Duration // Tolerated |now - X-Timestamp| (default: 5m)
	NonceTTLMargin     time.Duration // Nonce TTL beyond 2x the skew (default: 1m)

	RateLimitDefaultLimit  int
	RateLimitDefaultWindow time.Duration

	FraudVelocityLimit    int
	FraudVelocityWindow   time.Duration
	FraudFailureThreshold int
	FraudFailureWindow    time.Duration
	FraudBlockTTL         time.Duration

	ReconcileConcurrency int
	ReconcileProviderRPS float64
	Providers            string        // name=baseURL,...
	ProviderTimeout      time.Duration // Per provider request (default: 10s)

	TrustedProxies string // Comma-separated CIDRs or IPs whose X-Forwarded-For is honoured (default: none)

	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)

	// LogOutput is set by callers, not the environment. Defaults to stdout.
	LogOutput io.Writer
}

// LoadConfig reads the environment, after loading a .env file from the
// working directory if one exists. Variables already set win over .env.
func LoadConfig() Config {
	_ = godotenv.Load()

	return Config{
		Issuer:        getEnvOrDefault("TRUST_ISSUER", "trustcore"),
		Algorithm:     getEnvOrDefault("TRUST_ALGORITHM", "EdDSA"),
		NumKeys:       getEnvIntOrDefault("TRUST_NUM_KEYS", 2),
		MasterKeyPath: os.Getenv("TRUST_MASTER_KEY_PATH"),
		DatabaseFile:  getEnvOrDefault("TRUST_DATABASE_FILE", "trust.db"),

		KVDriver:      getEnvOrDefault("TRUST_KV_DRIVER", "redis"),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),

		AccessTokenTTL:  getEnvDurationOrDefault("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDurationOrDefault("REFRESH_TOKEN_TTL", 720*time.Hour),

		SignatureClockSkew: getEnvDurationOrDefault("SIGNATURE_CLOCK_SKEW", 5*time.Minute),
		NonceTTLMargin:     getEnvDurationOrDefault("NONCE_TTL_MARGIN", time.Minute),

		RateLimitDefaultLimit:  getEnvIntOrDefault("RATELIMIT_DEFAULT_LIMIT", 100),
		RateLimitDefaultWindow: getEnvDurationOrDefault("RATELIMIT_DEFAULT_WINDOW", time.Minute),

		FraudVelocityLimit:    getEnvIntOrDefault("FRAUD_VELOCITY_LIMIT", 10),
		FraudVelocityWindow:   getEnvDurationOrDefault("FRAUD_VELOCITY_WINDOW", 10*time.Minute),
		FraudFailureThreshold: getEnvIntOrDefault("FRAUD_FAILURE_THRESHOLD", 5),
		FraudFailureWindow:    getEnvDurationOrDefault("FRAUD_FAILURE_WINDOW", 15*time.Minute),
		FraudBlockTTL:         getEnvDurationOrDefault("FRAUD_BLOCK_TTL", time.Hour),

		ReconcileConcurrency: getEnvIntOrDefault("RECONCILE_CONCURRENCY", 8),
		ReconcileProviderRPS: getEnvFloatOrDefault("RECONCILE_PROVIDER_RPS", 20),
		Providers:            os.Getenv("PROVIDERS"),
		ProviderTimeout:      getEnvDurationOrDefault("PROVIDER_TIMEOUT", 10*time.Second),

		TrustedProxies: os.Getenv("TRUSTED_PROXIES"),

		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}
}

// Validate rejects tunables that would disable a control instead of
// configuring it, such as a zero fraud window or rate limit.
func (c Config) Validate() error {
	var errs []error
	positive := func(name string, v int64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	positiveDur := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	if c.NumKeys < 1 || c.NumKeys > 10 {
		errs = append(errs, fmt.Errorf("TRUST_NUM_KEYS must be between 1 and 10, got %d", c.NumKeys))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB must not be negative, got %d", c.RedisDB))
	}
	if c.NonceTTLMargin < 0 {
		errs = append(errs, fmt.Errorf("NONCE_TTL_MARGIN must not be negative, got %s", c.NonceTTLMargin))
	}
	if c.ReconcileProviderRPS <= 0 {
		errs = append(errs, fmt.Errorf("RECONCILE_PROVIDER_RPS must be positive, got %g", c.ReconcileProviderRPS))
	}

	positiveDur("ACCESS_TOKEN_TTL", c.AccessTokenTTL)
	positiveDur("REFRESH_TOKEN_TTL", c.RefreshTokenTTL)
	positiveDur("SIGNATURE_CLOCK_SKEW", c.SignatureClockSkew)
	positive("RATELIMIT_DEFAULT_LIMIT", int64(c.RateLimitDefaultLimit))
	positiveDur("RATELIMIT_DEFAULT_WINDOW", c.RateLimitDefaultWindow)
	positive("FRAUD_VELOCITY_LIMIT", int64(c.FraudVelocityLimit))
	positiveDur("FRAUD_VELOCITY_WINDOW", c.FraudVelocityWindow)
	positive("FRAUD_FAILURE_THRESHOLD", int64(c.FraudFailureThreshold))
	positiveDur("FRAUD_FAILURE_WINDOW", c.FraudFailureWindow)
	positiveDur("FRAUD_BLOCK_TTL", c.FraudBlockTTL)
	positive("RECONCILE_CONCURRENCY", int64(c.ReconcileConcurrency))
	positiveDur("PROVIDER_TIMEOUT", c.ProviderTimeout)
	positiveDur("SHUTDOWN_GRACE_PERIOD", c.ShutdownGracePeriod)
	positiveDur("HOUSEKEEPING_INTERVAL", c.HousekeepingInterval)

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are minutes.
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
