package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		NumKeys:                2,
		AccessTokenTTL:         15 * time.Minute,
		RefreshTokenTTL:        720 * time.Hour,
		SignatureClockSkew:     5 * time.Minute,
		NonceTTLMargin:         time.Minute,
		RateLimitDefaultLimit:  100,
		RateLimitDefaultWindow: time.Minute,
		FraudVelocityLimit:     10,
		FraudVelocityWindow:    10 * time.Minute,
		FraudFailureThreshold:  5,
		FraudFailureWindow:     15 * time.Minute,
		FraudBlockTTL:          time.Hour,
		ReconcileConcurrency:   8,
		ReconcileProviderRPS:   20,
		ProviderTimeout:        10 * time.Second,
		Port:                   8080,
		ShutdownGracePeriod:    10 * time.Second,
		HousekeepingInterval:   time.Hour,
	}
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero failure window", func(c *Config) { c.FraudFailureWindow = 0 }, "FRAUD_FAILURE_WINDOW"},
		{"zero velocity limit", func(c *Config) { c.FraudVelocityLimit = 0 }, "FRAUD_VELOCITY_LIMIT"},
		{"negative failure threshold", func(c *Config) { c.FraudFailureThreshold = -1 }, "FRAUD_FAILURE_THRESHOLD"},
		{"zero block ttl", func(c *Config) { c.FraudBlockTTL = 0 }, "FRAUD_BLOCK_TTL"},
		{"zero rate limit", func(c *Config) { c.RateLimitDefaultLimit = 0 }, "RATELIMIT_DEFAULT_LIMIT"},
		{"negative rate window", func(c *Config) { c.RateLimitDefaultWindow = -time.Second }, "RATELIMIT_DEFAULT_WINDOW"},
		{"zero skew", func(c *Config) { c.SignatureClockSkew = 0 }, "SIGNATURE_CLOCK_SKEW"},
		{"negative nonce margin", func(c *Config) { c.NonceTTLMargin = -time.Second }, "NONCE_TTL_MARGIN"},
		{"zero access ttl", func(c *Config) { c.AccessTokenTTL = 0 }, "ACCESS_TOKEN_TTL"},
		{"zero concurrency", func(c *Config) { c.ReconcileConcurrency = 0 }, "RECONCILE_CONCURRENCY"},
		{"zero provider rps", func(c *Config) { c.ReconcileProviderRPS = 0 }, "RECONCILE_PROVIDER_RPS"},
		{"too many keys", func(c *Config) { c.NumKeys = 11 }, "TRUST_NUM_KEYS"},
		{"bad port", func(c *Config) { c.Port = 0 }, "PORT"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.want)
		})
	}

	t.Run("zero nonce margin is allowed", func(t *testing.T) {
		cfg := validConfig()
		cfg.NonceTTLMargin = 0
		require.NoError(t, cfg.Validate())
	})

	t.Run("reports every problem", func(t *testing.T) {
		cfg := validConfig()
		cfg.FraudFailureWindow = 0
		cfg.FraudVelocityLimit = 0
		err := cfg.Validate()
		require.ErrorContains(t, err, "FRAUD_FAILURE_WINDOW")
		require.ErrorContains(t, err, "FRAUD_VELOCITY_LIMIT")
	})
}
