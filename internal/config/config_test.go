package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", EnvProduction)
	t.Setenv("DATABASE_URL", "postgres://donations:secret@db:5432/donations")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("JWT_SECRET", "jwt")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("BREVO_SMTP_HOST", "smtp-relay.brevo.com")
	t.Setenv("BREVO_SMTP_PORT", "2525")
	t.Setenv("STRIPE_PRODUCT_ADOPT_LANGUAGE", "prod_adopt")
	t.Setenv("EXPIRY_INTERVAL", "30m")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "postgres://donations:secret@db:5432/donations", cfg.Database.DSN)
	assert.Equal(t, "sk_test_123", cfg.Stripe.APIKey)
	assert.Equal(t, "whsec_123", cfg.Stripe.WebhookSecret)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "smtp-relay.brevo.com", cfg.SMTP.Host)
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.Equal(t, "prod_adopt", cfg.Stripe.ProductIDs.AdoptLanguage)
	assert.Equal(t, 30*time.Minute, cfg.Expiry.Interval)
	assert.Equal(t, 30, cfg.Expiry.OneTimePeriodDays)
	assert.Equal(t, 30*time.Second, cfg.Stripe.RetryMaxTime)
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DATABASE_DRIVER=memory\nLOG_LEVEL=debug\n"), 0o600))
	t.Setenv("APP_ENV", EnvDevelopment)
	t.Cleanup(func() {
		os.Unsetenv("DATABASE_DRIVER")
		os.Unsetenv("LOG_LEVEL")
	})

	cfg, err := LoadConfig(envFile)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.Database.Driver)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.True(t, cfg.IsDevelopment())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.App.Env = EnvProduction
		cfg.Database.Driver = DriverPostgres
		cfg.Database.DSN = "postgres://localhost/donations"
		cfg.Stripe.APIKey = "sk"
		cfg.Stripe.WebhookSecret = "whsec"
		cfg.Auth.JWTSecret = "jwt"
		cfg.Expiry.OneTimePeriodDays = 30
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		msg    string
	}{
		{"missing webhook secret", func(c *Config) { c.Stripe.WebhookSecret = "" }, "STRIPE_WEBHOOK_SECRET"},
		{"missing stripe key", func(c *Config) { c.Stripe.APIKey = "" }, "STRIPE_SECRET_KEY"},
		{"missing dsn", func(c *Config) { c.Database.DSN = "" }, "DATABASE_URL"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "not supported"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, "kafka.brokers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}

	dev := valid()
	dev.App.Env = EnvDevelopment
	dev.Stripe.WebhookSecret = ""
	dev.Stripe.APIKey = ""
	assert.NoError(t, dev.Validate(), "secrets are optional in development")
}
