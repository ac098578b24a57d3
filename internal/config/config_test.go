package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("APP_URL", "http://localhost:8090")
	t.Setenv("JWT_SECRET", "secret")

	cfg := Load()

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, 50, cfg.ActivationKeyLength)
	assert.Equal(t, 72*time.Hour, cfg.ActivationKeyExpiry)
	assert.Equal(t, 10*time.Second, cfg.OAuthFetchTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("APP_URL", "http://localhost:8090")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("BCRYPT_COST", "14")
	t.Setenv("ACTIVATION_KEY_EXPIRY", "0s")
	t.Setenv("MAILER_TIMEOUT", "not-a-duration")

	cfg := Load()

	assert.Equal(t, 14, cfg.BcryptCost)
	assert.Zero(t, cfg.ActivationKeyExpiry)
	assert.Equal(t, 10*time.Second, cfg.MailerTimeout)
}

func TestStatsLocation(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, time.Local, cfg.StatsLocation())

	cfg.StatsTimezone = "UTC"
	assert.Equal(t, "UTC", cfg.StatsLocation().String())

	cfg.StatsTimezone = "Nowhere/Invalid"
	assert.Equal(t, time.Local, cfg.StatsLocation())
}

func TestSanitized_DropsSecrets(t *testing.T) {
	cfg := &Config{AppName: "a", JWTSecret: "s", ResendAPIKey: "k", GoogleClientSecret: "g"}
	safe := cfg.Sanitized()

	assert.Equal(t, "a", safe.AppName)
	assert.Empty(t, safe.JWTSecret)
	assert.Empty(t, safe.ResendAPIKey)
	assert.Empty(t, safe.GoogleClientSecret)
}
