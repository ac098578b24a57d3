package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Application
	AppName string
	AppEnv  string
	AppURL  string
	Port    string

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver     string
	DBConnection string

	// Security
	JWTSecret           string
	JWTExpiry           time.Duration
	BcryptCost          int
	ActivationKeyLength int
	ActivationKeyExpiry time.Duration // 0 disables the limit

	// Statistics
	StatsTimezone string // IANA name, empty means server local time

	// OAuth
	GoogleClientID       string
	GoogleClientSecret   string
	FacebookClientID     string
	FacebookClientSecret string
	GitHubClientID       string
	GitHubClientSecret   string
	OAuthFetchTimeout    time.Duration

	// Email
	EmailFrom     string
	ResendAPIKey  string
	MailerTimeout time.Duration

	// Observability (optional)
	SentryDSN string
}

func Load() *Config {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg := &Config{
		// Application
		AppName: envString("APP_NAME", "Accounts"),
		AppEnv:  envRequired("APP_ENV"), // Required: 'development' or 'production'
		AppURL:  envRequired("APP_URL"), // Required: base URL for activation links and OAuth redirects
		Port:    envString("PORT", "8090"),

		// Database
		DBDriver:     envString("DB_DRIVER", "sqlite"),
		DBConnection: envString("DB_CONNECTION", "./data/accounts.db"),

		// Security
		JWTSecret:           envRequired("JWT_SECRET"),
		JWTExpiry:           envDuration("JWT_EXPIRY", 168*time.Hour), // 7 days
		BcryptCost:          envInt("BCRYPT_COST", 12),
		ActivationKeyLength: envInt("ACTIVATION_KEY_LENGTH", 50),
		ActivationKeyExpiry: envDuration("ACTIVATION_KEY_EXPIRY", 72*time.Hour),

		// Statistics
		StatsTimezone: envString("STATS_TIMEZONE", ""),

		// OAuth
		GoogleClientID:       envString("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:   envString("GOOGLE_CLIENT_SECRET", ""),
		FacebookClientID:     envString("FACEBOOK_CLIENT_ID", ""),
		FacebookClientSecret: envString("FACEBOOK_CLIENT_SECRET", ""),
		GitHubClientID:       envString("GITHUB_CLIENT_ID", ""),
		GitHubClientSecret:   envString("GITHUB_CLIENT_SECRET", ""),
		OAuthFetchTimeout:    envDuration("OAUTH_FETCH_TIMEOUT", 10*time.Second),

		// Email (RESEND_API_KEY optional in development, required in production)
		EmailFrom:     envString("EMAIL_FROM", "noreply@example.com"),
		ResendAPIKey:  envString("RESEND_API_KEY", ""),
		MailerTimeout: envDuration("MAILER_TIMEOUT", 10*time.Second),

		// Observability
		SentryDSN: envString("SENTRY_DSN", ""),
	}

	// Production: validate required services
	if cfg.IsProduction() {
		validateProduction(cfg)
	}

	return cfg
}

// validateProduction ensures all required services are configured for production deployments.
// Development allows email to run in log mode for easier local testing.
func validateProduction(cfg *Config) {
	if cfg.ResendAPIKey == "" {
		slog.Error("production deployment requires RESEND_API_KEY",
			"hint", "set APP_ENV=development for local testing with email log mode")
		os.Exit(1)
	}
	if cfg.BcryptCost < 10 {
		slog.Error("production deployment requires BCRYPT_COST >= 10", "cost", cfg.BcryptCost)
		os.Exit(1)
	}
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func envRequired(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	slog.Error("config required env var missing", "key", key)
	os.Exit(1)
	return ""
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// StatsLocation resolves StatsTimezone, falling back to server local time.
func (c *Config) StatsLocation() *time.Location {
	if c.StatsTimezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.StatsTimezone)
	if err != nil {
		slog.Warn("config invalid timezone, using local time", "key", "STATS_TIMEZONE", "value", c.StatsTimezone)
		return time.Local
	}
	return loc
}

// Sanitized returns a copy of the config with only public/safe fields.
// All secrets and credentials are excluded.
func (c *Config) Sanitized() *Config {
	return &Config{
		AppName:          c.AppName,
		AppEnv:           c.AppEnv,
		AppURL:           c.AppURL,
		Port:             c.Port,
		EmailFrom:        c.EmailFrom,
		GoogleClientID:   c.GoogleClientID,
		FacebookClientID: c.FacebookClientID,
		GitHubClientID:   c.GitHubClientID,
		StatsTimezone:    c.StatsTimezone,
	}
}
