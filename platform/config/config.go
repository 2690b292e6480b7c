// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings. An empty URL means
// the in-memory repository is used instead of PostgreSQL.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
}

// AdminAuthConfig provides settings for the admin auth middleware.
type AdminAuthConfig interface {
	GetAdminJWTSecret() string
	GetAdminTokenHash() string
}

// SchedulerConfig provides settings for the asynq dispatch queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// NotificationConfig provides settings for tier-change notifications.
type NotificationConfig interface {
	GetTierWebhookURL() string
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetSalesAlertRecipient() string
}

// ScoringConfig provides settings for the profile store.
type ScoringConfig interface {
	GetLockTimeout() time.Duration
	GetDefaultPhoneRegion() string
}

// =============================================================================
// Config Implementation
// =============================================================================

// Config holds all application configuration loaded from the environment.
type Config struct {
	Env      string
	HTTPAddr string

	DatabaseURL string
	RedisURL    string

	CORSAllowAll bool
	CORSOrigins  []string

	AdminJWTSecret string
	AdminTokenHash string

	AsynqQueueName   string
	AsynqConcurrency int

	TierWebhookURL      string
	EmailEnabled        bool
	SMTPHost            string
	SMTPPort            int
	SMTPUsername        string
	SMTPPassword        string
	EmailFromName       string
	EmailFromAddress    string
	SalesAlertRecipient string

	LockTimeout        time.Duration
	DefaultPhoneRegion string

	RateLimitPerSecond float64
	RateLimitBurst     int
}

// Load reads configuration from the environment, with an optional .env file.
func Load() (*Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		CORSAllowAll: getEnvBool("CORS_ALLOW_ALL", false),
		CORSOrigins:  splitCSV(os.Getenv("CORS_ORIGINS")),

		AdminJWTSecret: os.Getenv("ADMIN_JWT_SECRET"),
		AdminTokenHash: os.Getenv("ADMIN_TOKEN_BCRYPT_HASH"),

		AsynqQueueName:   getEnv("ASYNQ_QUEUE", "notifications"),
		AsynqConcurrency: getEnvInt("ASYNQ_CONCURRENCY", 10),

		TierWebhookURL:      os.Getenv("TIER_WEBHOOK_URL"),
		EmailEnabled:        getEnvBool("EMAIL_ENABLED", false),
		SMTPHost:            os.Getenv("SMTP_HOST"),
		SMTPPort:            getEnvInt("SMTP_PORT", 587),
		SMTPUsername:        os.Getenv("SMTP_USERNAME"),
		SMTPPassword:        os.Getenv("SMTP_PASSWORD"),
		EmailFromName:       getEnv("EMAIL_FROM_NAME", "Lead Scoring"),
		EmailFromAddress:    os.Getenv("EMAIL_FROM_ADDRESS"),
		SalesAlertRecipient: os.Getenv("SALES_ALERT_RECIPIENT"),

		LockTimeout:        getEnvDuration("LOCK_TIMEOUT", 5*time.Second),
		DefaultPhoneRegion: getEnv("DEFAULT_PHONE_REGION", "US"),

		RateLimitPerSecond: getEnvFloat("RATE_LIMIT_PER_SECOND", 25),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 50),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if !strings.EqualFold(c.Env, "development") {
		if c.AdminJWTSecret == "" && c.AdminTokenHash == "" {
			return fmt.Errorf("ADMIN_JWT_SECRET or ADMIN_TOKEN_BCRYPT_HASH must be set outside development")
		}
	}
	if c.EmailEnabled && c.SMTPHost == "" {
		return fmt.Errorf("SMTP_HOST is required when EMAIL_ENABLED=true")
	}
	return nil
}

// Interface implementations.

func (c *Config) GetDatabaseURL() string         { return c.DatabaseURL }
func (c *Config) GetHTTPAddr() string            { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool          { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string       { return c.CORSOrigins }
func (c *Config) GetAdminJWTSecret() string      { return c.AdminJWTSecret }
func (c *Config) GetAdminTokenHash() string      { return c.AdminTokenHash }
func (c *Config) GetRedisURL() string            { return c.RedisURL }
func (c *Config) GetAsynqQueueName() string      { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int       { return c.AsynqConcurrency }
func (c *Config) GetTierWebhookURL() string      { return c.TierWebhookURL }
func (c *Config) GetEmailEnabled() bool          { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string            { return c.SMTPHost }
func (c *Config) GetSMTPPort() int               { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string        { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string        { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string       { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string    { return c.EmailFromAddress }
func (c *Config) GetSalesAlertRecipient() string { return c.SalesAlertRecipient }
func (c *Config) GetLockTimeout() time.Duration  { return c.LockTimeout }
func (c *Config) GetDefaultPhoneRegion() string  { return c.DefaultPhoneRegion }

// Helpers.

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
