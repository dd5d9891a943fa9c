// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/internal/ecosystem"
	"github.com/blitzy-public-samples/case-mentor-4sx1t8-sub002/pkg/logger"
)

// Config is the full process configuration.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	OpenAI      OpenAIConfig
	Stripe      StripeConfig
	Resend      ResendConfig
	Simulation  SimulationConfig
	Maintenance MaintenanceConfig
	Logging     logger.LoggingConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `env:"HTTP_ADDR,default=:8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT,default=15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT,default=30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT,default=10s"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS"`
	RateLimit       int           `env:"RATE_LIMIT_PER_MINUTE,default=120"`
}

// DatabaseConfig points at Postgres. An empty DSN selects the memory stores.
type DatabaseConfig struct {
	DSN             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS,default=20"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME,default=30m"`
	Migrate         bool          `env:"DATABASE_MIGRATE,default=true"`
}

// RedisConfig points at Redis. An empty URL selects the in-process cache.
type RedisConfig struct {
	URL string        `env:"REDIS_URL"`
	TTL time.Duration `env:"CACHE_TTL,default=5m"`
}

// AuthConfig verifies Supabase access tokens.
type AuthConfig struct {
	JWTSecret string `env:"SUPABASE_JWT_SECRET"`
	Issuer    string `env:"SUPABASE_JWT_ISSUER"`
	Audience  string `env:"SUPABASE_JWT_AUDIENCE,default=authenticated"`
}

// OpenAIConfig enables LLM evaluation.
type OpenAIConfig struct {
	APIKey  string        `env:"OPENAI_API_KEY"`
	BaseURL string        `env:"OPENAI_BASE_URL,default=https://api.openai.com/v1"`
	Model   string        `env:"OPENAI_MODEL,default=gpt-4o-mini"`
	Timeout time.Duration `env:"OPENAI_TIMEOUT,default=30s"`
}

// StripeConfig enables billing.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
	PriceID       string `env:"STRIPE_PRO_PRICE_ID"`
	BaseURL       string `env:"STRIPE_BASE_URL,default=https://api.stripe.com/v1"`
	SuccessURL    string `env:"STRIPE_SUCCESS_URL,default=http://localhost:3000/billing/success"`
	CancelURL     string `env:"STRIPE_CANCEL_URL,default=http://localhost:3000/billing/cancel"`
}

// ResendConfig enables transactional email.
type ResendConfig struct {
	APIKey  string `env:"RESEND_API_KEY"`
	From    string `env:"RESEND_FROM,default=Case Mentor <noreply@casementor.app>"`
	BaseURL string `env:"RESEND_BASE_URL,default=https://api.resend.com"`
}

// SimulationConfig points at an optional yaml override of the engine tuning.
type SimulationConfig struct {
	File string `env:"SIMULATION_CONFIG_FILE"`
}

// MaintenanceConfig schedules background sweeps using cron expressions.
type MaintenanceConfig struct {
	Enabled              bool   `env:"MAINTENANCE_ENABLED,default=true"`
	AttemptSchedule      string `env:"MAINTENANCE_ATTEMPT_SCHEDULE,default=@every 1m"`
	SimulationSchedule   string `env:"MAINTENANCE_SIMULATION_SCHEDULE,default=@every 5m"`
	SubscriptionSchedule string `env:"MAINTENANCE_SUBSCRIPTION_SCHEDULE,default=@hourly"`
}

// Load reads an optional .env file (path from ENV_FILE, default ".env") and
// decodes the environment into a Config.
func Load() (*Config, error) {
	envFile := strings.TrimSpace(os.Getenv("ENV_FILE"))
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	return FromEnv()
}

// FromEnv decodes the current environment without touching .env files.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Database.DSN = strings.TrimSpace(c.Database.DSN)
	c.Redis.URL = strings.TrimSpace(c.Redis.URL)
	c.OpenAI.BaseURL = strings.TrimRight(strings.TrimSpace(c.OpenAI.BaseURL), "/")
	c.Stripe.BaseURL = strings.TrimRight(strings.TrimSpace(c.Stripe.BaseURL), "/")
	c.Resend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Resend.BaseURL), "/")

	origins := c.Server.AllowedOrigins[:0]
	for _, o := range c.Server.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.Server.AllowedOrigins = origins
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("SUPABASE_JWT_SECRET is required")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be >= 0, got %d", c.Server.RateLimit)
	}
	if c.Stripe.SecretKey != "" && c.Stripe.PriceID == "" {
		return errors.New("STRIPE_PRO_PRICE_ID is required when STRIPE_SECRET_KEY is set")
	}
	return nil
}

// SimulationTuning loads the engine configuration, overlaying the yaml file
// when one is configured.
func (c *Config) SimulationTuning() (ecosystem.Config, error) {
	return ecosystem.LoadConfig(c.Simulation.File)
}
