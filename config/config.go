package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Pricing    PricingConfig    `yaml:"pricing"`
	Stripe     StripeConfig     `yaml:"stripe"`
	Settlement SettlementConfig `yaml:"settlement"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// PricingConfig holds the pricing policy configuration.
type PricingConfig struct {
	FlatRateCents int64 `yaml:"flat_rate_cents"`
}

// StripeConfig holds the payment gateway configuration.
type StripeConfig struct {
	SecretKey            string        `yaml:"secret_key"`
	OnboardingRefreshURL string        `yaml:"onboarding_refresh_url"`
	OnboardingReturnURL  string        `yaml:"onboarding_return_url"`
	TimeoutSeconds       int           `yaml:"timeout_seconds"`
	Timeout              time.Duration `yaml:"-"` // Ignored by YAML parser
}

// SettlementConfig holds the reconciliation loop configuration.
type SettlementConfig struct {
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 4242
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Pricing.FlatRateCents <= 0 {
		cfg.Pricing.FlatRateCents = 1500
	}

	if cfg.Stripe.TimeoutSeconds <= 0 {
		cfg.Stripe.TimeoutSeconds = 15
	}
	cfg.Stripe.Timeout = time.Duration(cfg.Stripe.TimeoutSeconds) * time.Second

	if cfg.Settlement.IntervalSeconds <= 0 {
		cfg.Settlement.IntervalSeconds = 30
	}
	cfg.Settlement.Interval = time.Duration(cfg.Settlement.IntervalSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
