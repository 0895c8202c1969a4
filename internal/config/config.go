package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type ServerConfig struct {
	Port      int    `yaml:"port"`
	JWTSecret string `yaml:"jwt_secret"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type MercadoPagoConfig struct {
	AccessToken     string `yaml:"access_token"`
	BaseURL         string `yaml:"base_url"`
	BackURL         string `yaml:"back_url"`
	NotificationURL string `yaml:"notification_url"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	BaseURL       string `yaml:"base_url"`
	SuccessURL    string `yaml:"success_url"`
	CancelURL     string `yaml:"cancel_url"`
	WebhookSecret string `yaml:"webhook_secret"`
}

type PaymentConfig struct {
	MercadoPago MercadoPagoConfig `yaml:"mercadopago"`
	Stripe      StripeConfig      `yaml:"stripe"`
}

type CheckoutConfig struct {
	MinOrderTotal int64         `yaml:"min_order_total"` // minor currency units
	OrderTTL      time.Duration `yaml:"order_ttl"`
}

type SchedulerConfig struct {
	ExpiryInterval time.Duration `yaml:"expiry_interval"`
	ReminderDays   int           `yaml:"reminder_days"`
	Workers        int           `yaml:"workers"`
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Payment   PaymentConfig   `yaml:"payment"`
	Checkout  CheckoutConfig  `yaml:"checkout"`
	Scheduler SchedulerConfig `yaml:"scheduler"`

	Runtime RuntimeConfig `yaml:"-"`
}

func LoadConfig(configPath string, dev bool) (*Config, error) {
	b, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// defaults
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 8
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL)
	if cfg.Checkout.OrderTTL <= 0 {
		cfg.Checkout.OrderTTL = 24 * time.Hour
	}
	if cfg.Scheduler.ExpiryInterval <= 0 {
		cfg.Scheduler.ExpiryInterval = time.Hour
	}
	if cfg.Scheduler.ReminderDays <= 0 {
		cfg.Scheduler.ReminderDays = 3
	}
	if cfg.Scheduler.Workers <= 0 {
		cfg.Scheduler.Workers = 4
	}

	// Minimal validation
	if cfg.Database.URL == "" {
		return nil, errors.New("database.url is required")
	}
	if cfg.Redis.URL == "" {
		return nil, errors.New("redis.url is required")
	}
	if cfg.Server.JWTSecret == "" {
		return nil, errors.New("server.jwt_secret is required")
	}
	if cfg.Payment.Stripe.WebhookSecret == "" {
		return nil, errors.New("payment.stripe.webhook_secret is required")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
