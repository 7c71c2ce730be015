package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Version     string `koanf:"version"`
	Environment string `koanf:"environment" validate:"required,oneof=development staging production"`
	LogLevel    string `koanf:"log_level" validate:"required,oneof=debug info warn error"`

	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Redis    RedisConfig    `koanf:"redis"`
	Queue    QueueConfig    `koanf:"queue"`
	Auction  AuctionConfig  `koanf:"auction"`
	Email    EmailConfig    `koanf:"email"`
	Webhook  WebhookConfig  `koanf:"webhook"`

	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// ServerConfig covers the ops HTTP listener (health, readiness,
// metrics). The daemon has no public API surface.
type ServerConfig struct {
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type DatabaseConfig struct {
	URL             string        `koanf:"url" validate:"required"`
	MaxOpenConns    int           `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL          string        `koanf:"url" validate:"required"`
	Password     string        `koanf:"password"`
	DB           int           `koanf:"db" validate:"min=0"`
	PoolSize     int           `koanf:"pool_size" validate:"min=1"`
	MinIdleConns int           `koanf:"min_idle_conns" validate:"min=0"`
	MaxRetries   int           `koanf:"max_retries" validate:"min=0"`
	DialTimeout  time.Duration `koanf:"dial_timeout"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
}

// QueueConfig tunes the intake consumer. PopTimeout bounds each BRPOP
// so workers notice shutdown; LockTTL is the per-lead idempotency lock
// lifetime and must outlast the longest auction run.
type QueueConfig struct {
	Workers    int           `koanf:"workers" validate:"min=1"`
	PopTimeout time.Duration `koanf:"pop_timeout"`
	LockTTL    time.Duration `koanf:"lock_ttl"`
}

// AuctionConfig carries the auction parameters as primitives; the
// daemon converts them into the auction service's config at wiring
// time.
type AuctionConfig struct {
	MaxParticipants   int           `koanf:"max_participants" validate:"min=1"`
	Timeout           time.Duration `koanf:"timeout"`
	RequireMinimumBid bool          `koanf:"require_minimum_bid"`
	MinimumBid        string        `koanf:"minimum_bid" validate:"required_if=RequireMinimumBid true"`
	AllowTiedBids     bool          `koanf:"allow_tied_bids"`
	Tiebreak          string        `koanf:"tiebreak" validate:"oneof=response_time random priority"`
}

// EmailConfig drives the SES sender. Empty access keys fall back to
// the default AWS credential chain.
type EmailConfig struct {
	Region          string `koanf:"region" validate:"required"`
	Sender          string `koanf:"sender" validate:"omitempty,email"`
	ReplyTo         string `koanf:"reply_to" validate:"omitempty,email"`
	ConfigSet       string `koanf:"config_set"`
	DashboardURL    string `koanf:"dashboard_url" validate:"omitempty,url"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
}

type WebhookConfig struct {
	Timeout time.Duration `koanf:"timeout"`
}

type TelemetryConfig struct {
	Enabled       bool          `koanf:"enabled"`
	OTLPEndpoint  string        `koanf:"otlp_endpoint"`
	SamplingRate  float64       `koanf:"sampling_rate" validate:"min=0,max=1"`
	ExportTimeout time.Duration `koanf:"export_timeout"`
}

func defaults() *Config {
	return &Config{
		Version:     "dev",
		Environment: "development",
		LogLevel:    "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			DB:           0,
			PoolSize:     10,
			MinIdleConns: 2,
			MaxRetries:   3,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Queue: QueueConfig{
			Workers:    4,
			PopTimeout: 5 * time.Second,
			LockTTL:    2 * time.Minute,
		},
		Auction: AuctionConfig{
			MaxParticipants:   10,
			Timeout:           5 * time.Second,
			RequireMinimumBid: true,
			MinimumBid:        "10.00",
			AllowTiedBids:     false,
			Tiebreak:          "response_time",
		},
		Email: EmailConfig{
			Region: "us-east-1",
		},
		Webhook: WebhookConfig{
			Timeout: 30 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:       false,
			SamplingRate:  0.1,
			ExportTimeout: 10 * time.Second,
		},
	}
}

// Load reads configs/config.yaml when present and overrides with
// LEX_-prefixed environment variables (LEX_DATABASE_URL,
// LEX_AUCTION_TIMEOUT, ...).
func Load() (*Config, error) {
	return LoadFile("configs/config.yaml")
}

func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	// Config file is optional; env vars alone can configure a deploy
	if path != "" {
		_ = k.Load(file.Provider(path), yaml.Parser())
	}

	if err := k.Load(env.Provider("LEX_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "LEX_")), "_", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}
