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
	Redis      RedisConfig      `yaml:"redis"`
	Hardware   HardwareConfig   `yaml:"hardware"`
	Access     AccessConfig     `yaml:"access"`
	Events     EventsConfig     `yaml:"events"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // "postgres" or "sqlite"
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// RedisConfig holds the connection settings for the token store and the
// shared status cache. When Addr is empty the in-process backends are used.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// HardwareConfig holds the locker controller endpoint configuration.
type HardwareConfig struct {
	BaseURL        string            `yaml:"base_url"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
	Timeout        time.Duration     `yaml:"-"`
	Headers        map[string]string `yaml:"headers"`
}

// AccessConfig holds the unlock policy knobs: duration bounds per role,
// token TTL, the status cache online threshold and the relock safety margin.
type AccessConfig struct {
	MinDurationSeconds      int           `yaml:"min_duration_seconds"`
	DefaultDurationSeconds  int           `yaml:"default_duration_seconds"`
	MaxDurationSeconds      int           `yaml:"max_duration_seconds"`
	MaxAdminDurationSeconds int           `yaml:"max_admin_duration_seconds"`
	TokenTTLSeconds         int           `yaml:"token_ttl_seconds"`
	OnlineThresholdSeconds  int           `yaml:"online_threshold_seconds"`
	RelockMarginSeconds     int           `yaml:"relock_margin_seconds"`
	TokenTTL                time.Duration `yaml:"-"`
	OnlineThreshold         time.Duration `yaml:"-"`
	RelockMargin            time.Duration `yaml:"-"`
}

// EventsConfig selects the event bus backend.
type EventsConfig struct {
	Backend string `yaml:"backend"` // "memory" or "nats"
	NatsURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
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

	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 60
	}

	if cfg.Hardware.TimeoutSeconds <= 0 {
		cfg.Hardware.TimeoutSeconds = 5
	}
	cfg.Hardware.Timeout = time.Duration(cfg.Hardware.TimeoutSeconds) * time.Second

	if cfg.Access.MinDurationSeconds <= 0 {
		cfg.Access.MinDurationSeconds = 5
	}
	if cfg.Access.DefaultDurationSeconds <= 0 {
		cfg.Access.DefaultDurationSeconds = 30
	}
	if cfg.Access.MaxDurationSeconds <= 0 {
		cfg.Access.MaxDurationSeconds = 300
	}
	if cfg.Access.MaxAdminDurationSeconds <= 0 {
		cfg.Access.MaxAdminDurationSeconds = 600
	}
	if cfg.Access.TokenTTLSeconds <= 0 {
		cfg.Access.TokenTTLSeconds = 120
	}
	if cfg.Access.OnlineThresholdSeconds <= 0 {
		cfg.Access.OnlineThresholdSeconds = 60
	}
	if cfg.Access.RelockMarginSeconds <= 0 {
		cfg.Access.RelockMarginSeconds = 5
	}
	cfg.Access.TokenTTL = time.Duration(cfg.Access.TokenTTLSeconds) * time.Second
	cfg.Access.OnlineThreshold = time.Duration(cfg.Access.OnlineThresholdSeconds) * time.Second
	cfg.Access.RelockMargin = time.Duration(cfg.Access.RelockMarginSeconds) * time.Second

	if cfg.Events.Backend == "" {
		cfg.Events.Backend = "memory"
	}
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = "lockers.events"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
