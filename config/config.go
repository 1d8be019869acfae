package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Servers
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	// Infrastructure
	SQLitePath    string        `env:"SQLITE_PATH" envDefault:"data/candles.db"`
	RedisAddr     string        `env:"REDIS_ADDR"` // empty disables the overlay cache and pub/sub fan-out
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"10m"`

	// Overlay computation
	DefaultWindow  int `env:"DEFAULT_WINDOW" envDefault:"500"`
	MaxWindow      int `env:"MAX_WINDOW" envDefault:"5000"`
	ComputeWorkers int `env:"COMPUTE_WORKERS" envDefault:"4"`

	// Presets and cache warming
	PresetsFile  string `env:"PRESETS_FILE" envDefault:"presets.yaml"`
	WarmSchedule string `env:"WARM_SCHEDULE" envDefault:"@every 1m"`

	// Admin candle import; empty disables POST /api/candles
	AdminTOTPSecret string `env:"ADMIN_TOTP_SECRET"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads an optional .env file, then parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that struct tags cannot express.
func (c *Config) Validate() error {
	if c.DefaultWindow <= 0 {
		return fmt.Errorf("DEFAULT_WINDOW must be positive, got %d", c.DefaultWindow)
	}
	if c.MaxWindow < c.DefaultWindow {
		return fmt.Errorf("MAX_WINDOW (%d) must be >= DEFAULT_WINDOW (%d)", c.MaxWindow, c.DefaultWindow)
	}
	if c.ComputeWorkers <= 0 {
		c.ComputeWorkers = 1
	}
	return nil
}

// RedisEnabled reports whether a Redis address is configured.
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }
