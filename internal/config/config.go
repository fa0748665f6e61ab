// Package config loads application configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	SweeperTicker = "ticker"
	SweeperAsynq  = "asynq"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.
type Config struct {
	Env       string `env:"APP_ENV" envDefault:"dev"`
	Port      string `env:"APP_PORT" envDefault:"8080"`
	JWTSecret string `env:"JWT_SECRET,required,notEmpty"`

	// Persistence is disabled when DB_HOST is empty.
	DB DBConfig

	Redis     RedisConfig
	RateLimit RateLimitConfig

	// RabbitMQURL selects the broker; empty keeps events in process.
	RabbitMQURL   string `env:"RABBITMQ_URL"`
	BookingLogDir string `env:"BOOKING_LOG_DIR" envDefault:"logs"`

	HoldTTL       time.Duration `env:"HOLD_TTL" envDefault:"7m"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"60s"`
	SweeperMode   string        `env:"SWEEPER_MODE" envDefault:"ticker"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

type DBConfig struct {
	User string `env:"DB_USER"`
	Pass string `env:"DB_PASS"`
	Host string `env:"DB_HOST"`
	Port string `env:"DB_PORT" envDefault:"3306"`
	Name string `env:"DB_NAME"`
}

// Enabled reports whether a database is configured.
func (c DBConfig) Enabled() bool { return c.Host != "" }

// Load reads .env (when present) and the environment into a Config and
// validates it.
func Load() (Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()
	return Parse()
}

// Parse builds a Config from the current environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.RateLimit = cfg.RateLimit.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.HoldTTL <= 0 {
		errs = append(errs, fmt.Errorf("HOLD_TTL must be positive, got %s", c.HoldTTL))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL must be positive, got %s", c.SweepInterval))
	}
	if c.SweeperMode != SweeperTicker && c.SweeperMode != SweeperAsynq {
		errs = append(errs, fmt.Errorf("SWEEPER_MODE must be %q or %q, got %q", SweeperTicker, SweeperAsynq, c.SweeperMode))
	}
	if c.DB.Enabled() && (c.DB.User == "" || c.DB.Name == "") {
		errs = append(errs, errors.New("DB_USER and DB_NAME are required when DB_HOST is set"))
	}
	return errors.Join(errs...)
}
