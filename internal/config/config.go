// Package config loads every runtime knob from the environment into one
// explicit struct handed to constructors; no component reads the
// environment on its own.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL       string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"10m"`

	SentryDSN string `env:"SENTRY_DSN"`

	JWTSecret     string        `env:"JWT_SECRET,required,notEmpty"`
	TokenTTL      time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	TokenIssuer   string        `env:"TOKEN_ISSUER" envDefault:"sourcehub-api"`
	TokenAudience string        `env:"TOKEN_AUDIENCE" envDefault:"sourcehub-client"`

	BcryptCost        int           `env:"BCRYPT_COST" envDefault:"12"`
	LoginMaxAttempts  int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LoginLockDuration time.Duration `env:"LOGIN_LOCK_DURATION" envDefault:"2h"`
	ResetTokenTTL     time.Duration `env:"RESET_TOKEN_TTL" envDefault:"15m"`

	LoginRateLimitMax    int           `env:"LOGIN_RATE_LIMIT_MAX" envDefault:"10"`
	LoginRateLimitWindow time.Duration `env:"LOGIN_RATE_LIMIT_WINDOW" envDefault:"1m"`

	CronSecret       string `env:"CRON_SECRET"`
	CleanupBatchSize int    `env:"AUTH_CLEANUP_BATCH_SIZE" envDefault:"500"`

	AdminName     string `env:"ADMIN_NAME" envDefault:"Administrator"`
	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 bytes")
	}
	if c.TokenTTL <= 0 || c.ResetTokenTTL <= 0 || c.LoginLockDuration <= 0 {
		return errors.New("token, reset and lock durations must be positive")
	}
	if c.LoginMaxAttempts <= 0 {
		return errors.New("LOGIN_MAX_ATTEMPTS must be positive")
	}
	return nil
}

func (c Config) Development() bool {
	return c.AppEnv == "development"
}
