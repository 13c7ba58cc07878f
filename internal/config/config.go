// Package config aggregates environment configuration for the application.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dmitrymomot/mailblocks/internal/database"
	"github.com/dmitrymomot/mailblocks/pkg/logger"
	"github.com/dmitrymomot/mailblocks/pkg/mailer/resend"
)

// Config is the full application configuration, parsed from environment
// variables. When DATABASE_URL is set the app runs on Postgres (record store
// and River-backed scheduler); otherwise it falls back to the JSON file
// store and the in-memory scheduler.
type Config struct {
	// HTTP server bind address.
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`

	// Path of the JSON file store used without a database.
	StorePath string `env:"STORE_PATH" envDefault:"data/schedules.json"`

	// Optional AMQP broker for lifecycle events.
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"mailblocks.events"`

	// Stale-schedule sweep (Postgres mode only).
	SweepSchedule string        `env:"SWEEP_SCHEDULE" envDefault:"*/10 * * * *"`
	SweepGrace    time.Duration `env:"SWEEP_GRACE" envDefault:"5m"`

	// Delivery worker tuning.
	MaxWorkers  int `env:"DELIVERY_MAX_WORKERS" envDefault:"10"`
	MaxAttempts int `env:"DELIVERY_MAX_ATTEMPTS" envDefault:"1"`

	// Client-side provider rate limit, sends per second. Zero disables.
	SendRate  float64 `env:"SEND_RATE"`
	SendBurst int     `env:"SEND_BURST" envDefault:"1"`

	Database database.Config
	Resend   resend.Config
	Logger   logger.Config
}

// Load parses the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	return cfg, nil
}
