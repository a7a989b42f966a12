package config

import (
	"github.com/mailflux/mailflux/internal/database"
	"github.com/mailflux/mailflux/internal/logger"
	"github.com/mailflux/mailflux/internal/tracing"
)

type AppConfig struct {
	APIPort     string `env:"API_PORT" envDefault:"3001"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	RabbitMQURL string `env:"RABBITMQ_URL"`

	WebhookSecret string `env:"WEBHOOK_SECRET"`
}

type RelayConfig struct {
	Host     string `env:"HARAKA_HOST" envDefault:"localhost"`
	Port     int    `env:"HARAKA_PORT" envDefault:"2525"`
	Username string `env:"HARAKA_USERNAME"`
	Password string `env:"HARAKA_PASSWORD"`
}

type TrackingConfig struct {
	BaseURL             string `env:"TRACKING_BASE_URL" envDefault:"http://localhost:3001"`
	EnableOpenTracking  bool   `env:"ENABLE_OPEN_TRACKING" envDefault:"true"`
	EnableClickTracking bool   `env:"ENABLE_CLICK_TRACKING" envDefault:"true"`
}

type CronConfig struct {
	// Standard 5-field cron expression for the stale-queued sweeper.
	StaleQueuedSchedule string `env:"CRON_SCHEDULE_STALE_QUEUED" envDefault:"*/15 * * * *"`
	// Queued events older than this many minutes are expired.
	StaleQueuedCutoffMinutes int `env:"STALE_QUEUED_CUTOFF_MINUTES" envDefault:"60"`
}

type Config struct {
	AppConfig      *AppConfig
	DatabaseConfig *database.DatabaseConfig
	RelayConfig    *RelayConfig
	TrackingConfig *TrackingConfig
	CronConfig     *CronConfig
	Logger         *logger.Config
	Tracing        *tracing.JaegerConfig
}
