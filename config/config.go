// Package config loads service configuration from the environment.
//
// A .env file in the working directory is read first when present; real
// environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
)

// Mail providers.
const (
	MailPostmark = "postmark"
	MailLog      = "log"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the full service configuration.
type Config struct {
	Service   ServiceConfig   `envPrefix:"SERVICE_"`
	Logging   LoggingConfig   `envPrefix:"LOG_"`
	Tracing   TracingConfig   `envPrefix:"TRACING_"`
	Profiling ProfilingConfig `envPrefix:"PROFILING_"`
	Auth      AuthConfig      `envPrefix:"AUTH_"`
	Storage   StorageConfig
	Mail      MailConfig `envPrefix:"MAIL_"`
}

type ServiceConfig struct {
	Name                string        `env:"NAME" envDefault:"auth-service"`
	Version             string        `env:"VERSION" envDefault:"dev"`
	Env                 string        `env:"ENV" envDefault:"development"`
	Port                string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	ReadinessDrainDelay time.Duration `env:"READINESS_DRAIN_DELAY" envDefault:"0s"`
}

type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"` // json | console
}

type TracingConfig struct {
	Enabled    bool    `env:"ENABLED" envDefault:"false"`
	Endpoint   string  `env:"ENDPOINT" envDefault:"localhost:4318"`
	SampleRate float64 `env:"SAMPLE_RATE" envDefault:"1.0"`
}

type ProfilingConfig struct {
	Enabled  bool   `env:"ENABLED" envDefault:"false"`
	Endpoint string `env:"ENDPOINT" envDefault:"http://localhost:4040"`
}

// AuthConfig holds the session, quota and verification-code timings.
type AuthConfig struct {
	SessionLifetime time.Duration `env:"SESSION_LIFETIME" envDefault:"24h"`
	APILimit        int           `env:"API_LIMIT" envDefault:"1000"`
	RateWindow      time.Duration `env:"RATE_WINDOW" envDefault:"1h"`
	CodeExpire      time.Duration `env:"CODE_EXPIRE" envDefault:"30m"`
	CodeRetry       time.Duration `env:"CODE_RETRY" envDefault:"60s"`
	BcryptCost      int           `env:"BCRYPT_COST" envDefault:"12"`
	SignupURL       string        `env:"SIGNUP_URL" envDefault:"https://sustechflow.top/signup"`
}

type StorageConfig struct {
	Backend         string        `env:"STORAGE_BACKEND" envDefault:"postgres"`
	DatabaseURL     string        `env:"DATABASE_URL"`
	MongoURL        string        `env:"MONGODB_URL"`
	MongoDatabase   string        `env:"MONGODB_DATABASE" envDefault:"SUSTechFlow"`
	MongoCollection string        `env:"MONGODB_COLLECTION" envDefault:"User"`
	ConnectTimeout  time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"10s"`
	RetryAttempts   int           `env:"DB_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval   time.Duration `env:"DB_RETRY_INTERVAL" envDefault:"2s"`
}

type MailConfig struct {
	Provider             string `env:"PROVIDER" envDefault:"log"`
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	Sender               string `env:"SENDER" envDefault:"registerlink@auto.sustechflow.top"`
}

// Load reads .env (if any) and parses the environment into a Config.
func Load() (*Config, error) {
	// The .env file is optional.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// Validate checks settings that env tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.Service.Port == "" {
		errs = append(errs, fmt.Errorf("%w: SERVICE_PORT is required", ErrInvalidConfig))
	}
	if c.Auth.APILimit <= 0 {
		errs = append(errs, fmt.Errorf("%w: AUTH_API_LIMIT must be positive", ErrInvalidConfig))
	}
	if c.Auth.SessionLifetime <= 0 || c.Auth.RateWindow <= 0 || c.Auth.CodeExpire <= 0 {
		errs = append(errs, fmt.Errorf("%w: auth durations must be positive", ErrInvalidConfig))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("%w: TRACING_SAMPLE_RATE must be within [0, 1]", ErrInvalidConfig))
	}

	switch c.Storage.Backend {
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("%w: DATABASE_URL is required for the postgres backend", ErrInvalidConfig))
		}
	case BackendMongo:
		if c.Storage.MongoURL == "" {
			errs = append(errs, fmt.Errorf("%w: MONGODB_URL is required for the mongo backend", ErrInvalidConfig))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown STORAGE_BACKEND %q", ErrInvalidConfig, c.Storage.Backend))
	}

	switch c.Mail.Provider {
	case MailLog:
		if c.Service.Env == "production" {
			errs = append(errs, fmt.Errorf("%w: MAIL_PROVIDER=log is not allowed in production", ErrInvalidConfig))
		}
	case MailPostmark:
		if c.Mail.PostmarkServerToken == "" || c.Mail.PostmarkAccountToken == "" {
			errs = append(errs, fmt.Errorf("%w: postmark tokens are required", ErrInvalidConfig))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown MAIL_PROVIDER %q", ErrInvalidConfig, c.Mail.Provider))
	}

	return errors.Join(errs...)
}

// GetShutdownTimeoutDuration returns the graceful shutdown budget.
func (c *Config) GetShutdownTimeoutDuration() time.Duration {
	if c.Service.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}
	return c.Service.ShutdownTimeout
}

// GetReadinessDrainDelayDuration returns how long /ready reports
// shutting_down before the HTTP server stops.
func (c *Config) GetReadinessDrainDelayDuration() time.Duration {
	if c.Service.ReadinessDrainDelay < 0 {
		return 0
	}
	return c.Service.ReadinessDrainDelay
}
