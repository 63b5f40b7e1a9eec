package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Placeholder values shipped in sample configuration. They disable the matching remote feature.
const (
	PlaceholderAPIKey      = "YOUR_API_KEY_HERE"
	PlaceholderDatabaseURL = "https://YOUR_PROJECT_ID.firebaseio.com"
)

// OTP storage backends.
const (
	OTPBackendRTDB   = "rtdb"
	OTPBackendMinio  = "minio"
	OTPBackendMemory = "memory"
)

// Config contains application configuration parameters.
type Config struct {
	LogLevel int      `env:"LOG_LEVEL" envDefault:"0"`
	Database Database `envPrefix:"DATABASE_"`
	Provider Provider `envPrefix:"PROVIDER_"`
	OTP      OTP      `envPrefix:"OTP_"`
	Storage  Storage  `envPrefix:"MINIO_"`
	Workers  Workers  `envPrefix:"WORKERS_"`
	Session  Session  `envPrefix:"SESSION_"`
}

// Database contains local credential store parameters.
type Database struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
	DSN    string `env:"DSN" envDefault:"file:contestauth.db?_pragma=busy_timeout(5000)"`
}

// Provider contains remote identity provider parameters.
type Provider struct {
	Enabled     bool          `env:"ENABLED" envDefault:"true"`
	APIKey      string        `env:"API_KEY"`
	IdentityURL string        `env:"IDENTITY_URL" envDefault:"https://identitytoolkit.googleapis.com/v1"`
	TokenURL    string        `env:"TOKEN_URL" envDefault:"https://securetoken.googleapis.com/v1"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

// Configured reports whether remote calls are allowed.
func (p Provider) Configured() bool {
	return p.Enabled && p.APIKey != "" && p.APIKey != PlaceholderAPIKey
}

// OTP contains password reset challenge parameters.
type OTP struct {
	Backend     string        `env:"BACKEND" envDefault:"rtdb"`
	DatabaseURL string        `env:"DATABASE_URL"`
	TTL         time.Duration `env:"TTL" envDefault:"10m"`
}

// Storage contains object storage parameters.
type Storage struct {
	Endpoint  string `env:"ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"ACCESS_KEY" envDefault:"contestauth-access-key"`
	SecretKey string `env:"SECRET_KEY" envDefault:"contestauth-secret-key"`
	Bucket    string `env:"BUCKET_NAME" envDefault:"contestauth-otp"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

// Workers contains background worker pool parameters.
type Workers struct {
	Size int `env:"SIZE" envDefault:"4"`
}

// Session contains session lifetime parameters.
type Session struct {
	LocalTTL time.Duration `env:"LOCAL_TTL" envDefault:"720h"`
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database driver %q", c.Database.Driver)
	}

	switch c.OTP.Backend {
	case OTPBackendRTDB, OTPBackendMinio, OTPBackendMemory:
	default:
		return fmt.Errorf("invalid otp backend %q", c.OTP.Backend)
	}

	if c.Workers.Size < 1 {
		return fmt.Errorf("workers size must be positive, got %d", c.Workers.Size)
	}

	return nil
}
