package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/dht-telemetry/internal/scheduler"
	"github.com/i474232898/dht-telemetry/internal/telemetry"
	"github.com/i474232898/dht-telemetry/internal/telemetry/feed"
)

type AppConfig struct {
	FeedURL string        `env:"FEED_URL" envDefault:"https://iot.egspgroup.in:81/api/dht" validate:"required,url"`
	Timeout time.Duration `env:"FEED_TIMEOUT" envDefault:"10s" validate:"gt=0"`
	// InsecureTLS accepts the upstream's self-signed certificate.
	InsecureTLS  bool  `env:"FEED_INSECURE_TLS" envDefault:"true"`
	MaxBodyBytes int64 `env:"FEED_MAX_BODY_BYTES" envDefault:"33554432" validate:"gt=0"`

	// FetchInterval controls how often an ingestion cycle runs.
	FetchInterval      time.Duration `env:"FETCH_INTERVAL" envDefault:"30s" validate:"gt=0"`
	CycleTimeout       time.Duration `env:"CYCLE_TIMEOUT" envDefault:"30s" validate:"gt=0"`
	CycleMaxRetries    int           `env:"CYCLE_MAX_RETRIES" envDefault:"2" validate:"gte=0"`
	CycleRetryInterval time.Duration `env:"CYCLE_RETRY_INTERVAL" envDefault:"2s" validate:"gte=0"`

	StoreBackend string `env:"STORE_BACKEND" envDefault:"csv" validate:"oneof=csv sqlite badger memory"`
	// StorePath defaults per backend when unset, see defaultStorePaths.
	StorePath string `env:"STORE_PATH"`

	TempLow      float64 `env:"TEMP_LOW" envDefault:"20"`
	TempHigh     float64 `env:"TEMP_HIGH" envDefault:"40" validate:"gtefield=TempLow"`
	HumidityLow  float64 `env:"HUMIDITY_LOW" envDefault:"30"`
	HumidityHigh float64 `env:"HUMIDITY_HIGH" envDefault:"60" validate:"gtefield=HumidityLow"`

	Port     string `env:"PORT" envDefault:"8080" validate:"required,numeric"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

var validate = validator.New()

var defaultStorePaths = map[string]string{
	"csv":    "data/readings.csv",
	"sqlite": "data/readings.db",
	"badger": "data/badger",
	"memory": "",
}

// Load reads configuration from environment with sensible defaults. A .env file in
// the working directory is applied first when present.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.StorePath == "" {
		cfg.StorePath = defaultStorePaths[cfg.StoreBackend]
	}
	return cfg, nil
}

// Feed returns the upstream client configuration.
func (c *AppConfig) Feed() feed.Config {
	return feed.Config{
		URL:                c.FeedURL,
		Timeout:            c.Timeout,
		InsecureSkipVerify: c.InsecureTLS,
		MaxBodyBytes:       c.MaxBodyBytes,
	}
}

// Backoff returns the retry policy for failed cycles.
func (c *AppConfig) Backoff() scheduler.BackoffConfig {
	return scheduler.BackoffConfig{
		MaxRetries:      c.CycleMaxRetries,
		InitialInterval: c.CycleRetryInterval,
		MaxInterval:     c.FetchInterval,
	}
}

// Bands returns the status thresholds.
func (c *AppConfig) Bands() telemetry.Bands {
	return telemetry.Bands{
		Temperature: telemetry.Band{Low: c.TempLow, High: c.TempHigh},
		Humidity:    telemetry.Band{Low: c.HumidityLow, High: c.HumidityHigh},
	}
}
