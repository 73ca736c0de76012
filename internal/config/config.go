// Package config loads the engine configuration from YAML with
// environment overrides for deployment secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dipwatch/dipwatch/internal/alerts"
	"github.com/dipwatch/dipwatch/internal/sector"
)

// Config is the full engine configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	Exchange struct {
		Timezone    string `yaml:"timezone"`
		OpenMinute  int    `yaml:"open_minute"`
		CloseMinute int    `yaml:"close_minute"`
	} `yaml:"exchange"`

	Scheduler struct {
		AlertCycleMinutes  int  `yaml:"alert_cycle_minutes"`
		SectorCycleMinutes int  `yaml:"sector_cycle_minutes"`
		AlertCycleAlways   bool `yaml:"alert_cycle_always"`
	} `yaml:"scheduler"`

	Noise alerts.NoiseConfig `yaml:"noise"`

	Sector sector.Thresholds `yaml:"sector"`

	Filter struct {
		MinPrice   float64 `yaml:"min_price"`
		MinADTV    float64 `yaml:"min_adtv"`
		ExcludeASM bool    `yaml:"exclude_asm"`
	} `yaml:"filter"`

	Data struct {
		BarHistoryDays    int     `yaml:"bar_history_days"`
		CandidateLimit    int     `yaml:"candidate_limit"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		FetchTimeoutSecs  int     `yaml:"fetch_timeout_seconds"`
		MaxRetries        int     `yaml:"max_retries"`
		MaxConcurrency    int     `yaml:"max_concurrency"`
		QuoteStreamURL    string  `yaml:"quote_stream_url"`
	} `yaml:"data"`

	Redis struct {
		Addr string `yaml:"addr"`
	} `yaml:"redis"`

	Postgres struct {
		DSN string `yaml:"dsn"`
	} `yaml:"postgres"`

	HTTP struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"http"`
}

// Default returns a config with every knob at its canonical value.
func Default() *Config {
	cfg := &Config{}
	cfg.LogLevel = "info"
	cfg.Exchange.Timezone = "Asia/Kolkata"
	cfg.Exchange.OpenMinute = 9*60 + 15
	cfg.Exchange.CloseMinute = 15*60 + 30
	cfg.Scheduler.AlertCycleMinutes = 2
	cfg.Scheduler.SectorCycleMinutes = 15
	cfg.Noise = alerts.DefaultNoiseConfig()
	cfg.Sector = sector.DefaultThresholds()
	cfg.Filter.MinPrice = 50.0
	cfg.Filter.MinADTV = 1_000_000
	cfg.Filter.ExcludeASM = true
	cfg.Data.BarHistoryDays = 365
	cfg.Data.CandidateLimit = 12
	cfg.Data.RequestsPerSecond = 5
	cfg.Data.FetchTimeoutSecs = 10
	cfg.Data.MaxRetries = 2
	cfg.Data.MaxConcurrency = 8
	cfg.HTTP.ListenAddr = ":8080"
	return cfg
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error; the defaults
// plus environment stand alone.
func Load(path string) (*Config, error) {
	// Local .env is optional.
	_ = godotenv.Load()

	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.HTTP.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the scheduler cannot run with.
func (c *Config) Validate() error {
	if c.Scheduler.AlertCycleMinutes <= 0 {
		return fmt.Errorf("alert_cycle_minutes must be positive, got %d", c.Scheduler.AlertCycleMinutes)
	}
	if c.Scheduler.SectorCycleMinutes <= 0 {
		return fmt.Errorf("sector_cycle_minutes must be positive, got %d", c.Scheduler.SectorCycleMinutes)
	}
	if c.Data.BarHistoryDays < 50 {
		return fmt.Errorf("bar_history_days must be at least 50, got %d", c.Data.BarHistoryDays)
	}
	if c.Exchange.OpenMinute < 0 || c.Exchange.CloseMinute > 24*60 || c.Exchange.OpenMinute >= c.Exchange.CloseMinute {
		return fmt.Errorf("invalid market hours %d-%d", c.Exchange.OpenMinute, c.Exchange.CloseMinute)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the exchange timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Exchange.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Exchange.Timezone, err)
	}
	return loc, nil
}

// FetchTimeout converts the configured seconds to a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Data.FetchTimeoutSecs) * time.Second
}
