// Package config loads runtime configuration from environment variables and
// an optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime settings for the skedge service.
type Config struct {
	// Cronofy OAuth application settings.
	CronofyClientID     string
	CronofyClientSecret string
	CronofyRedirectURI  string
	CronofyAuthHost     string
	CronofyAPIHost      string

	// HTTP listen addresses. MetricsAddr serves Prometheus metrics and
	// health endpoints on a separate port.
	ListenAddr  string
	MetricsAddr string

	// DatabaseURL is a lib/pq connection string. When empty the service
	// keeps credentials in memory only.
	DatabaseURL string

	// Availability query defaults.
	HorizonDays int
	StartHour   int
	EndHour     int
	Timezone    string
	MergeBuffer time.Duration

	// Fan-out settings for provider API calls.
	Workers       int
	RateLimit     float64
	RateBurst     int
	FetchTimeout  time.Duration
	ServerTimeout time.Duration
}

// Load reads configuration from SKEDGE_* environment variables, with an
// optional config file in the working directory taking lower precedence.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("skedge")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.SetEnvPrefix("SKEDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		CronofyClientID:     v.GetString("cronofy.client_id"),
		CronofyClientSecret: v.GetString("cronofy.client_secret"),
		CronofyRedirectURI:  v.GetString("cronofy.redirect_uri"),
		CronofyAuthHost:     v.GetString("cronofy.auth_host"),
		CronofyAPIHost:      v.GetString("cronofy.api_host"),
		ListenAddr:          v.GetString("listen_addr"),
		MetricsAddr:         v.GetString("metrics_addr"),
		DatabaseURL:         v.GetString("database_url"),
		HorizonDays:         v.GetInt("availability.horizon_days"),
		StartHour:           v.GetInt("availability.start_hour"),
		EndHour:             v.GetInt("availability.end_hour"),
		Timezone:            v.GetString("availability.timezone"),
		MergeBuffer:         v.GetDuration("availability.merge_buffer"),
		Workers:             v.GetInt("fetch.workers"),
		RateLimit:           v.GetFloat64("fetch.rate_limit"),
		RateBurst:           v.GetInt("fetch.rate_burst"),
		FetchTimeout:        v.GetDuration("fetch.timeout"),
		ServerTimeout:       v.GetDuration("server.timeout"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("cronofy.auth_host", "https://app.cronofy.com")
	v.SetDefault("cronofy.api_host", "https://api.cronofy.com")
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("availability.horizon_days", 5)
	v.SetDefault("availability.start_hour", 9)
	v.SetDefault("availability.end_hour", 17)
	v.SetDefault("availability.timezone", "America/Los_Angeles")
	v.SetDefault("availability.merge_buffer", time.Duration(0))
	v.SetDefault("fetch.workers", 4)
	v.SetDefault("fetch.rate_limit", 10.0)
	v.SetDefault("fetch.rate_burst", 5)
	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("server.timeout", 60*time.Second)
}

// Validate checks for settings the service cannot run without.
func (c *Config) Validate() error {
	if c.CronofyClientID == "" {
		return errors.New("cronofy client id is required (SKEDGE_CRONOFY_CLIENT_ID)")
	}
	if c.CronofyClientSecret == "" {
		return errors.New("cronofy client secret is required (SKEDGE_CRONOFY_CLIENT_SECRET)")
	}
	if c.CronofyRedirectURI == "" {
		return errors.New("cronofy redirect uri is required (SKEDGE_CRONOFY_REDIRECT_URI)")
	}
	if c.StartHour < 0 || c.StartHour > 23 || c.EndHour < 1 || c.EndHour > 24 {
		return fmt.Errorf("window hours out of range: start %d, end %d", c.StartHour, c.EndHour)
	}
	if c.StartHour >= c.EndHour {
		return fmt.Errorf("start hour %d must be before end hour %d", c.StartHour, c.EndHour)
	}
	if c.HorizonDays < 1 {
		return fmt.Errorf("horizon days must be positive, got %d", c.HorizonDays)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	if c.Workers < 1 {
		return fmt.Errorf("fetch workers must be positive, got %d", c.Workers)
	}
	return nil
}
