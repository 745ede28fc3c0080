// Package config loads stop-finder settings from defaults, an optional
// config.yaml and STOPFINDER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/yourusername/stop-finder/internal/request"
)

// Config holds all application configuration.
type Config struct {
	GeocodingBaseURL string `mapstructure:"geocoding_base_url" validate:"required"`
	TransitBaseURL   string `mapstructure:"transit_base_url" validate:"required"`
	AppID            string `mapstructure:"app_id"`
	AppKey           string `mapstructure:"app_key"`
	SearchRadius     int    `mapstructure:"search_radius" validate:"gt=0"`
	ResultCount      int    `mapstructure:"result_count" validate:"gt=0"`

	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// HTTPConfig configures outbound requests to the upstream services.
type HTTPConfig struct {
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// LogConfig selects the slog level and output format.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

// ServerConfig configures the serve subcommand.
type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

// TelemetryConfig configures OpenTelemetry tracing. Tracing is off unless Enabled.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Exporter    string `mapstructure:"exporter" validate:"oneof=stdout otlp"`
	Endpoint    string `mapstructure:"endpoint"`
}

// Load reads configuration. paths lists extra directories searched for
// config.yaml after "." and "./configs".
func Load(paths ...string) (*Config, error) {
	v := viper.New()

	v.SetDefault("geocoding_base_url", "https://api.postcodes.io")
	v.SetDefault("transit_base_url", "https://api.tfl.gov.uk")
	v.SetDefault("app_id", "")
	v.SetDefault("app_key", "")
	v.SetDefault("search_radius", 1000)
	v.SetDefault("result_count", 5)
	v.SetDefault("http.timeout", 10*time.Second)
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("server.addr", ":5001")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "stop-finder")
	v.SetDefault("telemetry.exporter", "stdout")
	v.SetDefault("telemetry.endpoint", "")

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	// Environment variables: STOPFINDER_APP_KEY → app_key, STOPFINDER_LOG_LEVEL → log.level
	v.SetEnvPrefix("STOPFINDER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and that both base URLs are absolute.
// A bad base URL is reported as domain.ErrMalformedBaseURL.
func (c *Config) Validate() error {
	if _, err := request.ParseBase(c.GeocodingBaseURL); err != nil {
		return fmt.Errorf("geocoding_base_url: %w", err)
	}
	if _, err := request.ParseBase(c.TransitBaseURL); err != nil {
		return fmt.Errorf("transit_base_url: %w", err)
	}

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("config validation failed: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s (got %v)", fe.Namespace(), fe.ActualTag(), fe.Value()))
		}
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return nil
}
