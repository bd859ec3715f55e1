// Package config loads resolver configuration from a YAML file and the
// environment, and can watch the file for changes so long-running embedders
// pick up base URL rotations without a restart.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/udplabs/omnikey/internal/retry"
)

// Config aggregates resolver configuration. Precedence, later wins:
// defaults, YAML file, environment.
type Config struct {
	// BaseURL is the root of the UDP identity service.
	BaseURL string `yaml:"base_url" env:"UDP_BASE_URL"`
	// Timeout bounds all network calls within one resolution.
	Timeout time.Duration `yaml:"timeout" env:"UDP_TIMEOUT"`
	// Settle is the delay between create and the first fetch attempt.
	Settle time.Duration `yaml:"settle_delay" env:"UDP_SETTLE_DELAY"`
	// RetryGaps are the waits between consecutive fetch attempts.
	RetryGaps []time.Duration `yaml:"retry_gaps" env:"UDP_RETRY_GAPS"`
	// Headers are applied verbatim to every identity service request.
	Headers map[string]string `yaml:"headers"`

	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `yaml:"level" env:"UDP_LOG_LEVEL"`
	Format string `yaml:"format" env:"UDP_LOG_FORMAT"` // json|text
}

// TelemetryConfig controls the OTLP trace export.
type TelemetryConfig struct {
	Endpoint    string            `yaml:"endpoint" env:"UDP_OTLP_ENDPOINT"`
	Insecure    bool              `yaml:"insecure" env:"UDP_OTLP_INSECURE"`
	ServiceName string            `yaml:"service_name"`
	Environment string            `yaml:"environment"`
	Headers     map[string]string `yaml:"headers"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	schedule := retry.DefaultSchedule()
	return Config{
		Timeout:   60 * time.Second,
		Settle:    schedule.Settle,
		RetryGaps: schedule.Gaps,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "omnikey",
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file, and
// the environment. An empty path skips the file layer.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- path is operator supplied at startup
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

// Validate reports the first problem that would make the resolver unusable.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required (set UDP_BASE_URL)")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must be http or https, got %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	return c.Schedule().Validate()
}

// Schedule returns the retry schedule described by the configuration.
func (c Config) Schedule() retry.Schedule {
	return retry.Schedule{Settle: c.Settle, Gaps: c.RetryGaps}
}
