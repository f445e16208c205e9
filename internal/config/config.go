// Package config loads and validates the hotline service configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json5 "github.com/yosuke-furukawa/json5/encoding/json5"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for the hotline service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Calling  CallingConfig  `yaml:"calling"`
	Forecast ForecastConfig `yaml:"forecast"`
	Session  SessionConfig  `yaml:"session"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

// CallingConfig configures the call automation platform connection.
type CallingConfig struct {
	// ConnectionString is the platform connection string in
	// "endpoint=https://...;accesskey=..." form.
	ConnectionString string `yaml:"connection_string"`

	// CallbackBaseURL is the externally reachable base URL that lifecycle
	// webhooks are delivered to (e.g. an ngrok tunnel during development).
	CallbackBaseURL string `yaml:"callback_base_url"`

	// CognitiveServicesEndpoint enables speech recognition and TTS on calls.
	CognitiveServicesEndpoint string `yaml:"cognitive_services_endpoint"`

	// VoiceName selects the TTS voice used for prompts and responses.
	VoiceName string `yaml:"voice_name"`

	Outbound OutboundConfig `yaml:"outbound"`
}

// OutboundConfig holds the fixed destination/caller-id pair used when
// placing an outbound call.
type OutboundConfig struct {
	TargetNumber   string `yaml:"target_number"`
	CallerIDNumber string `yaml:"caller_id_number"`
}

// ForecastConfig configures the weather data service.
type ForecastConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// SessionConfig controls call session housekeeping.
type SessionConfig struct {
	// SweepSchedule is a cron expression for the stale-session sweep.
	SweepSchedule string `yaml:"sweep_schedule"`

	// MaxIdle is how long a session may sit without events before the
	// sweep evicts it. A call cannot live forever, so leaked sessions
	// are reclaimed here rather than on a per-call timer.
	MaxIdle time.Duration `yaml:"max_idle"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

type TracingConfig struct {
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Load reads and parses the configuration file. YAML is the primary
// format; files with a .json or .json5 extension are parsed as JSON5.
// Environment variables in ${VAR} form are expanded before parsing.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".json5":
		var raw map[string]any
		if err := json5.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		normalized, err := yaml.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to normalize config: %w", err)
		}
		if err := yaml.Unmarshal(normalized, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.HTTPPort == 0 {
		cfg.Server.HTTPPort = 8080
	}
	if cfg.Calling.VoiceName == "" {
		cfg.Calling.VoiceName = "en-US-NancyNeural"
	}
	if cfg.Forecast.BaseURL == "" {
		cfg.Forecast.BaseURL = "http://dataservice.accuweather.com"
	}
	if cfg.Forecast.Timeout == 0 {
		cfg.Forecast.Timeout = 10 * time.Second
	}
	if cfg.Session.SweepSchedule == "" {
		cfg.Session.SweepSchedule = "*/5 * * * *"
	}
	if cfg.Session.MaxIdle == 0 {
		cfg.Session.MaxIdle = 2 * time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// Validate checks that required fields are present.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Calling.ConnectionString) == "" {
		return fmt.Errorf("calling.connection_string is required")
	}
	if strings.TrimSpace(c.Calling.CallbackBaseURL) == "" {
		return fmt.Errorf("calling.callback_base_url is required")
	}
	if strings.TrimSpace(c.Forecast.APIKey) == "" {
		return fmt.Errorf("forecast.api_key is required")
	}
	return nil
}
