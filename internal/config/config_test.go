package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "hotline.yaml", `
server:
  host: 127.0.0.1
  http_port: 9090
calling:
  connection_string: "endpoint=https://res.example.com;accesskey=a2V5"
  callback_base_url: "https://hooks.example.com"
  cognitive_services_endpoint: "https://cog.example.com"
  voice_name: "en-US-JennyNeural"
  outbound:
    target_number: "+13134445555"
    caller_id_number: "+17349042053"
forecast:
  api_key: "accu-key"
  timeout: 5s
session:
  sweep_schedule: "*/10 * * * *"
  max_idle: 1h
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.HTTPPort != 9090 {
		t.Fatalf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Calling.VoiceName != "en-US-JennyNeural" {
		t.Fatalf("unexpected voice %q", cfg.Calling.VoiceName)
	}
	if cfg.Calling.Outbound.TargetNumber != "+13134445555" {
		t.Fatalf("unexpected outbound target %q", cfg.Calling.Outbound.TargetNumber)
	}
	if cfg.Forecast.Timeout != 5*time.Second {
		t.Fatalf("unexpected forecast timeout %v", cfg.Forecast.Timeout)
	}
	if cfg.Session.SweepSchedule != "*/10 * * * *" || cfg.Session.MaxIdle != time.Hour {
		t.Fatalf("unexpected session config %+v", cfg.Session)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, "hotline.yaml", `
calling:
  connection_string: "endpoint=https://res.example.com;accesskey=a2V5"
  callback_base_url: "https://hooks.example.com"
forecast:
  api_key: "accu-key"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.HTTPPort != 8080 {
		t.Fatalf("unexpected server defaults %+v", cfg.Server)
	}
	if cfg.Calling.VoiceName != "en-US-NancyNeural" {
		t.Fatalf("unexpected default voice %q", cfg.Calling.VoiceName)
	}
	if cfg.Forecast.BaseURL != "http://dataservice.accuweather.com" {
		t.Fatalf("unexpected default base URL %q", cfg.Forecast.BaseURL)
	}
	if cfg.Forecast.Timeout != 10*time.Second {
		t.Fatalf("unexpected default timeout %v", cfg.Forecast.Timeout)
	}
	if cfg.Session.SweepSchedule != "*/5 * * * *" || cfg.Session.MaxIdle != 2*time.Hour {
		t.Fatalf("unexpected session defaults %+v", cfg.Session)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Fatalf("unexpected logging defaults %+v", cfg.Logging)
	}
}

func TestLoad_ExpandsEnvironmentVariables(t *testing.T) {
	t.Setenv("TEST_ACS_CONNECTION_STRING", "endpoint=https://res.example.com;accesskey=a2V5")
	t.Setenv("TEST_ACCUWEATHER_API_KEY", "accu-key")

	path := writeConfig(t, "hotline.yaml", `
calling:
  connection_string: "${TEST_ACS_CONNECTION_STRING}"
  callback_base_url: "https://hooks.example.com"
forecast:
  api_key: "${TEST_ACCUWEATHER_API_KEY}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Calling.ConnectionString != "endpoint=https://res.example.com;accesskey=a2V5" {
		t.Fatalf("connection string not expanded: %q", cfg.Calling.ConnectionString)
	}
	if cfg.Forecast.APIKey != "accu-key" {
		t.Fatalf("api key not expanded: %q", cfg.Forecast.APIKey)
	}
}

func TestLoad_JSON5(t *testing.T) {
	path := writeConfig(t, "hotline.json5", `{
	// development overrides
	server: {http_port: 9191},
	calling: {
		connection_string: "endpoint=https://res.example.com;accesskey=a2V5",
		callback_base_url: "https://hooks.example.com",
	},
	forecast: {api_key: "accu-key"},
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.HTTPPort != 9191 {
		t.Fatalf("unexpected port %d", cfg.Server.HTTPPort)
	}
	if cfg.Calling.CallbackBaseURL != "https://hooks.example.com" {
		t.Fatalf("unexpected callback base URL %q", cfg.Calling.CallbackBaseURL)
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}

	path := writeConfig(t, "hotline.yaml", "calling: [not a mapping")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestValidate(t *testing.T) {
	valid := &Config{
		Calling: CallingConfig{
			ConnectionString: "endpoint=https://res.example.com;accesskey=a2V5",
			CallbackBaseURL:  "https://hooks.example.com",
		},
		Forecast: ForecastConfig{APIKey: "accu-key"},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing connection string", func(c *Config) { c.Calling.ConnectionString = "" }, "connection_string"},
		{"missing callback base url", func(c *Config) { c.Calling.CallbackBaseURL = " " }, "callback_base_url"},
		{"missing forecast api key", func(c *Config) { c.Forecast.APIKey = "" }, "api_key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}
