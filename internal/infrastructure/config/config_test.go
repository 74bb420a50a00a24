package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig drops YAML content into a temp file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "client.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
platform:
  host: core.local
  port: 8443
  tls: true
  api_mode: systems
  token_delivery: query
realtime:
  keep_alive_interval: 15
  health_check_window: 25
auth:
  mock: true
logging:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Platform.Host != "core.local" {
		t.Errorf("host = %q, want core.local", cfg.Platform.Host)
	}
	if cfg.Platform.Port != 8443 || !cfg.Platform.TLS {
		t.Errorf("port/tls = %d/%v, want 8443/true", cfg.Platform.Port, cfg.Platform.TLS)
	}
	if cfg.Platform.APIMode != APIModeSystems {
		t.Errorf("api_mode = %q, want systems", cfg.Platform.APIMode)
	}
	if cfg.Platform.TokenDelivery != TokenDeliveryQuery {
		t.Errorf("token_delivery = %q, want query", cfg.Platform.TokenDelivery)
	}
	if !cfg.Auth.Mock {
		t.Error("auth.mock = false, want true")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}

	// Unset values keep their defaults.
	if cfg.Realtime.ReconnectBaseDelay != 2 || cfg.Realtime.ReconnectCapAttempts != 10 {
		t.Errorf("reconnect defaults = %d/%d, want 2/10",
			cfg.Realtime.ReconnectBaseDelay, cfg.Realtime.ReconnectCapAttempts)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Platform.Host != "localhost" || cfg.Platform.Port != 8080 {
		t.Errorf("platform = %s:%d, want localhost:8080", cfg.Platform.Host, cfg.Platform.Port)
	}
	if cfg.Platform.APIMode != APIModeControl {
		t.Errorf("api_mode = %q, want control", cfg.Platform.APIMode)
	}
	if cfg.Platform.TokenDelivery != TokenDeliveryCookie {
		t.Errorf("token_delivery = %q, want cookie", cfg.Platform.TokenDelivery)
	}
	if cfg.GetKeepAliveInterval() != 20*time.Second {
		t.Errorf("keep-alive = %v, want 20s", cfg.GetKeepAliveInterval())
	}
	if cfg.GetHealthCheckWindow() != 30*time.Second {
		t.Errorf("health window = %v, want 30s", cfg.GetHealthCheckWindow())
	}
	if cfg.GetReconnectBaseDelay() != 2*time.Second {
		t.Errorf("reconnect base = %v, want 2s", cfg.GetReconnectBaseDelay())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Load() succeeded on a missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "platform: [not a mapping\n"))
	if err == nil {
		t.Fatal("Load() succeeded on malformed YAML")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GRAYLOGIC_CLIENT_PLATFORM_HOST", "env.local")
	t.Setenv("GRAYLOGIC_CLIENT_PLATFORM_PORT", "9001")
	t.Setenv("GRAYLOGIC_CLIENT_AUTH_TOKEN", "env-token")
	t.Setenv("GRAYLOGIC_CLIENT_AUTH_MOCK", "true")
	t.Setenv("GRAYLOGIC_CLIENT_LOG_LEVEL", "error")

	cfg, err := Load(writeConfig(t, `
platform:
  host: file.local
auth:
  token: file-token
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Platform.Host != "env.local" {
		t.Errorf("host = %q, env override lost", cfg.Platform.Host)
	}
	if cfg.Platform.Port != 9001 {
		t.Errorf("port = %d, want 9001", cfg.Platform.Port)
	}
	if cfg.Auth.Token != "env-token" {
		t.Errorf("token = %q, env override lost", cfg.Auth.Token)
	}
	if !cfg.Auth.Mock {
		t.Error("auth.mock = false, env override lost")
	}
	if cfg.Logging.Level != "error" {
		t.Errorf("log level = %q, want error", cfg.Logging.Level)
	}
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty host", func(c *Config) { c.Platform.Host = "" }, "platform.host"},
		{"port too low", func(c *Config) { c.Platform.Port = 0 }, "platform.port"},
		{"port too high", func(c *Config) { c.Platform.Port = 70000 }, "platform.port"},
		{"bad api mode", func(c *Config) { c.Platform.APIMode = "rest" }, "api_mode"},
		{"bad token delivery", func(c *Config) { c.Platform.TokenDelivery = "header" }, "token_delivery"},
		{"zero keep-alive", func(c *Config) { c.Realtime.KeepAliveInterval = 0 }, "keep_alive_interval"},
		{"zero health window", func(c *Config) { c.Realtime.HealthCheckWindow = 0 }, "health_check_window"},
		{"health window not above keep-alive", func(c *Config) {
			c.Realtime.KeepAliveInterval = 30
			c.Realtime.HealthCheckWindow = 30
		}, "health_check_window must be greater"},
		{"zero backoff base", func(c *Config) { c.Realtime.ReconnectBaseDelay = 0 }, "reconnect_base_delay"},
		{"zero backoff cap", func(c *Config) { c.Realtime.ReconnectCapAttempts = 0 }, "reconnect_cap_attempts"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.Address(); got != "localhost:8080" {
		t.Errorf("Address() = %q, want localhost:8080", got)
	}
}
