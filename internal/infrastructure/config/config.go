package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Gray Logic client.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Platform PlatformConfig `yaml:"platform"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// PlatformConfig describes how to reach the Gray Logic Core installation.
type PlatformConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`

	// APIMode selects the realtime route: "control" for the dedicated
	// control socket, "systems" for the systems-control route.
	APIMode string `yaml:"api_mode"`

	// TokenDelivery selects how the bearer token reaches the socket:
	// "cookie" (default) or "query" for deployments without cookie support.
	TokenDelivery string `yaml:"token_delivery"`
}

// RealtimeConfig tunes the control-socket state machine.
type RealtimeConfig struct {
	// KeepAliveInterval is the seconds between liveness pings.
	KeepAliveInterval int `yaml:"keep_alive_interval"`
	// HealthCheckWindow is the seconds of silence after a ping before the
	// connection is declared unhealthy.
	HealthCheckWindow int `yaml:"health_check_window"`
	// ReconnectBaseDelay is the seconds multiplied by the consecutive
	// failure count (capped) to produce the reconnect backoff.
	ReconnectBaseDelay int `yaml:"reconnect_base_delay"`
	// ReconnectCapAttempts bounds the backoff multiplier.
	ReconnectCapAttempts int `yaml:"reconnect_cap_attempts"`
}

// AuthConfig contains client credential settings.
type AuthConfig struct {
	// Token is the bearer token presented to the control socket. Prefer
	// the GRAYLOGIC_CLIENT_AUTH_TOKEN environment variable over the file.
	Token string `yaml:"token"`
	// Mock switches the client onto the in-memory transport.
	Mock bool `yaml:"mock"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// API mode values.
const (
	APIModeControl = "control"
	APIModeSystems = "systems"
)

// Token delivery values.
const (
	TokenDeliveryCookie = "cookie"
	TokenDeliveryQuery  = "query"
)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRAYLOGIC_CLIENT_SECTION_KEY
// For example: GRAYLOGIC_CLIENT_PLATFORM_HOST, GRAYLOGIC_CLIENT_AUTH_TOKEN
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Platform: PlatformConfig{
			Host:          "localhost",
			Port:          8080,
			APIMode:       APIModeControl,
			TokenDelivery: TokenDeliveryCookie,
		},
		Realtime: RealtimeConfig{
			KeepAliveInterval:    20,
			HealthCheckWindow:    30,
			ReconnectBaseDelay:   2,
			ReconnectCapAttempts: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRAYLOGIC_CLIENT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Platform
	if v := os.Getenv("GRAYLOGIC_CLIENT_PLATFORM_HOST"); v != "" {
		cfg.Platform.Host = v
	}
	if v := os.Getenv("GRAYLOGIC_CLIENT_PLATFORM_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Platform.Port = port
		}
	}
	if v := os.Getenv("GRAYLOGIC_CLIENT_PLATFORM_TLS"); v != "" {
		cfg.Platform.TLS = strings.EqualFold(v, "true") || v == "1"
	}

	// Auth - token (IMPORTANT: prefer this over a token in the file)
	if v := os.Getenv("GRAYLOGIC_CLIENT_AUTH_TOKEN"); v != "" {
		cfg.Auth.Token = v
	}
	if v := os.Getenv("GRAYLOGIC_CLIENT_AUTH_MOCK"); v != "" {
		cfg.Auth.Mock = strings.EqualFold(v, "true") || v == "1"
	}

	// Logging
	if v := os.Getenv("GRAYLOGIC_CLIENT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Platform.Host == "" {
		errs = append(errs, "platform.host is required")
	}
	if c.Platform.Port < 1 || c.Platform.Port > 65535 {
		errs = append(errs, "platform.port must be between 1 and 65535")
	}
	if c.Platform.APIMode != APIModeControl && c.Platform.APIMode != APIModeSystems {
		errs = append(errs, `platform.api_mode must be "control" or "systems"`)
	}
	if c.Platform.TokenDelivery != TokenDeliveryCookie && c.Platform.TokenDelivery != TokenDeliveryQuery {
		errs = append(errs, `platform.token_delivery must be "cookie" or "query"`)
	}

	if c.Realtime.KeepAliveInterval < 1 {
		errs = append(errs, "realtime.keep_alive_interval must be at least 1 second")
	}
	if c.Realtime.HealthCheckWindow < 1 {
		errs = append(errs, "realtime.health_check_window must be at least 1 second")
	}
	if c.Realtime.HealthCheckWindow <= c.Realtime.KeepAliveInterval {
		// Only pings re-arm the health timer; a window no longer than the
		// ping interval would tear down every healthy connection.
		errs = append(errs, "realtime.health_check_window must be greater than keep_alive_interval")
	}
	if c.Realtime.ReconnectBaseDelay < 1 {
		errs = append(errs, "realtime.reconnect_base_delay must be at least 1 second")
	}
	if c.Realtime.ReconnectCapAttempts < 1 {
		errs = append(errs, "realtime.reconnect_cap_attempts must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Address returns the platform host:port pair.
func (c *Config) Address() string {
	return c.Platform.Host + ":" + strconv.Itoa(c.Platform.Port)
}

// GetKeepAliveInterval returns the keep-alive interval as a Duration.
func (c *Config) GetKeepAliveInterval() time.Duration {
	return time.Duration(c.Realtime.KeepAliveInterval) * time.Second
}

// GetHealthCheckWindow returns the health-check window as a Duration.
func (c *Config) GetHealthCheckWindow() time.Duration {
	return time.Duration(c.Realtime.HealthCheckWindow) * time.Second
}

// GetReconnectBaseDelay returns the reconnect base delay as a Duration.
func (c *Config) GetReconnectBaseDelay() time.Duration {
	return time.Duration(c.Realtime.ReconnectBaseDelay) * time.Second
}
