// ABOUTME: Configuration loading and parsing for oura-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete oura-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Oura     OuraConfig     `yaml:"oura"`
	Database DatabaseConfig `yaml:"database"`
	Users    UsersConfig    `yaml:"users"`
	MCP      MCPConfig      `yaml:"mcp"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	TokenTTLRaw string `yaml:"token_ttl"`
}

// OuraConfig holds upstream Oura API configuration
type OuraConfig struct {
	// BaseURL overrides the Oura v2 API base URL (used in tests)
	BaseURL string `yaml:"base_url"`

	// RequestTimeout bounds individual upstream calls
	RequestTimeout time.Duration `yaml:"-"`

	RequestTimeoutRaw string `yaml:"request_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// UsersConfig holds user store behavior configuration
type UsersConfig struct {
	// SeedTestUser creates a development user at startup when true
	SeedTestUser bool `yaml:"seed_test_user"`
}

// MCPConfig holds streaming endpoint configuration
type MCPConfig struct {
	HeartbeatInterval time.Duration `yaml:"-"`

	HeartbeatIntervalRaw string `yaml:"heartbeat_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when fields are absent from the config file.
const (
	DefaultHTTPAddr          = "0.0.0.0:3000"
	DefaultTokenTTL          = 24 * time.Hour
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.parseDurations(); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts the raw duration strings into time.Duration fields.
func (c *Config) parseDurations() error {
	parse := func(name, raw string, out *time.Duration) error {
		if raw == "" {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*out = d
		return nil
	}

	if err := parse("auth.token_ttl", c.Auth.TokenTTLRaw, &c.Auth.TokenTTL); err != nil {
		return err
	}
	if err := parse("oura.request_timeout", c.Oura.RequestTimeoutRaw, &c.Oura.RequestTimeout); err != nil {
		return err
	}
	if err := parse("mcp.heartbeat_interval", c.MCP.HeartbeatIntervalRaw, &c.MCP.HeartbeatInterval); err != nil {
		return err
	}
	return nil
}

// applyDefaults fills in zero-valued fields with their defaults.
func (c *Config) applyDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = DefaultTokenTTL
	}
	if c.Oura.RequestTimeout == 0 {
		c.Oura.RequestTimeout = DefaultRequestTimeout
	}
	if c.MCP.HeartbeatInterval == 0 {
		c.MCP.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.TokenTTL < 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.MCP.HeartbeatInterval < 0 {
		return fmt.Errorf("mcp.heartbeat_interval must be positive")
	}
	return nil
}
