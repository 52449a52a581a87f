package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration loaded from TOML.
// Everything beyond this minimal surface lives in the settings table
// instead, so it can be changed at runtime without a restart.
type Config struct {
	Host       string           `toml:"host"`
	Port       string           `toml:"port"`
	Database   DatabaseConfig   `toml:"database"`
	SecretsURL string           `toml:"secrets_url,omitempty"`
	BadWords   string           `toml:"bad_words,omitempty"`
	Logging    LoggingConfig    `toml:"logging"`
	Session    SessionConfig    `toml:"session"`
	Statuspage StatuspageConfig `toml:"statuspage"`
}

// DatabaseConfig points at the single file-backed relational store.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig drives the logrus setup shared by every long-running
// component.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// SessionConfig carries the secret the auth-session cookie's AEAD key
// is derived from (PBKDF2-HMAC-SHA256, see internal/session).
type SessionConfig struct {
	Secret string `toml:"secret"`
}

// StatuspageConfig configures the bot's minimal health endpoint and its
// optional ngrok tunnel.
type StatuspageConfig struct {
	Enabled bool        `toml:"enabled"`
	Addr    string      `toml:"addr"`
	Ngrok   NgrokConfig `toml:"ngrok"`
}

// NgrokConfig mirrors the original tunnel options, trimmed to what the
// status page actually uses.
type NgrokConfig struct {
	Enabled   bool   `toml:"enabled"`
	AuthToken string `toml:"auth_token"`
	Domain    string `toml:"domain"`
}

// DefaultConfig returns a configuration populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host: "0.0.0.0",
		Port: "8080",
		Database: DatabaseConfig{
			Path: "./oxidizebot.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Session: SessionConfig{},
		Statuspage: StatuspageConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8000",
			Ngrok: NgrokConfig{
				Enabled: false,
			},
		},
	}
}

// LoadConfig loads configuration from a TOML file or creates a new file
// with defaults if one does not yet exist. It validates resulting
// values.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
		return cfg, nil
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// SaveToFile saves the configuration to a TOML file (overwriting
// existing).
func (c *Config) SaveToFile(configPath string) error {
	dir := filepath.Dir(configPath)
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	header := "# OxidizeBot configuration. Everything else lives in the\n" +
		"# settings table and can be changed without a restart.\n\n"
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.Port == "" {
		return fmt.Errorf("port cannot be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	if c.Statuspage.Ngrok.Enabled && c.Statuspage.Ngrok.AuthToken == "" {
		return fmt.Errorf("statuspage ngrok auth token cannot be empty when the tunnel is enabled")
	}

	return nil
}

// GetAddress returns the host:port string for listening.
func (c *Config) GetAddress() string {
	return c.Host + ":" + c.Port
}
