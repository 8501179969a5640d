package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.vendaro/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8090
// database:
//   path: /var/lib/vendaro/support.db
// auth:
//   secret: change-me
//   token_ttl_minutes: 1440
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Port must be between 1 and 65535.

type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path *string `yaml:"path"`
}

type AuthConfig struct {
	Secret          *string `yaml:"secret"`
	TokenTTLMinutes *int    `yaml:"token_ttl_minutes"`
}

const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 8090
	DefaultDatabaseFile    = "support.db"
	DefaultTokenTTLMinutes = 24 * 60
)

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".vendaro")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.vendaro/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	// Validate
	host := cfg.Host()
	if strings.TrimSpace(host) == "" {
		return nil, "", fmt.Errorf("invalid server.host (empty) in %s", configFile)
	}

	port := cfg.Port()
	if port < 1 || port > 65535 {
		return nil, "", fmt.Errorf("invalid server.port %d in %s", port, configFile)
	}

	if cfg.TokenTTLMinutes() < 1 {
		return nil, "", fmt.Errorf("invalid auth.token_ttl_minutes %d in %s", cfg.TokenTTLMinutes(), configFile)
	}

	return cfg, configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

// DatabasePath returns the sqlite file path, defaulting to
// support.db next to the config file.
func (c *AppConfig) DatabasePath() string {
	if c != nil && c.Database.Path != nil && strings.TrimSpace(*c.Database.Path) != "" {
		return *c.Database.Path
	}
	configDir, _, err := DefaultPaths()
	if err != nil {
		return DefaultDatabaseFile
	}
	return filepath.Join(configDir, DefaultDatabaseFile)
}

// AuthSecret returns the credential signing secret. The VENDARO_AUTH_SECRET
// environment variable takes precedence over the config file.
func (c *AppConfig) AuthSecret() string {
	if v := strings.TrimSpace(os.Getenv("VENDARO_AUTH_SECRET")); v != "" {
		return v
	}
	if c != nil && c.Auth.Secret != nil {
		return strings.TrimSpace(*c.Auth.Secret)
	}
	return ""
}

func (c *AppConfig) TokenTTLMinutes() int {
	if c == nil || c.Auth.TokenTTLMinutes == nil {
		return DefaultTokenTTLMinutes
	}
	return *c.Auth.TokenTTLMinutes
}
