/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/ssargent/boarddb/pkg/board"
	"gopkg.in/yaml.v3"
)

// Storage backends
const (
	BackendPaged  = "paged"
	BackendPebble = "pebble"
)

const envPrefix = "BOARDDB"

// Config represents the boarddb configuration
type Config struct {
	DataDir    string       `yaml:"data_dir" mapstructure:"data_dir"`
	Backend    string       `yaml:"backend" mapstructure:"backend"`
	Port       int          `yaml:"port" mapstructure:"port"`
	Bind       string       `yaml:"bind" mapstructure:"bind"`
	SyncWrites bool         `yaml:"sync_writes" mapstructure:"sync_writes"`
	Logging    Logging      `yaml:"logging" mapstructure:"logging"`
	Limits     board.Limits `yaml:"limits" mapstructure:"limits"`
}

// Logging contains logging configuration
type Logging struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir:    "./data",
		Backend:    BackendPaged,
		Port:       8080,
		Bind:       "127.0.0.1",
		SyncWrites: true,
		Logging: Logging{
			Level: "info",
		},
	}
}

// Validate checks that the configuration can be used to open a store
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New("data_dir must not be empty")
	}
	switch c.Backend {
	case BackendPaged, BackendPebble:
	default:
		return fmt.Errorf("unknown backend %q (want %s or %s)", c.Backend, BackendPaged, BackendPebble)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Limits.MaxTitle < 0 || c.Limits.MaxBody < 0 || c.Limits.MaxAttachmentURL < 0 {
		return errors.New("limits must not be negative")
	}
	return nil
}

// Load resolves configuration from defaults, the optional file at configPath
// and BOARDDB_* environment variables, in increasing precedence. A missing
// file is not an error.
func Load(logger *zerolog.Logger, configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("backend", cfg.Backend)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("bind", cfg.Bind)
	v.SetDefault("sync_writes", cfg.SyncWrites)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("limits.max_title", 0)
	v.SetDefault("limits.max_body", 0)
	v.SetDefault("limits.max_attachment_url", 0)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			if logger != nil {
				logger.Debug().Str("path", configPath).Msg("no config file, using defaults")
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}

// LoadConfig loads configuration from the specified YAML file only
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", configPath)
	}

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to the specified path
func SaveConfig(config *Config, configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// BootstrapConfig writes a default configuration, pointing at dataDir when given
func BootstrapConfig(configPath string, dataDir string) (*Config, error) {
	config := DefaultConfig()
	if dataDir != "" {
		config.DataDir = dataDir
	}

	if err := SaveConfig(config, configPath); err != nil {
		return nil, fmt.Errorf("failed to save bootstrap config: %w", err)
	}

	return config, nil
}

// GetDefaultConfigPath returns the default configuration path for the current platform
func GetDefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./boarddb.yaml"
	}

	// ~/.config/boarddb/config.yaml on Linux and macOS
	return filepath.Join(homeDir, ".config", "boarddb", "config.yaml")
}

// ConfigExists checks if a configuration file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return !os.IsNotExist(err)
}
