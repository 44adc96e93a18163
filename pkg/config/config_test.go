package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ssargent/boarddb/pkg/board"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "./data", config.DataDir)
	assert.Equal(t, BackendPaged, config.Backend)
	assert.Equal(t, 8080, config.Port)
	assert.Equal(t, "127.0.0.1", config.Bind)
	assert.True(t, config.SyncWrites)
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, board.Limits{}, config.Limits)
	assert.NoError(t, config.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"unknown backend", func(c *Config) { c.Backend = "bitcask" }},
		{"port zero", func(c *Config) { c.Port = 0 }},
		{"port too large", func(c *Config) { c.Port = 70000 }},
		{"negative limit", func(c *Config) { c.Limits.MaxBody = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	expected := &Config{
		DataDir:    "/custom/data",
		Backend:    BackendPebble,
		Port:       9000,
		Bind:       "0.0.0.0",
		SyncWrites: false,
		Logging:    Logging{Level: "debug"},
		Limits:     board.Limits{MaxTitle: 100, MaxBody: 500, MaxAttachmentURL: 200},
	}
	require.NoError(t, SaveConfig(expected, configPath))

	info, err := os.Stat(configPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, expected, loaded)

	_, err = LoadConfig(filepath.Join(tmpDir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("port: [not a number"), 0600))

	_, err := LoadConfig(configPath)
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Run("defaults without file", func(t *testing.T) {
		cfg, err := Load(nil, filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		data, err := yaml.Marshal(map[string]any{
			"data_dir": "/srv/board",
			"port":     9090,
			"limits":   map[string]int{"max_title": 64},
		})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(configPath, data, 0600))

		cfg, err := Load(nil, configPath)
		require.NoError(t, err)
		assert.Equal(t, "/srv/board", cfg.DataDir)
		assert.Equal(t, 9090, cfg.Port)
		assert.Equal(t, 64, cfg.Limits.MaxTitle)
		assert.Equal(t, BackendPaged, cfg.Backend)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, SaveConfig(DefaultConfig(), configPath))

		t.Setenv("BOARDDB_BACKEND", "pebble")
		t.Setenv("BOARDDB_LOGGING_LEVEL", "debug")
		t.Setenv("BOARDDB_PORT", "7000")

		cfg, err := Load(nil, configPath)
		require.NoError(t, err)
		assert.Equal(t, BackendPebble, cfg.Backend)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Equal(t, 7000, cfg.Port)
	})
}

func TestBootstrapConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	assert.False(t, ConfigExists(configPath))

	cfg, err := BootstrapConfig(configPath, "/var/lib/boarddb")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/boarddb", cfg.DataDir)
	assert.True(t, ConfigExists(configPath))

	loaded, err := LoadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestGetDefaultConfigPath(t *testing.T) {
	path := GetDefaultConfigPath()
	assert.Equal(t, "config.yaml", filepath.Base(path))
}
