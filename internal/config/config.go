// Package config manages OVC configuration and the .ovc directory
// structure. It handles loading, saving, and initializing the repository
// configuration.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	OVCDir       = ".ovc"
	ConfigFile   = "config"
	RegistryFile = "registry.db"
	SnapshotFile = "snapshots.db"
)

// Config represents the OVC configuration
type Config struct {
	ProtectedBranches   []string `toml:"protected_branches"`
	MergeTimeoutSeconds int      `toml:"merge_timeout_seconds"`
	MaxRetries          int      `toml:"max_retries"`
	LogLevel            string   `toml:"log_level"`
	LogFormat           string   `toml:"log_format"` // "text" or "json"
	path                string   // path to .ovc directory
}

// FindRoot finds the .ovc directory by walking up from the current
// directory
func FindRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		ovcPath := filepath.Join(dir, OVCDir)
		if info, err := os.Stat(ovcPath); err == nil && info.IsDir() {
			return ovcPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not an ovc repository (or any parent up to root)")
		}
		dir = parent
	}
}

// Load loads the configuration from the .ovc directory
func Load() (*Config, error) {
	ovcPath, err := FindRoot()
	if err != nil {
		return nil, err
	}
	return LoadFrom(ovcPath)
}

// LoadFrom loads the configuration from a specific .ovc directory
func LoadFrom(ovcPath string) (*Config, error) {
	configPath := filepath.Join(ovcPath, ConfigFile)
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.path = ovcPath
	return &cfg, nil
}

// Save saves the configuration to disk
func (c *Config) Save() error {
	configPath := filepath.Join(c.path, ConfigFile)
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// OVCPath returns the path to the .ovc directory
func (c *Config) OVCPath() string {
	return c.path
}

// RegistryPath returns the path to the branch registry database
func (c *Config) RegistryPath() string {
	return filepath.Join(c.path, RegistryFile)
}

// SnapshotPath returns the path to the snapshot database
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.path, SnapshotFile)
}

// MergeTimeout returns the configured merge timeout as a duration.
func (c *Config) MergeTimeout() time.Duration {
	if c.MergeTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.MergeTimeoutSeconds) * time.Second
}

// NewLogger builds a slog.Logger honoring the configured level and format.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	var level slog.Level
	switch c.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Initialize creates a new .ovc directory with initial configuration
func Initialize() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}

	ovcPath := filepath.Join(cwd, OVCDir)
	if _, err := os.Stat(ovcPath); err == nil {
		return nil, fmt.Errorf("ovc repository already initialized at %s", ovcPath)
	}

	if err := os.MkdirAll(ovcPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s directory: %w", OVCDir, err)
	}

	cfg := &Config{
		ProtectedBranches:   []string{"main"},
		MergeTimeoutSeconds: 60,
		MaxRetries:          3,
		LogLevel:            "info",
		LogFormat:           "text",
		path:                ovcPath,
	}

	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}
