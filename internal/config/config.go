// Package config loads lattice CLI configuration from file and environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

const (
	// DefaultMaxSnapshots is the default snapshot ring-buffer capacity.
	DefaultMaxSnapshots = 10

	// DefaultMaxHistory is the default event-history capacity.
	DefaultMaxHistory = 100
)

// Config holds all configuration for the lattice CLI.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Checker CheckerConfig `mapstructure:"checker"`
	Monitor MonitorConfig `mapstructure:"monitor"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// StoreConfig locates the JSON store and YAML rule files the CLI operates on.
type StoreConfig struct {
	Path      string `mapstructure:"path"`
	RulesPath string `mapstructure:"rules_path"`
}

// CheckerConfig holds integrity checker settings that rule files may omit.
type CheckerConfig struct {
	IDField       string `mapstructure:"id_field"`
	DetectOrphans bool   `mapstructure:"detect_orphans"`
	FailFast      bool   `mapstructure:"fail_fast"`
}

// MonitorConfig holds consistency monitor settings.
type MonitorConfig struct {
	CheckInterval time.Duration `mapstructure:"check_interval"`
	AutoRepair    bool          `mapstructure:"auto_repair"`
	MaxSnapshots  int           `mapstructure:"max_snapshots"`
	MaxHistory    int           `mapstructure:"max_history"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("store.path", "store.json")
	v.SetDefault("store.rules_path", "rules.yaml")

	v.SetDefault("checker.id_field", "id")
	v.SetDefault("checker.detect_orphans", false)
	v.SetDefault("checker.fail_fast", false)

	v.SetDefault("monitor.check_interval", time.Duration(0))
	v.SetDefault("monitor.auto_repair", false)
	v.SetDefault("monitor.max_snapshots", DefaultMaxSnapshots)
	v.SetDefault("monitor.max_history", DefaultMaxHistory)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(homeDir(), ".lattice"))
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("LATTICE")
	v.AutomaticEnv()
	_ = v.BindEnv("store.path", "LATTICE_STORE_PATH")
	_ = v.BindEnv("store.rules_path", "LATTICE_RULES_PATH")
	_ = v.BindEnv("logging.level", "LATTICE_LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// Config file not found is OK — use defaults + env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are set and consistent.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path must not be empty")
	}
	if c.Checker.IDField == "" {
		return fmt.Errorf("checker.id_field must not be empty")
	}
	if c.Monitor.CheckInterval < 0 {
		return fmt.Errorf("monitor.check_interval must be >= 0")
	}
	if c.Monitor.MaxSnapshots <= 0 {
		return fmt.Errorf("monitor.max_snapshots must be greater than 0")
	}
	if c.Monitor.MaxHistory <= 0 {
		return fmt.Errorf("monitor.max_history must be greater than 0")
	}
	return nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
