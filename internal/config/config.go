// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const envPrefix = "REVAL_"

// Config holds all runtime settings.
type Config struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	APIToken string `mapstructure:"apiToken"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	IapticAppName   string `mapstructure:"iapticAppName"`
	IapticPublicKey string `mapstructure:"iapticPublicKey"`
	IapticBaseURL   string `mapstructure:"iapticBaseUrl"`

	FreshnessWindow time.Duration `mapstructure:"freshnessWindow"`
	RetryCount      uint          `mapstructure:"retryCount"`
	RetryDelay      time.Duration `mapstructure:"retryDelay"`
	SweepInterval   time.Duration `mapstructure:"sweepInterval"`

	MetricsEnabled        bool   `mapstructure:"metricsEnabled"`
	MetricsHost           string `mapstructure:"metricsHost"`
	MetricsPort           int    `mapstructure:"metricsPort"`
	MetricsBasicAuthUsers string `mapstructure:"metricsBasicAuthUsers"`

	CheckForUpdates bool `mapstructure:"checkForUpdates"`
}

// AppConfig wraps Config with the viper instance that loaded it so settings
// can be reloaded at runtime.
type AppConfig struct {
	Config *Config

	viper    *viper.Viper
	configMu sync.Mutex
}

// New loads configuration from the given directory (or the default config
// dir when empty), applying defaults and environment overrides.
func New(configDir string) (*AppConfig, error) {
	c := &AppConfig{
		viper: viper.New(),
	}

	c.defaults()

	if configDir == "" {
		configDir = GetDefaultConfigDir()
	}

	c.viper.SetConfigName("config")
	c.viper.SetConfigType("toml")
	c.viper.AddConfigPath(configDir)

	c.viper.SetEnvPrefix(strings.TrimSuffix(envPrefix, "_"))
	c.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.viper.AutomaticEnv()

	if err := c.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Debug().Str("configDir", configDir).Msg("No config file found, using defaults")
	}

	cfg := &Config{}
	if err := c.viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	c.Config = cfg

	c.watchConfig()

	return c, nil
}

func (c *AppConfig) defaults() {
	c.viper.SetDefault("host", "127.0.0.1")
	c.viper.SetDefault("port", 7373)
	c.viper.SetDefault("apiToken", "")

	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("logMaxSize", 50)
	c.viper.SetDefault("logMaxBackups", 3)

	c.viper.SetDefault("iapticAppName", "")
	c.viper.SetDefault("iapticPublicKey", "")
	c.viper.SetDefault("iapticBaseUrl", "")

	c.viper.SetDefault("freshnessWindow", 5*time.Minute)
	c.viper.SetDefault("retryCount", 8)
	c.viper.SetDefault("retryDelay", 5*time.Second)
	c.viper.SetDefault("sweepInterval", 5*time.Minute)

	c.viper.SetDefault("metricsEnabled", false)
	c.viper.SetDefault("metricsHost", "127.0.0.1")
	c.viper.SetDefault("metricsPort", 9074)
	c.viper.SetDefault("metricsBasicAuthUsers", "")

	c.viper.SetDefault("checkForUpdates", true)
}

// watchConfig reloads dynamic settings (currently the log level) when the
// config file changes on disk.
func (c *AppConfig) watchConfig() {
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		c.configMu.Lock()
		defer c.configMu.Unlock()

		cfg := &Config{}
		if err := c.viper.Unmarshal(cfg); err != nil {
			log.Error().Err(err).Msg("Failed to reload config")
			return
		}

		if cfg.LogLevel != c.Config.LogLevel {
			c.Config.LogLevel = cfg.LogLevel
			setLogLevel(cfg.LogLevel)
			log.Info().Str("logLevel", cfg.LogLevel).Msg("Log level updated")
		}
	})
	c.viper.WatchConfig()
}

// GetDefaultConfigDir returns the platform config directory for reval.
func GetDefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "reval")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "reval")
}
