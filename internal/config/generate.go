// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# config.toml - Auto-generated
# reval configuration
# https://github.com/autobrr/reval

# Hostname / IP
#
# Default: "127.0.0.1"
#
host = "127.0.0.1"

# Port
#
# Default: 7373
#
port = 7373

# API token
#
# Required by every /api request via the X-API-Token header when set.
# Leave empty to disable authentication (not recommended outside localhost).
#
#apiToken = ""

# iaptic credentials
#
# appName and publicKey as configured at https://www.iaptic.com
#
iapticAppName = ""
iapticPublicKey = ""

# iaptic base URL override, mainly for self-hosted validators.
#
# Default: "https://validator.iaptic.com"
#
#iapticBaseUrl = ""

# Freshness window
#
# How long a terminal validation result is served from the request table
# before a new call hits the validation service again.
#
# Default: "5m"
#
#freshnessWindow = "5m"

# Retry budget for transient failures (network errors and 5xx responses).
# retryDelay doubles on every retry: 5s, 10s, 20s, ...
#
# Default: 8 retries, "5s" base delay
#
#retryCount = 8
#retryDelay = "5s"

# Request table sweep interval. Terminal entries older than ten freshness
# windows are evicted.
#
# Default: "5m"
#
#sweepInterval = "5m"

# Log level
#
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
#
logLevel = "INFO"

# Log Path
#
# Optional file logging with rotation.
#
#logPath = ""
#logMaxSize = 50
#logMaxBackups = 3

# Prometheus metrics
#
#metricsEnabled = false
#metricsHost = "127.0.0.1"
#metricsPort = 9074
#metricsBasicAuthUsers = ""

# Check for updates
#
checkForUpdates = true
`

// WriteDefaultConfig writes the annotated default config to
// <configDir>/config.toml. An existing file is never overwritten.
func WriteDefaultConfig(configDir string) (string, bool, error) {
	if configDir == "" {
		configDir = GetDefaultConfigDir()
	}

	configPath := filepath.Join(configDir, "config.toml")

	if _, err := os.Stat(configPath); err == nil {
		return configPath, false, nil
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", false, fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(configTemplate), 0o644); err != nil {
		return "", false, fmt.Errorf("failed to write config file: %w", err)
	}

	return configPath, true, nil
}
