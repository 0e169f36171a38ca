// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ApplyLogConfig configures the global logger from the current settings.
// Console output always stays on; when a log path is set, a size-rotated
// file writer is added alongside it.
func (c *AppConfig) ApplyLogConfig() error {
	setLogLevel(c.Config.LogLevel)

	writer, err := c.buildLogWriter()
	if err != nil {
		return err
	}

	log.Logger = log.Logger.Output(writer)
	return nil
}

func (c *AppConfig) buildLogWriter() (io.Writer, error) {
	console := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}

	if c.Config.LogPath == "" {
		return console, nil
	}

	dir := filepath.Dir(c.Config.LogPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	maxSize := c.Config.LogMaxSize
	if maxSize <= 0 {
		maxSize = 50
	}
	maxBackups := c.Config.LogMaxBackups
	if maxBackups < 0 {
		maxBackups = 0
	}

	rotator := &lumberjack.Logger{
		Filename:   c.Config.LogPath,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}

	return io.MultiWriter(console, rotator), nil
}

func setLogLevel(level string) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "TRACE":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "DEBUG":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "INFO":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "WARN":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
