// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/spf13/cobra"

	"github.com/autobrr/reval/internal/config"
)

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Write an annotated default config.toml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, created, err := config.WriteDefaultConfig(configDir)
			if err != nil {
				return err
			}

			if !created {
				cmd.Printf("Config file already exists at %s. Skipping generation.\n", path)
				return nil
			}

			cmd.Printf("Config file generated at %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Directory to write config.toml to (default: OS config dir)")

	return cmd
}
