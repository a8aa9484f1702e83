// SPDX-FileCopyrightText: Copyright 2026 TokenForge, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the oauth2served command-line
// application.
package app

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tokenforge/oauth2server/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "oauth2served",
	DisableAutoGenTag: true,
	Short:             "Standalone OAuth 2.0 authorization server",
	Long: `oauth2served is a standalone OAuth 2.0 authorization server built on the
tokenforge oauth2server library. It serves the token, authorize and a sample
protected endpoint over HTTP, with in-memory, Redis or SQLite storage.

It is intended for development, testing and as a wiring reference for hosts
embedding the library behind their own storage and user authentication.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the oauth2served CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	if err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.AddCommand(newServeCmd())

	// Silence printing the usage on error
	rootCmd.SilenceUsage = true

	return rootCmd
}
