// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package app provides the entry point for the toolhost command-line application.
package app

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/logger"
)

// NewRootCmd creates a new root command for the toolhost CLI.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "toolhost",
		DisableAutoGenTag: true,
		Short:             "toolhost serves third-party API tools to MCP clients",
		Long: `toolhost is a Model Context Protocol host. It loads the applications named in
a configuration file, authenticates them against their upstream APIs with
credentials from a pluggable store, and serves their tools over stdio, SSE or
streamable HTTP.`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				logger.Errorf("Error displaying help: %v", err)
			}
		},
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.Initialize()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the configuration file")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		logger.Errorf("Error binding config flag: %v", err)
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newToolsCmd())
	rootCmd.AddCommand(newAuthCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// FormatError renders err for standard error as "<Kind>: <message>".
// Causes are left out; they are logged at debug level where they are
// produced.
func FormatError(err error) string {
	if herr, ok := hosterr.As(err); ok {
		return fmt.Sprintf("%s: %s", herr.Kind, herr.Message)
	}
	return fmt.Sprintf("Error: %v", err)
}
