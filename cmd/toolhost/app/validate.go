// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stacklok/toolhost/pkg/config"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		Long: `Validate the configuration file for syntax and semantic errors.

This command checks:
- YAML, JSON or TOML syntax
- Environment variable references
- Required fields and allowed values`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig("")
			if err != nil {
				return err
			}
			return printValidation(cmd.OutOrStdout(), cfg)
		},
	}
}

func printValidation(w io.Writer, cfg *config.Config) error {
	_, err := fmt.Fprintf(w, "Configuration is valid\n  Name: %s\n  Transport: %s\n  Store: %s\n  Applications: %d\n",
		cfg.Name, cfg.Transport, cfg.Store.Type, len(cfg.Apps))
	return err
}
