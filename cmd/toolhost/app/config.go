// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stacklok/toolhost/pkg/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration after environment expansion and defaults, with
client secrets masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig("")
			if err != nil {
				return err
			}
			return showConfig(cmd.OutOrStdout(), cfg, config.Format(format))
		},
	}
	cmd.Flags().StringVar(&format, "format", string(config.FormatYAML), "Output format: yaml, json or toml")
	return cmd
}

func showConfig(w io.Writer, cfg *config.Config, format config.Format) error {
	switch format {
	case config.FormatYAML, config.FormatJSON, config.FormatTOML:
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	data, err := config.Marshal(cfg.Redacted(), format)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
