// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/stacklok/toolhost/cmd/toolhost/app/ui"
	"github.com/stacklok/toolhost/pkg/config"
	"github.com/stacklok/toolhost/pkg/loader"
	"github.com/stacklok/toolhost/pkg/tools"
)

const formatTable = "table"

func newToolsCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the configuration exposes",
		Long: `Load every configured application and list its tools without starting a
transport.

Formats:
  table     name and description (default)
  mcp       the tools/list payload
  function  function-calling descriptors
  adapter   agent framework adapter descriptors`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig("")
			if err != nil {
				return err
			}
			return listTools(cmd.Context(), cmd.OutOrStdout(), cfg, format)
		},
	}
	cmd.Flags().StringVar(&format, "format", formatTable, "Output format: table, mcp, function or adapter")
	return cmd
}

func listTools(ctx context.Context, w io.Writer, cfg *config.Config, format string, loaderOpts ...loader.Option) error {
	var listFormat tools.Format
	if format != formatTable {
		f, err := tools.ParseFormat(format)
		if err != nil {
			return err
		}
		listFormat = f
	}

	registry, res, err := loadRegistry(ctx, cfg, nil, loaderOpts...)
	if err != nil {
		return err
	}
	defer closeStore(res.Store)

	if format == formatTable {
		return ui.RenderToolsTable(w, registry.Descriptors())
	}

	listing, err := registry.List(listFormat)
	if err != nil {
		return err
	}
	var payload any = listing
	if listFormat == tools.FormatMCP {
		payload = map[string]any{"tools": listing}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		return fmt.Errorf("failed to encode tool listing: %w", err)
	}
	return nil
}
