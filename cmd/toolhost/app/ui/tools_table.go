// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package ui renders command output for terminals.
package ui

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/stacklok/toolhost/pkg/tools"
)

const maxDescriptionWidth = 80

// RenderToolsTable renders one row per tool with its required arguments.
func RenderToolsTable(w io.Writer, descriptors []tools.Descriptor) error {
	if len(descriptors) == 0 {
		_, err := fmt.Fprintln(w, "No tools are available.")
		return err
	}

	headers := []string{"Tool", "Arguments", "Description"}
	table := tablewriter.NewWriter(w)
	table.Options(
		tablewriter.WithHeader(headers),
		tablewriter.WithRendition(
			tw.Rendition{
				Borders: tw.Border{
					Left:   tw.State(1),
					Top:    tw.State(1),
					Right:  tw.State(1),
					Bottom: tw.State(1),
				},
			},
		),
		tablewriter.WithAlignment(tw.MakeAlign(len(headers), tw.AlignLeft)),
	)

	for _, d := range descriptors {
		if err := table.Append([]string{
			d.Name,
			strings.Join(arguments(d.InputSchema), ", "),
			summary(d.Description),
		}); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

// arguments lists the properties of an input schema, marking required ones
// with an asterisk.
func arguments(schema map[string]any) []string {
	props, _ := schema["properties"].(map[string]any)
	required := map[string]bool{}
	switch req := schema["required"].(type) {
	case []string:
		for _, r := range req {
			required[r] = true
		}
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	slices.Sort(names)
	for i, name := range names {
		if required[name] {
			names[i] = name + "*"
		}
	}
	return names
}

// summary returns the first line of a description, truncated for display.
func summary(description string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(description), "\n")
	if r := []rune(line); len(r) > maxDescriptionWidth {
		return string(r[:maxDescriptionWidth-3]) + "..."
	}
	return line
}
