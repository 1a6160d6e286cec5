// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package tools

import (
	"fmt"
	"slices"
	"strings"

	"github.com/stacklok/toolhost/pkg/schema"
)

// toolOverrideEntry renames or redescribes one tool.
type toolOverrideEntry struct {
	ActualName          string
	OverrideName        string
	OverrideDescription string
}

// Filter restricts and renames the tools of one application before they
// are registered. Names refer to the tool names before namespacing.
//
// Filtering and overrides are kept apart so that overriding a single tool
// does not also hide every other tool.
type Filter struct {
	filterTools map[string]struct{}
	overrides   map[string]toolOverrideEntry
}

// FilterOption configures a Filter.
type FilterOption func(*Filter) error

// WithToolsFilter keeps only the named tools.
func WithToolsFilter(toolsFilter ...string) FilterOption {
	return func(f *Filter) error {
		for _, tf := range toolsFilter {
			if tf == "" {
				return fmt.Errorf("tool name cannot be empty")
			}
			f.filterTools[tf] = struct{}{}
		}
		return nil
	}
}

// WithToolsOverride renames and/or redescribes the tool actualName. An
// empty overrideName or overrideDescription leaves that field unchanged.
func WithToolsOverride(actualName, overrideName, overrideDescription string) FilterOption {
	return func(f *Filter) error {
		if actualName == "" {
			return fmt.Errorf("tool name cannot be empty")
		}
		if overrideName == "" && overrideDescription == "" {
			return fmt.Errorf("override name and description cannot both be empty")
		}
		f.overrides[actualName] = toolOverrideEntry{
			ActualName:          actualName,
			OverrideName:        overrideName,
			OverrideDescription: overrideDescription,
		}
		return nil
	}
}

// NewFilter creates a Filter. With no options it passes every tool through.
func NewFilter(opts ...FilterOption) (*Filter, error) {
	f := &Filter{
		filterTools: make(map[string]struct{}),
		overrides:   make(map[string]toolOverrideEntry),
	}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *Filter) isToolInFilter(name string) bool {
	if len(f.filterTools) == 0 {
		return true
	}
	_, ok := f.filterTools[name]
	return ok
}

// Apply returns the tools of fns that pass the filter with overrides
// applied. Filter or override entries naming tools the application does
// not provide are an error, so that typos do not silently hide tools.
func (f *Filter) Apply(fns []Func) ([]Func, error) {
	if f == nil {
		return fns, nil
	}

	seen := make(map[string]struct{}, len(fns))
	out := make([]Func, 0, len(fns))
	for _, fn := range fns {
		name := fn.Name
		if name == "" && fn.Fn != nil {
			name = schema.FuncName(fn.Fn)
		}
		seen[name] = struct{}{}
		if !f.isToolInFilter(name) {
			continue
		}
		fn.Name = name
		if o, ok := f.overrides[name]; ok {
			if o.OverrideName != "" {
				fn.Name = o.OverrideName
			}
			if o.OverrideDescription != "" {
				fn.Description = o.OverrideDescription
			}
		}
		out = append(out, fn)
	}

	var unknown []string
	for name := range f.filterTools {
		if _, ok := seen[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	for name := range f.overrides {
		if _, ok := seen[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		unknown = slices.Compact(unknown)
		return nil, fmt.Errorf("unknown tool(s) in filter: %s", strings.Join(unknown, ", "))
	}
	return out, nil
}
