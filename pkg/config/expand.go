// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"sort"
	"strings"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
)

// LookupFunc resolves an environment variable.
type LookupFunc func(name string) (string, bool)

var envName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ExpandString replaces ${NAME} and ${NAME:-default} references in s. $$
// yields a literal $. A lone $ not followed by { or $ is kept as is.
func ExpandString(s string, lookup LookupFunc) (string, error) {
	if !strings.Contains(s, "$") {
		return s, nil
	}
	if lookup == nil {
		lookup = os.LookupEnv
	}

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '$' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		switch s[i+1] {
		case '$':
			b.WriteByte('$')
			i++
		case '{':
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated reference in %q", truncate(s))
			}
			ref := s[i+2 : i+2+end]
			name, def, hasDef := strings.Cut(ref, ":-")
			if !envName.MatchString(name) {
				return "", fmt.Errorf("invalid variable name %q", name)
			}
			v, ok := lookup(name)
			switch {
			case ok:
				b.WriteString(v)
			case hasDef:
				b.WriteString(def)
			default:
				return "", &unresolvedError{name: name}
			}
			i += 2 + end
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

type unresolvedError struct{ name string }

func (e *unresolvedError) Error() string {
	return fmt.Sprintf("environment variable %s is not set", e.name)
}

func truncate(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}

// Expand walks a decoded document and expands every string leaf. All
// failures are collected into one ConfigurationError whose details list the
// offending paths, such as apps[0].integration.client_secret.
func Expand(doc any, lookup LookupFunc) (any, error) {
	e := &expander{lookup: lookup}
	out := e.walk(doc, "")
	if len(e.paths) > 0 {
		sort.Strings(e.paths)
		sort.Strings(e.messages)
		return nil, hosterr.NewConfigurationError(
			"failed to expand environment references: "+strings.Join(e.messages, "; "),
			e.paths, nil)
	}
	return out, nil
}

type expander struct {
	lookup   LookupFunc
	paths    []string
	messages []string
}

func (e *expander) walk(v any, path string) any {
	switch t := v.(type) {
	case string:
		s, err := ExpandString(t, e.lookup)
		if err != nil {
			e.paths = append(e.paths, pathOrRoot(path))
			e.messages = append(e.messages, fmt.Sprintf("%s: %v", pathOrRoot(path), err))
			return t
		}
		return s
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		out := make(map[string]any, len(t))
		for _, k := range keys {
			out[k] = e.walk(t[k], joinKey(path, k))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = e.walk(item, fmt.Sprintf("%s[%d]", path, i))
		}
		return out
	default:
		return v
	}
}

func joinKey(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func pathOrRoot(path string) string {
	if path == "" {
		return "(root)"
	}
	return path
}
