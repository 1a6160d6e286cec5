// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"fmt"
	"strings"
)

// HeaderTemplates maps header names to value templates. It decodes from an
// object, a single "Name: value" string, or a list of such strings.
type HeaderTemplates map[string]string

// UnmarshalJSON implements json.Unmarshaler.
func (h *HeaderTemplates) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err == nil {
		*h = m
		return nil
	}

	var list []string
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		list = []string{single}
	} else if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("headers must be an object, a string or a list of strings")
	}

	out := make(HeaderTemplates, len(list))
	for _, tmpl := range list {
		name, value, ok := strings.Cut(tmpl, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return fmt.Errorf("header template %q must have the form 'Name: value'", tmpl)
		}
		out[name] = strings.TrimSpace(value)
	}
	*h = out
	return nil
}
