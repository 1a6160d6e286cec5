// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
)

// TypeCoercer coerces values to their expected types.
// Implementations return the coerced value, or the original if coercion fails.
type TypeCoercer interface {
	TryCoerce(value any) any
}

// MakeCoercer parses a raw JSON Schema map into a TypeCoercer.
// Always returns a valid TypeCoercer; for nil, empty, or unknown schema
// types it returns a passthrough coercer that returns values unchanged.
func MakeCoercer(raw map[string]any) TypeCoercer {
	if len(raw) == 0 {
		return passthroughCoercer{}
	}

	schemaType, _ := raw["type"].(string)

	switch schemaType {
	case "object":
		return makeObjectCoercer(raw)
	case "array":
		return makeArrayCoercer(raw)
	case "integer", "number", "boolean":
		return primitiveCoercer(schemaType)
	default:
		return passthroughCoercer{}
	}
}

// passthroughCoercer is a no-op coercer that returns values unchanged.
type passthroughCoercer struct{}

// TryCoerce returns the value unchanged.
func (passthroughCoercer) TryCoerce(value any) any {
	return value
}

// objectCoercer fills defaults and coerces known properties.
type objectCoercer struct {
	properties map[string]TypeCoercer
	defaults   map[string]any
	additional TypeCoercer
}

func makeObjectCoercer(raw map[string]any) objectCoercer {
	c := objectCoercer{
		properties: map[string]TypeCoercer{},
		defaults:   map[string]any{},
	}
	props, _ := raw["properties"].(map[string]any)
	for name, p := range props {
		prop, ok := p.(map[string]any)
		if !ok {
			continue
		}
		c.properties[name] = MakeCoercer(prop)
		if d, ok := prop["default"]; ok {
			c.defaults[name] = d
		}
	}
	if additional, ok := raw["additionalProperties"].(map[string]any); ok {
		c.additional = MakeCoercer(additional)
	}
	return c
}

// TryCoerce returns a new map with missing defaulted properties filled in
// and every known property coerced. The input map is not modified.
func (c objectCoercer) TryCoerce(value any) any {
	obj, ok := value.(map[string]any)
	if !ok {
		return value
	}

	result := make(map[string]any, len(obj)+len(c.defaults))
	for k, v := range obj {
		switch {
		case c.properties[k] != nil:
			result[k] = c.properties[k].TryCoerce(v)
		case c.additional != nil:
			result[k] = c.additional.TryCoerce(v)
		default:
			result[k] = v
		}
	}
	for k, d := range c.defaults {
		if _, present := result[k]; !present {
			result[k] = cloneValue(d)
		}
	}
	return result
}

// arrayCoercer coerces each element by the items schema.
type arrayCoercer struct {
	items TypeCoercer
}

func makeArrayCoercer(raw map[string]any) arrayCoercer {
	items, ok := raw["items"].(map[string]any)
	if !ok {
		return arrayCoercer{items: passthroughCoercer{}}
	}
	return arrayCoercer{items: MakeCoercer(items)}
}

// TryCoerce coerces array elements independently. Failed elements retain
// their original value. Returns a new slice.
func (c arrayCoercer) TryCoerce(value any) any {
	arr, ok := value.([]any)
	if !ok {
		return value
	}

	result := make([]any, len(arr))
	for i, elem := range arr {
		result[i] = c.items.TryCoerce(elem)
	}
	return result
}

// primitiveCoercer narrows strings to the scalar type named by the schema.
// Only exact textual representations convert; "12abc" stays a string.
type primitiveCoercer string

var jsonNumber = regexp.MustCompile(`^-?(?:0|[1-9]\d*)(?:\.\d+)?(?:[eE][+-]?\d+)?$`)

// TryCoerce converts s when it is an exact rendering of the target type.
func (c primitiveCoercer) TryCoerce(value any) any {
	s, ok := value.(string)
	if !ok {
		return value
	}
	switch c {
	case "integer":
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
	case "number":
		if !jsonNumber.MatchString(s) {
			return value
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) {
			return f
		}
	case "boolean":
		switch s {
		case "true":
			return true
		case "false":
			return false
		}
	}
	return value
}

// cloneValue deep copies JSON-shaped values so defaults are never shared
// between calls.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case json.RawMessage:
		return append(json.RawMessage(nil), t...)
	default:
		return v
	}
}
