// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
)

// Span attribute keys.
const (
	AttrToolName  = attribute.Key("mcp.tool.name")
	AttrErrorKind = attribute.Key("error.kind")
)

// Metric label keys.
const (
	LabelTool    = attribute.Key("tool")
	LabelOutcome = attribute.Key("outcome")
)

// OutcomeSuccess is the outcome recorded for calls that returned a result.
// Failed calls record their error kind.
const OutcomeSuccess = "success"

// Outcome returns the metric outcome label for a call that ended with err.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return string(hosterr.KindOf(err))
}

// ParseCustomAttributes parses a comma-separated list of key=value pairs,
// e.g. "environment=production,region=us-east-1".
func ParseCustomAttributes(input string) (map[string]string, error) {
	attrs := make(map[string]string)
	for _, pair := range strings.Split(input, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid attribute format '%s': expected key=value", pair)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("empty attribute key in '%s'", pair)
		}
		attrs[key] = strings.TrimSpace(value)
	}
	return attrs, nil
}

// ConvertMapToAttributes converts attrs to OpenTelemetry attributes sorted
// by key.
func ConvertMapToAttributes(attrs map[string]string) []attribute.KeyValue {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	result := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		result = append(result, attribute.String(k, attrs[k]))
	}
	return result
}
