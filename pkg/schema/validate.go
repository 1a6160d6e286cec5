// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
)

// Validator checks tool arguments against a compiled input schema.
// It is safe for concurrent use.
type Validator struct {
	raw     map[string]any
	schema  *gojsonschema.Schema
	coercer TypeCoercer
}

// NewValidator compiles raw. A schema that does not compile is reported as
// an InvalidToolSignature error.
func NewValidator(raw map[string]any) (*Validator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return nil, hosterr.Newf(hosterr.KindInvalidToolSignature, err, "input schema does not compile")
	}
	return &Validator{
		raw:     raw,
		schema:  compiled,
		coercer: MakeCoercer(raw),
	}, nil
}

// Schema returns the schema the validator was built from.
func (v *Validator) Schema() map[string]any {
	return v.raw
}

// Validate fills defaults, applies safe coercions and validates args. It
// returns the normalized arguments or a ValidationError listing every
// offending JSON pointer path. A nil args map is treated as empty.
func (v *Validator) Validate(args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	normalized, _ := v.coercer.TryCoerce(args).(map[string]any)

	result, err := v.schema.Validate(gojsonschema.NewGoLoader(normalized))
	if err != nil {
		return nil, hosterr.NewValidationError([]string{""}, []string{err.Error()})
	}
	if result.Valid() {
		return normalized, nil
	}

	seen := map[string]bool{}
	var paths, messages []string
	for _, re := range result.Errors() {
		p := errorPath(re)
		messages = append(messages, fmt.Sprintf("%s: %s", pathOrRoot(p), re.Description()))
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	slices.Sort(paths)
	slices.Sort(messages)
	return nil, hosterr.NewValidationError(paths, messages)
}

// errorPath converts a gojsonschema error location into a JSON pointer. A
// missing required property is reported at the property itself.
func errorPath(re gojsonschema.ResultError) string {
	ctx := re.Context().String("/")
	p := strings.TrimPrefix(ctx, "(root)")
	if re.Type() == "required" {
		if prop, ok := re.Details()["property"].(string); ok {
			p += "/" + prop
		}
	}
	return p
}
