// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
	"time"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
)

var (
	timeType       = reflect.TypeFor[time.Time]()
	durationType   = reflect.TypeFor[time.Duration]()
	rawMessageType = reflect.TypeFor[json.RawMessage]()
)

// GenerateSchema builds the input schema for a parameter struct T without
// any docstring. It panics if T cannot be described, which makes it suitable
// for package-level tool definitions that are known to be valid.
func GenerateSchema[T any]() map[string]any {
	s, err := ObjectSchema(reflect.TypeFor[T](), nil)
	if err != nil {
		panic(err)
	}
	return s
}

// ObjectSchema describes the struct type t (or pointer to struct) as an
// object schema. Parameter descriptions and defaults that are not given in
// struct tags are taken from doc when it is non-nil.
func ObjectSchema(t reflect.Type, doc *DocInfo) (map[string]any, error) {
	g := &generator{doc: doc, visiting: map[reflect.Type]bool{}}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, signatureError("parameter type %s is not a struct", t)
	}
	return g.objectSchema(t, "", true)
}

type generator struct {
	doc      *DocInfo
	visiting map[reflect.Type]bool
}

// fieldSpec captures how one struct field appears in the schema.
type fieldSpec struct {
	name     string
	optional bool
	field    reflect.StructField
	depth    int
	tagged   bool
}

func (g *generator) objectSchema(t reflect.Type, path string, top bool) (map[string]any, error) {
	if g.visiting[t] {
		return nil, signatureError("recursive type %s at %q is not supported", t, pathOrRoot(path))
	}
	g.visiting[t] = true
	defer delete(g.visiting, t)

	fields, err := collectFields(t)
	if err != nil {
		return nil, err
	}

	properties := map[string]any{}
	required := []string{}
	for _, f := range fields {
		fieldPath := path + "/" + f.name
		prop, hasDefault, err := g.fieldSchema(f, fieldPath, top)
		if err != nil {
			return nil, err
		}
		properties[f.name] = prop
		if !f.optional && !hasDefault {
			required = append(required, f.name)
		}
	}

	return map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}, nil
}

// collectFields lists the JSON-visible fields of t in declaration order,
// flattening untagged embedded structs the way encoding/json does: among
// fields sharing a name the shallowest wins, and at equal depth a single
// tagged field wins. Names left ambiguous are dropped. Two direct fields
// of t with the same name are an error.
func collectFields(t reflect.Type) ([]fieldSpec, error) {
	var all []fieldSpec
	if err := walkFields(t, 0, map[reflect.Type]bool{}, &all); err != nil {
		return nil, err
	}

	byName := map[string][]int{}
	for i, f := range all {
		byName[f.name] = append(byName[f.name], i)
	}
	out := make([]fieldSpec, 0, len(byName))
	for i, f := range all {
		if winner, ok := dominantField(all, byName[f.name]); ok && winner == i {
			out = append(out, f)
		}
	}
	return out, nil
}

func walkFields(t reflect.Type, depth int, visiting map[reflect.Type]bool, out *[]fieldSpec) error {
	if visiting[t] {
		return nil
	}
	visiting[t] = true
	defer delete(visiting, t)

	direct := map[string]bool{}
	for i := range t.NumField() {
		field := t.Field(i)
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, omitEmpty := parseJSONTag(tag)

		if field.Anonymous && name == "" {
			ft := field.Type
			if ft.Kind() == reflect.Pointer {
				ft = ft.Elem()
			}
			if ft.Kind() == reflect.Struct {
				if err := walkFields(ft, depth+1, visiting, out); err != nil {
					return err
				}
				continue
			}
		}
		if !field.IsExported() {
			continue
		}
		tagged := name != ""
		if !tagged {
			name = field.Name
		}
		if depth == 0 {
			if direct[name] {
				return signatureError("duplicate parameter name %q in %s", name, t)
			}
			direct[name] = true
		}
		*out = append(*out, fieldSpec{
			name:     name,
			optional: omitEmpty || field.Type.Kind() == reflect.Pointer,
			field:    field,
			depth:    depth,
			tagged:   tagged,
		})
	}
	return nil
}

// dominantField picks the field that encoding/json would use among the
// same-named candidates at indexes idx.
func dominantField(all []fieldSpec, idx []int) (int, bool) {
	minDepth := all[idx[0]].depth
	for _, i := range idx[1:] {
		minDepth = min(minDepth, all[i].depth)
	}

	var shallow, tagged []int
	for _, i := range idx {
		if all[i].depth != minDepth {
			continue
		}
		shallow = append(shallow, i)
		if all[i].tagged {
			tagged = append(tagged, i)
		}
	}
	switch {
	case len(shallow) == 1:
		return shallow[0], true
	case len(tagged) == 1:
		return tagged[0], true
	}
	return 0, false
}

func (g *generator) fieldSchema(f fieldSpec, path string, top bool) (map[string]any, bool, error) {
	var (
		prop map[string]any
		err  error
	)
	if union := f.field.Tag.Get("anyOf"); union != "" {
		prop, err = unionSchema(union, path)
	} else {
		prop, err = g.typeSchema(f.field.Type, path)
	}
	if err != nil {
		return nil, false, err
	}

	var pdoc *ParamDoc
	if top {
		pdoc = g.doc.Param(f.name, f.field.Name)
	}

	if desc := f.field.Tag.Get("description"); desc != "" {
		prop["description"] = desc
	} else if pdoc != nil && pdoc.Description != "" {
		prop["description"] = pdoc.Description
	}

	if enum := f.field.Tag.Get("enum"); enum != "" {
		if err := applyEnum(prop, enum, f.field.Type, path); err != nil {
			return nil, false, err
		}
	}

	hasDefault := false
	if raw, ok := f.field.Tag.Lookup("default"); ok {
		v, err := parseLiteral(raw, prop)
		if err != nil {
			return nil, false, signatureError("invalid default %q for %q: %v", raw, pathOrRoot(path), err)
		}
		prop["default"] = v
		hasDefault = true
	} else if pdoc != nil && pdoc.HasDefault {
		// Prose defaults are advisory; drop ones that do not fit the type.
		if v, err := parseLiteral(pdoc.Default, prop); err == nil {
			prop["default"] = v
			hasDefault = true
		}
	}
	return prop, hasDefault, nil
}

// typeSchema maps a Go type to its JSON Schema counterpart.
func (g *generator) typeSchema(t reflect.Type, path string) (map[string]any, error) {
	switch t {
	case timeType:
		return map[string]any{"type": "string", "format": "date-time"}, nil
	case durationType:
		return map[string]any{"type": "integer", "description": "duration in nanoseconds"}, nil
	case rawMessageType:
		return nil, signatureError("untyped parameter at %q needs an anyOf tag", pathOrRoot(path))
	}

	switch t.Kind() {
	case reflect.Pointer:
		return g.typeSchema(t.Elem(), path)
	case reflect.String:
		return map[string]any{"type": "string"}, nil
	case reflect.Bool:
		return map[string]any{"type": "boolean"}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return map[string]any{"type": "integer"}, nil
	case reflect.Float32, reflect.Float64:
		return map[string]any{"type": "number"}, nil
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 && t.Kind() == reflect.Slice {
			return map[string]any{"type": "string", "contentEncoding": "base64"}, nil
		}
		items, err := g.typeSchema(t.Elem(), path+"/items")
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "array", "items": items}, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, signatureError("map parameter at %q must have string keys", pathOrRoot(path))
		}
		if t.Elem().Kind() == reflect.Interface {
			return map[string]any{"type": "object"}, nil
		}
		values, err := g.typeSchema(t.Elem(), path+"/additionalProperties")
		if err != nil {
			return nil, err
		}
		return map[string]any{"type": "object", "additionalProperties": values}, nil
	case reflect.Struct:
		return g.objectSchema(t, path, false)
	case reflect.Interface:
		return nil, signatureError("untyped parameter at %q needs an anyOf tag", pathOrRoot(path))
	default:
		return nil, signatureError("unsupported parameter type %s at %q", t, pathOrRoot(path))
	}
}

var unionMembers = map[string]bool{
	"string": true, "integer": true, "number": true, "boolean": true, "array": true, "object": true,
}

// unionSchema builds an anyOf from a comma separated list of JSON types.
func unionSchema(tag, path string) (map[string]any, error) {
	var variants []any
	for _, member := range strings.Split(tag, ",") {
		member = strings.TrimSpace(member)
		if member == "null" || member == "" {
			continue
		}
		if !unionMembers[member] {
			return nil, signatureError("unknown anyOf member %q at %q", member, pathOrRoot(path))
		}
		variants = append(variants, map[string]any{"type": member})
	}
	switch len(variants) {
	case 0:
		return nil, signatureError("empty anyOf at %q", pathOrRoot(path))
	case 1:
		return variants[0].(map[string]any), nil
	}
	return map[string]any{"anyOf": variants}, nil
}

func applyEnum(prop map[string]any, tag string, t reflect.Type, path string) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	var values []any
	for _, v := range strings.Split(tag, ",") {
		values = append(values, strings.TrimSpace(v))
	}
	switch {
	case t.Kind() == reflect.String:
		prop["enum"] = values
	case (t.Kind() == reflect.Slice || t.Kind() == reflect.Array) && t.Elem().Kind() == reflect.String:
		prop["items"].(map[string]any)["enum"] = values
	default:
		return signatureError("enum at %q requires a string field", pathOrRoot(path))
	}
	return nil
}

// parseLiteral converts a textual default into a value of the schema's type.
func parseLiteral(raw string, prop map[string]any) (any, error) {
	typ, _ := prop["type"].(string)
	switch typ {
	case "string":
		return raw, nil
	case "integer":
		return strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	case "number":
		return strconv.ParseFloat(strings.TrimSpace(raw), 64)
	case "boolean":
		return strconv.ParseBool(strings.ToLower(strings.TrimSpace(raw)))
	case "array", "object":
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	// Unions keep the literal as written unless it is valid JSON.
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v, nil
	}
	return raw, nil
}

// parseJSONTag parses a JSON struct tag and returns the field name and
// whether omitempty (or omitzero) is set.
func parseJSONTag(tag string) (name string, omitEmpty bool) {
	if tag == "" {
		return "", false
	}
	parts := strings.Split(tag, ",")
	name = parts[0]
	for _, opt := range parts[1:] {
		if opt == "omitempty" || opt == "omitzero" {
			omitEmpty = true
		}
	}
	return name, omitEmpty
}

func pathOrRoot(path string) string {
	if path == "" {
		return "/"
	}
	return path
}

func signatureError(format string, args ...any) error {
	return hosterr.Newf(hosterr.KindInvalidToolSignature, nil, format, args...)
}
