// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package schema turns Go functions into JSON Schema described tools.
//
// Parameter structs are reflected into object schemas, docstrings supply
// descriptions and defaults, and incoming arguments are normalized and
// validated before they are decoded back into the parameter struct.
package schema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"runtime"
	"strings"
	"unicode"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
)

var (
	ctxType = reflect.TypeFor[context.Context]()
	errType = reflect.TypeFor[error]()

	toolName = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,128}$`)
)

// Function is a Go function described by a JSON Schema. Functions are
// immutable once built and safe for concurrent use.
//
// The accepted shape is
//
//	func([ctx context.Context][, in T]) ([R,] [error])
//
// where T is a struct or pointer to struct whose fields are the tool
// parameters.
type Function struct {
	Name         string
	Description  string
	InputSchema  map[string]any
	OutputSchema map[string]any

	validator *Validator
	fn        reflect.Value
	hasCtx    bool
	in        reflect.Type
	inPtr     bool
	hasResult bool
	hasErr    bool
}

// FromFunc describes fn. When name is empty it is derived from the Go
// function name in snake_case. doc supplies the description and any
// parameter documentation not given in struct tags.
func FromFunc(name, doc string, fn any) (*Function, error) {
	v := reflect.ValueOf(fn)
	if !v.IsValid() || v.Kind() != reflect.Func || v.IsNil() {
		return nil, signatureError("tool implementation must be a function, got %T", fn)
	}
	if name == "" {
		name = FuncName(fn)
	}
	if !toolName.MatchString(name) {
		return nil, signatureError("invalid tool name %q", name)
	}

	t := v.Type()
	f := &Function{Name: name, fn: v}
	if t.IsVariadic() {
		return nil, signatureError("tool %q: variadic parameters are not supported", name)
	}

	idx := 0
	if t.NumIn() > 0 && t.In(0) == ctxType {
		f.hasCtx = true
		idx = 1
	}
	switch t.NumIn() - idx {
	case 0:
	case 1:
		in := t.In(idx)
		if in.Kind() == reflect.Pointer && in.Elem().Kind() == reflect.Struct {
			f.in, f.inPtr = in.Elem(), true
		} else if in.Kind() == reflect.Struct {
			f.in = in
		} else {
			return nil, signatureError("tool %q: parameter of type %s must be a struct", name, in)
		}
	default:
		return nil, signatureError("tool %q: expected at most one parameter struct, got %d parameters", name, t.NumIn()-idx)
	}

	switch t.NumOut() {
	case 0:
	case 1:
		if t.Out(0) == errType {
			f.hasErr = true
		} else {
			f.hasResult = true
		}
	case 2:
		if t.Out(1) != errType {
			return nil, signatureError("tool %q: second return value must be error", name)
		}
		f.hasResult, f.hasErr = true, true
	default:
		return nil, signatureError("tool %q: too many return values", name)
	}

	info := ParseDoc(doc)
	f.Description = info.Summary

	if f.in != nil {
		s, err := ObjectSchema(f.in, info)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", name, err)
		}
		f.InputSchema = s
	} else {
		f.InputSchema = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []string{},
		}
	}

	if f.hasResult {
		f.OutputSchema = outputSchema(t.Out(0))
	}

	validator, err := NewValidator(f.InputSchema)
	if err != nil {
		return nil, err
	}
	f.validator = validator
	return f, nil
}

// Validate normalizes and checks args against the input schema.
func (f *Function) Validate(args map[string]any) (map[string]any, error) {
	return f.validator.Validate(args)
}

// Call invokes the function with already validated arguments. A function
// without a result returns nil.
func (f *Function) Call(ctx context.Context, args map[string]any) (any, error) {
	in := make([]reflect.Value, 0, 2)
	if f.hasCtx {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}
	if f.in != nil {
		arg, err := decodeArgs(args, f.in)
		if err != nil {
			return nil, err
		}
		if !f.inPtr {
			arg = arg.Elem()
		}
		in = append(in, arg)
	}

	out := f.fn.Call(in)

	if f.hasErr {
		if errVal := out[len(out)-1]; !errVal.IsNil() {
			return nil, errVal.Interface().(error)
		}
	}
	if !f.hasResult {
		return nil, nil
	}
	res := out[0]
	switch res.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		if res.IsNil() {
			return nil, nil
		}
	}
	return res.Interface(), nil
}

// Translate converts validated arguments into a T by round-tripping through
// JSON so that json tags drive the mapping.
func Translate[T any](input any) (T, error) {
	var out T
	data, err := json.Marshal(input)
	if err != nil {
		return out, fmt.Errorf("failed to marshal input: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, translateError(err)
	}
	return out, nil
}

func decodeArgs(args map[string]any, t reflect.Type) (reflect.Value, error) {
	ptr := reflect.New(t)
	data, err := json.Marshal(args)
	if err != nil {
		return reflect.Value{}, fmt.Errorf("failed to marshal input: %w", err)
	}
	if err := json.Unmarshal(data, ptr.Interface()); err != nil {
		return reflect.Value{}, translateError(err)
	}
	return ptr, nil
}

// translateError reports decode failures that slipped past the schema, such
// as integer overflow on narrow types, as validation errors.
func translateError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		p := ""
		if typeErr.Field != "" {
			p = "/" + strings.ReplaceAll(typeErr.Field, ".", "/")
		}
		return hosterr.NewValidationError([]string{p}, []string{
			fmt.Sprintf("%s: cannot use %s as %s", pathOrRoot(p), typeErr.Value, typeErr.Type),
		})
	}
	return hosterr.NewValidationError([]string{""}, []string{err.Error()})
}

// outputSchema describes a result type when possible. Results that cannot
// be described are left without a schema.
func outputSchema(t reflect.Type) map[string]any {
	if t.Kind() == reflect.Interface {
		return nil
	}
	g := &generator{visiting: map[reflect.Type]bool{}}
	s, err := g.typeSchema(t, "")
	if err != nil {
		return nil
	}
	return s
}

// FuncName returns the snake_case name of the Go function fn. Method values
// lose their receiver and closure suffixes.
func FuncName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return ""
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return ""
	}
	full := strings.TrimSuffix(rf.Name(), "-fm")
	if i := strings.LastIndex(full, "."); i >= 0 {
		full = full[i+1:]
	}
	return SnakeCase(full)
}

// SnakeCase converts a Go identifier such as GetQuoteOfDay into
// get_quote_of_day. Acronym runs stay together, so SearchURL becomes
// search_url.
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('_')
				}
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
