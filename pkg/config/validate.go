// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Store and integration type names accepted in the document.
var (
	StoreTypes       = []any{"memory", "environment", "disk", "keyring", "redis", "1password"}
	IntegrationTypes = []any{"api_key", "basic_auth", "oauth2"}
	Transports       = []any{TransportStdio, TransportSSE, TransportStreamableHTTP}
)

// Validate checks c and reports every violation in one ConfigurationError
// whose details carry the sorted dotted paths.
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.Type, validation.Required, validation.In(DefaultType).Error("must be local")),
		validation.Field(&c.Transport, validation.Required, validation.In(Transports...)),
		validation.Field(&c.Port, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.ToolTimeout, validation.Min(Duration(0))),
		validation.Field(&c.Store),
		validation.Field(&c.Apps),
	)
	if err == nil {
		return nil
	}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return hosterr.NewConfigurationError("invalid config", nil, err)
	}
	flat := map[string]string{}
	flatten(verrs, "", flat)

	paths := make([]string, 0, len(flat))
	for p := range flat {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	msgs := make([]string, 0, len(paths))
	for _, p := range paths {
		msgs = append(msgs, fmt.Sprintf("%s: %s", p, flat[p]))
	}
	return hosterr.NewConfigurationError("invalid config: "+strings.Join(msgs, "; "), paths, nil)
}

// Validate implements validation.Validatable.
func (s StoreConfig) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.Type, validation.Required, validation.In(StoreTypes...)),
		validation.Field(&s.URL, validation.When(s.Type == "redis", validation.Required)),
	)
}

// Validate implements validation.Validatable.
func (a AppConfig) Validate() error {
	return validation.ValidateStruct(&a,
		validation.Field(&a.Name, validation.Required, validation.Match(slugPattern)),
		validation.Field(&a.Namespace, validation.Match(slugPattern)),
		validation.Field(&a.RateLimit, validation.Min(0.0)),
		validation.Field(&a.Tools, validation.Each(validation.Required)),
		validation.Field(&a.Integration),
		validation.Field(&a.Store),
	)
}

// Validate implements validation.Validatable.
func (i IntegrationConfig) Validate() error {
	oauth := i.Type == "oauth2"
	return validation.ValidateStruct(&i,
		validation.Field(&i.Name, validation.Required),
		validation.Field(&i.Type, validation.Required, validation.In(IntegrationTypes...)),
		validation.Field(&i.ClientID, validation.When(oauth, validation.Required)),
		validation.Field(&i.AuthURL, validation.When(oauth && i.Issuer == "", validation.Required)),
		validation.Field(&i.TokenURL, validation.When(oauth && i.Issuer == "", validation.Required)),
		validation.Field(&i.CallbackPort, validation.Min(0), validation.Max(65535)),
	)
}

// flatten turns nested ozzo errors into dotted paths. Slice indexes are
// rendered as [i].
func flatten(err error, prefix string, out map[string]string) {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		out[pathOrRoot(prefix)] = err.Error()
		return
	}
	for key, e := range verrs {
		var p string
		if _, convErr := strconv.Atoi(key); convErr == nil {
			p = fmt.Sprintf("%s[%s]", prefix, key)
		} else {
			p = joinKey(prefix, key)
		}
		flatten(e, p, out)
	}
}
