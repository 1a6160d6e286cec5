// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config contains the definition of the host configuration document
// and the logic required to load, expand and validate it.
package config

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"github.com/adrg/xdg"
)

// Transport names.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable-http"
)

// Defaults.
const (
	DefaultName        = "toolhost"
	DefaultType        = "local"
	DefaultTransport   = TransportStdio
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 8080
	DefaultToolTimeout = 30 * time.Second
	DefaultStoreType   = "memory"
)

// Duration is a time.Duration that marshals as a Go duration string.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler. Numbers are read as seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var secs float64
		if nerr := json.Unmarshal(data, &secs); nerr != nil {
			return fmt.Errorf("invalid duration: %s", data)
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	*d = Duration(dur)
	return nil
}

// Config is the host configuration document.
type Config struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Type        string          `json:"type"`
	Transport   string          `json:"transport"`
	Host        string          `json:"host"`
	Port        int             `json:"port"`
	ToolTimeout Duration        `json:"tool_timeout"`
	Store       StoreConfig     `json:"store"`
	Apps        []AppConfig     `json:"apps"`
	Telemetry   TelemetryConfig `json:"telemetry,omitempty"`
}

// StoreConfig selects a credential store.
type StoreConfig struct {
	Type string `json:"type"`
	// Path is the disk store directory
	Path string `json:"path,omitempty"`
	// Name is the keyring service name
	Name string `json:"name,omitempty"`
	// URL is the redis connection URL
	URL string `json:"url,omitempty"`
	// Prefix namespaces keys in the environment, redis and 1password stores
	Prefix string `json:"prefix,omitempty"`
}

// AppConfig configures one application.
type AppConfig struct {
	// Name is the application slug
	Name string `json:"name"`
	// Module names the implementation explicitly
	Module string `json:"module,omitempty"`
	// Namespace overrides the tool name prefix, which defaults to Name
	Namespace   string             `json:"namespace,omitempty"`
	Integration *IntegrationConfig `json:"integration,omitempty"`
	Store       *StoreConfig       `json:"store,omitempty"`
	Options     map[string]any     `json:"options,omitempty"`
	RateLimit   float64            `json:"rate_limit,omitempty"`
	Timeout     Duration           `json:"timeout,omitempty"`
	CABundle    string             `json:"ca_bundle,omitempty"`
	// Tools keeps only the named tools of the application
	Tools []string `json:"tools,omitempty"`
	// ToolsOverride renames or redescribes tools, keyed by tool name
	ToolsOverride map[string]ToolOverride `json:"tools_override,omitempty"`
}

// ToolOverride represents a tool override entry.
type ToolOverride struct {
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// ToolNamespace returns the namespace the application's tools are
// registered under.
func (a *AppConfig) ToolNamespace() string {
	if a.Namespace != "" {
		return a.Namespace
	}
	return a.Name
}

// IntegrationConfig configures the authentication strategy of an
// application.
type IntegrationConfig struct {
	// Name is the credential key
	Name         string            `json:"name"`
	Type         string            `json:"type"`
	Headers      HeaderTemplates   `json:"headers,omitempty"`
	Query        map[string]string `json:"query,omitempty"`
	ClientID     string            `json:"client_id,omitempty"`
	ClientSecret string            `json:"client_secret,omitempty"`
	AuthURL      string            `json:"auth_url,omitempty"`
	TokenURL     string            `json:"token_url,omitempty"`
	Scopes       []string          `json:"scopes,omitempty"`
	CallbackPort int               `json:"callback_port,omitempty"`
	RedirectURL  string            `json:"redirect_url,omitempty"`
	Issuer       string            `json:"issuer,omitempty"`
}

// TelemetryConfig enables OTLP export.
type TelemetryConfig struct {
	Endpoint    string `json:"endpoint,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
	Insecure    bool   `json:"insecure,omitempty"`
}

// defaults returns the values merged into every loaded document.
func defaults() Config {
	return Config{
		Name:        DefaultName,
		Type:        DefaultType,
		Transport:   DefaultTransport,
		Host:        DefaultHost,
		Port:        DefaultPort,
		ToolTimeout: Duration(DefaultToolTimeout),
		Store:       StoreConfig{Type: DefaultStoreType},
	}
}

// ApplyDefaults fills zero fields of c. Values present in c are kept.
func (c *Config) ApplyDefaults() error {
	d := defaults()
	if err := mergo.Merge(c, d); err != nil {
		return fmt.Errorf("failed to apply defaults: %w", err)
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = c.Name
	}
	c.Store.applyDefaults(c.Name)
	for i := range c.Apps {
		if c.Apps[i].Store != nil {
			c.Apps[i].Store.applyDefaults(c.Name)
		}
	}
	return nil
}

func (s *StoreConfig) applyDefaults(appName string) {
	switch s.Type {
	case "disk":
		if s.Path == "" {
			s.Path = DefaultStorePath(appName)
		}
	case "keyring":
		if s.Name == "" {
			s.Name = appName
		}
	}
}

// DefaultStorePath returns ~/.<app>/store.
func DefaultStorePath(appName string) string {
	return filepath.Join(xdg.Home, "."+appName, "store")
}

// DefaultPath returns the configuration file used when none is given.
func DefaultPath() (string, error) {
	return xdg.ConfigFile("toolhost/config.yaml")
}

// Redacted returns a copy of c with client secrets masked.
func (c *Config) Redacted() *Config {
	out := *c
	out.Apps = make([]AppConfig, len(c.Apps))
	for i, app := range c.Apps {
		if app.Integration != nil && app.Integration.ClientSecret != "" {
			integ := *app.Integration
			integ.ClientSecret = "********"
			app.Integration = &integ
		}
		out.Apps[i] = app
	}
	return &out
}
