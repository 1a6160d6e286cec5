// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/tailscale/hujson"
	yamlv3 "gopkg.in/yaml.v3"
	"sigs.k8s.io/yaml"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/logger"
)

// Format is a configuration file syntax.
type Format string

const (
	// FormatYAML is YAML
	FormatYAML Format = "yaml"
	// FormatJSON is JSON, with comments and trailing commas allowed
	FormatJSON Format = "json"
	// FormatTOML is TOML
	FormatTOML Format = "toml"
)

// FormatFromPath picks the format from the file extension. Unknown
// extensions are read as YAML, which also accepts plain JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		return FormatJSON
	case ".toml":
		return FormatTOML
	default:
		return FormatYAML
	}
}

// envOverrides are top-level settings read from the environment after the
// document is decoded.
type envOverrides struct {
	Transport   string        `env:"TOOLHOST_TRANSPORT"`
	Host        string        `env:"TOOLHOST_HOST"`
	Port        int           `env:"TOOLHOST_PORT"`
	ToolTimeout time.Duration `env:"TOOLHOST_TOOL_TIMEOUT"`
}

type loadOptions struct {
	environ map[string]string
}

// Option configures Load and Parse.
type Option func(*loadOptions)

// WithEnvironment replaces the process environment for expansion and
// overrides.
func WithEnvironment(environ map[string]string) Option {
	return func(o *loadOptions) {
		o.environ = environ
	}
}

func (o *loadOptions) lookup(name string) (string, bool) {
	if o.environ == nil {
		return os.LookupEnv(name)
	}
	v, ok := o.environ[name]
	return v, ok
}

// LoadEnvFiles loads dotenv files into the process environment. Variables
// that are already set are left untouched.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		return nil
	}
	if err := godotenv.Load(files...); err != nil {
		return hosterr.NewConfigurationError("failed to load env file", nil, err)
	}
	logger.Debugf("Loaded %d env file(s)", len(files))
	return nil
}

// Load reads, expands, decodes, defaults and validates the file at path.
func Load(path string, opts ...Option) (*Config, error) {
	// #nosec G304 -- the path is chosen by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, hosterr.NewConfigurationError(fmt.Sprintf("failed to read config file %s", path), nil, err)
	}
	return Parse(data, FormatFromPath(path), opts...)
}

// Parse is Load for in-memory documents.
func Parse(data []byte, format Format, opts ...Option) (*Config, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	doc, err := decodeGeneric(data, format)
	if err != nil {
		return nil, hosterr.NewConfigurationError(fmt.Sprintf("invalid %s document", format), nil, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}

	expanded, err := Expand(doc, o.lookup)
	if err != nil {
		return nil, err
	}

	jsonDoc, err := json.Marshal(expanded)
	if err != nil {
		return nil, hosterr.NewConfigurationError("config document is not representable as JSON", nil, err)
	}
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(jsonDoc, cfg); err != nil {
		return nil, hosterr.NewConfigurationError(cleanDecodeError(err), nil, err)
	}

	if err := applyOverrides(cfg, o); err != nil {
		return nil, err
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, hosterr.NewConfigurationError("failed to apply defaults", nil, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeGeneric(data []byte, format Format) (any, error) {
	var doc any
	switch format {
	case FormatJSON:
		std, err := hujson.Standardize(data)
		if err != nil {
			return nil, err
		}
		dec := json.NewDecoder(bytes.NewReader(std))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, err
		}
	case FormatTOML:
		var m map[string]any
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, err
		}
		doc = m
	case FormatYAML:
		if err := yamlv3.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	if doc != nil {
		if _, ok := doc.(map[string]any); !ok {
			return nil, errors.New("top level must be a mapping")
		}
	}
	return doc, nil
}

func cleanDecodeError(err error) string {
	msg := err.Error()
	msg = strings.TrimPrefix(msg, "error unmarshaling JSON: ")
	msg = strings.TrimPrefix(msg, "while decoding JSON: ")
	return "invalid config: " + msg
}

func applyOverrides(cfg *Config, o *loadOptions) error {
	var ov envOverrides
	envOpts := env.Options{}
	if o.environ != nil {
		envOpts.Environment = o.environ
	}
	if err := env.ParseWithOptions(&ov, envOpts); err != nil {
		return hosterr.NewConfigurationError("invalid TOOLHOST_* override", nil, err)
	}
	if ov.Transport != "" {
		cfg.Transport = ov.Transport
	}
	if ov.Host != "" {
		cfg.Host = ov.Host
	}
	if ov.Port != 0 {
		cfg.Port = ov.Port
	}
	if ov.ToolTimeout != 0 {
		cfg.ToolTimeout = Duration(ov.ToolTimeout)
	}
	return nil
}

// Marshal renders c as YAML or JSON.
func Marshal(c *Config, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(c, "", "  ")
	case FormatYAML, "":
		return yaml.Marshal(c)
	case FormatTOML:
		// go through JSON so the json tags and Duration strings apply
		data, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return toml.Marshal(doc)
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}
