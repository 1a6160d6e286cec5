// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"io"

	"github.com/spf13/viper"

	"github.com/stacklok/toolhost/pkg/config"
	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/loader"
	"github.com/stacklok/toolhost/pkg/logger"
	"github.com/stacklok/toolhost/pkg/store"
	"github.com/stacklok/toolhost/pkg/tools"
)

// configPath returns the --config flag, falling back to the default
// location under the XDG config directory.
func configPath() (string, error) {
	if p := viper.GetString("config"); p != "" {
		return p, nil
	}
	p, err := config.DefaultPath()
	if err != nil {
		return "", hosterr.NewConfigurationError("failed to resolve the default config path", nil, err)
	}
	return p, nil
}

// loadConfig reads the configuration named by path, or by the --config
// flag when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		var err error
		if path, err = configPath(); err != nil {
			return nil, err
		}
	}
	logger.Debugf("Loading configuration from %s", path)
	return config.Load(path)
}

// loadRegistry loads every application of cfg into a new registry.
func loadRegistry(
	ctx context.Context, cfg *config.Config, opts []tools.Option, loaderOpts ...loader.Option,
) (*tools.Registry, *loader.Result, error) {
	registry := tools.NewRegistry(opts...)
	res, err := loader.New(registry, loaderOpts...).Load(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return registry, res, nil
}

// closeStore releases stores holding connections.
func closeStore(st store.Store) {
	if c, ok := st.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warnf("Failed to close %s store: %v", st.Type(), err)
		}
	}
}
