// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/stacklok/toolhost/pkg/config"
	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/loader"
	"github.com/stacklok/toolhost/pkg/logger"
	"github.com/stacklok/toolhost/pkg/mcp/server"
	"github.com/stacklok/toolhost/pkg/telemetry"
	"github.com/stacklok/toolhost/pkg/tools"
	"github.com/stacklok/toolhost/pkg/transport"
	"github.com/stacklok/toolhost/pkg/transport/types"
)

const shutdownTimeout = 10 * time.Second

type runOptions struct {
	configPath       string
	transport        string
	host             string
	port             int
	envFiles         []string
	customAttributes string

	// stdin and stdout replace the process streams for stdio
	stdin      io.Reader
	stdout     io.Writer
	loaderOpts []loader.Option
	started    func(addr string)
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve the configured tools over MCP",
		Long: `Load the configuration, build every configured application and serve its
tools to MCP clients until interrupted.

Flags override the transport, host and port of the configuration file.

Examples:
  toolhost run -c config.yaml
  toolhost run -c config.yaml --transport streamable-http --port 9000
  toolhost run -c config.yaml --env-file .env`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runHost(cmd.Context(), opts)
		},
	}

	addRunFlags(cmd.Flags(), &opts)
	return cmd
}

func addRunFlags(flags *pflag.FlagSet, opts *runOptions) {
	flags.Var(&transportFlag{target: &opts.transport}, "transport", "Transport: stdio, sse or streamable-http")
	flags.StringVar(&opts.host, "host", "", "Host to listen on for HTTP transports")
	flags.IntVar(&opts.port, "port", 0, "Port to listen on for HTTP transports")
	flags.StringSliceVar(&opts.envFiles, "env-file", nil, "Load environment variables from a dotenv file (repeatable)")
	flags.StringVar(&opts.customAttributes, "otel-custom-attributes", "",
		"Resource attributes added to exported telemetry, e.g. env=prod,region=eu")
}

// transportFlag rejects unknown transports at parse time and stores the
// canonical name.
type transportFlag struct {
	target *string
}

var _ pflag.Value = (*transportFlag)(nil)

func (f *transportFlag) String() string {
	if f.target == nil {
		return ""
	}
	return *f.target
}

func (f *transportFlag) Set(value string) error {
	t, err := types.ParseTransportType(value)
	if err != nil {
		return fmt.Errorf("%w: %q", err, value)
	}
	*f.target = string(t)
	return nil
}

func (*transportFlag) Type() string {
	return "transport"
}

// runHost loads the configuration and serves it until ctx is done or the
// transport stops on its own, e.g. when stdin is closed.
func runHost(ctx context.Context, opts runOptions) error {
	if err := config.LoadEnvFiles(opts.envFiles...); err != nil {
		return err
	}
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if err := applyRunOverrides(cfg, opts); err != nil {
		return err
	}
	transportType, err := types.ParseTransportType(cfg.Transport)
	if err != nil {
		return hosterr.NewConfigurationError(fmt.Sprintf("unsupported transport %q", cfg.Transport),
			[]string{"transport"}, err)
	}

	telemetryCfg := telemetry.FromHostConfig(cfg.Telemetry, string(transportType))
	if opts.customAttributes != "" {
		attrs, err := telemetry.ParseCustomAttributes(opts.customAttributes)
		if err != nil {
			return hosterr.NewConfigurationError("invalid --otel-custom-attributes", nil, err)
		}
		telemetryCfg.CustomAttributes = attrs
	}
	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return hosterr.NewConfigurationError("failed to set up telemetry", []string{"telemetry"}, err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Failed to shut down telemetry: %v", err)
		}
	}()

	registry, res, err := loadRegistry(ctx, cfg,
		[]tools.Option{tools.WithObserver(provider.Observer())}, opts.loaderOpts...)
	if err != nil {
		return err
	}
	defer closeStore(res.Store)
	if len(cfg.Apps) > 0 && len(res.Applications) == 0 {
		return errors.Join(res.Failures...)
	}

	srv := server.New(registry, server.Config{
		Name:         cfg.Name,
		Instructions: cfg.Description,
		ToolTimeout:  time.Duration(cfg.ToolTimeout),
	})

	tr, err := transport.NewFactory().Create(types.Config{
		Type:              transportType,
		Host:              cfg.Host,
		Port:              cfg.Port,
		Handler:           srv,
		PrometheusHandler: provider.PrometheusHandler(),
		Stdin:             opts.stdin,
		Stdout:            opts.stdout,
	})
	if err != nil {
		return hosterr.NewConfigurationError("failed to create transport", []string{"transport"}, err)
	}
	if err := tr.Start(ctx); err != nil {
		return hosterr.NewConfigurationError(fmt.Sprintf("failed to start %s transport", transportType), nil, err)
	}

	if url := transport.GenerateMCPServerURL(transportType, tr.Addr()); url != "" {
		logger.Infof("Serving %d tool(s) at %s", len(registry.Names()), url)
	} else {
		logger.Infof("Serving %d tool(s) over %s", len(registry.Names()), transportType)
	}
	if opts.started != nil {
		opts.started(tr.Addr())
	}

	select {
	case <-ctx.Done():
		logger.Infof("Shutting down")
	case <-tr.Done():
		logger.Infof("Transport closed, shutting down")
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := tr.Stop(stopCtx); err != nil {
		logger.Warnf("Failed to stop transport: %v", err)
	}
	return nil
}

// applyRunOverrides applies the command line flags on top of cfg and
// validates the result again.
func applyRunOverrides(cfg *config.Config, opts runOptions) error {
	changed := false
	if opts.transport != "" {
		cfg.Transport = opts.transport
		changed = true
	}
	if opts.host != "" {
		cfg.Host = opts.host
		changed = true
	}
	if opts.port != 0 {
		cfg.Port = opts.port
		changed = true
	}
	if !changed {
		return nil
	}
	return cfg.Validate()
}
