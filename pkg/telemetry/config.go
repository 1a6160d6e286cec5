// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhost/pkg/config"
	"github.com/stacklok/toolhost/pkg/telemetry/providers"
	"github.com/stacklok/toolhost/pkg/versions"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// Endpoint is the OTLP endpoint, host[:port] without a scheme
	Endpoint string

	ServiceName    string
	ServiceVersion string

	// TracingEnabled and MetricsEnabled select what is sent to Endpoint
	TracingEnabled bool
	MetricsEnabled bool

	// SamplingRate is the trace sampling rate (0.0-1.0)
	SamplingRate float64

	// Headers are sent with every OTLP request
	Headers map[string]string

	// Insecure uses HTTP instead of HTTPS for the OTLP endpoint
	Insecure bool

	// EnablePrometheusMetricsPath exposes a Prometheus /metrics handler,
	// independently of OTLP
	EnablePrometheusMetricsPath bool

	// CustomAttributes are added to every exported resource
	CustomAttributes map[string]string
}

// DefaultConfig returns the telemetry defaults: no export, full sampling.
func DefaultConfig() Config {
	return Config{
		ServiceName:    config.DefaultName,
		ServiceVersion: versions.GetVersionInfo().Version,
		TracingEnabled: true,
		MetricsEnabled: true,
		SamplingRate:   1,
		Headers:        make(map[string]string),
	}
}

// FromHostConfig builds a Config from the host document. The Prometheus
// handler is enabled for HTTP transports, where /metrics can be served.
func FromHostConfig(tc config.TelemetryConfig, transport string) Config {
	c := DefaultConfig()
	if tc.ServiceName != "" {
		c.ServiceName = tc.ServiceName
	}
	c.Endpoint = strings.TrimPrefix(strings.TrimPrefix(tc.Endpoint, "https://"), "http://")
	c.Insecure = tc.Insecure || strings.HasPrefix(tc.Endpoint, "http://")
	c.EnablePrometheusMetricsPath = transport != "" && transport != "stdio"
	return c
}

// Provider encapsulates the OpenTelemetry providers and the tool call
// instruments built on them.
type Provider struct {
	config            Config
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider
	prometheusHandler http.Handler
	observer          *ToolObserver
	shutdown          func(context.Context) error
}

// NewProvider creates a Provider and installs it as the global OpenTelemetry
// provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if err := validateOtelConfig(cfg); err != nil {
		return nil, err
	}

	composite, err := providers.NewCompositeProvider(ctx,
		providers.WithServiceName(cfg.ServiceName),
		providers.WithServiceVersion(cfg.ServiceVersion),
		providers.WithOTLPEndpoint(cfg.Endpoint),
		providers.WithHeaders(cfg.Headers),
		providers.WithInsecure(cfg.Insecure),
		providers.WithTracingEnabled(cfg.TracingEnabled),
		providers.WithMetricsEnabled(cfg.MetricsEnabled),
		providers.WithSamplingRate(cfg.SamplingRate),
		providers.WithEnablePrometheusMetricsPath(cfg.EnablePrometheusMetricsPath),
		providers.WithCustomAttributes(ConvertMapToAttributes(cfg.CustomAttributes)...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry providers: %w", err)
	}

	observer, err := NewToolObserver(composite.TracerProvider(), composite.MeterProvider())
	if err != nil {
		_ = composite.Shutdown(ctx)
		return nil, err
	}

	otel.SetTracerProvider(composite.TracerProvider())
	otel.SetMeterProvider(composite.MeterProvider())
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		config:            cfg,
		tracerProvider:    composite.TracerProvider(),
		meterProvider:     composite.MeterProvider(),
		prometheusHandler: composite.PrometheusHandler(),
		observer:          observer,
		shutdown:          composite.Shutdown,
	}, nil
}

// Observer returns the tool call observer to install on the registry.
func (p *Provider) Observer() *ToolObserver {
	return p.observer
}

// Shutdown flushes and stops the providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown != nil {
		return p.shutdown(ctx)
	}
	return nil
}

// TracerProvider returns the configured tracer provider.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tracerProvider
}

// MeterProvider returns the configured meter provider.
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// PrometheusHandler returns the Prometheus metrics handler, or nil when
// the /metrics path is disabled.
func (p *Provider) PrometheusHandler() http.Handler {
	return p.prometheusHandler
}

func validateOtelConfig(cfg Config) error {
	if cfg.Endpoint != "" && !cfg.TracingEnabled && !cfg.MetricsEnabled {
		return fmt.Errorf("OTLP endpoint is configured but both tracing and metrics are disabled; " +
			"either enable tracing or metrics, or remove the endpoint")
	}
	if cfg.SamplingRate < 0 || cfg.SamplingRate > 1 {
		return fmt.Errorf("sampling rate must be between 0 and 1, got %v", cfg.SamplingRate)
	}
	return nil
}
