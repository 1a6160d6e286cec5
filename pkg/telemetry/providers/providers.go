// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package providers builds the OpenTelemetry tracer and meter providers
// from a telemetry configuration.
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/stacklok/toolhost/pkg/logger"
	"github.com/stacklok/toolhost/pkg/telemetry/providers/otlp"
	"github.com/stacklok/toolhost/pkg/telemetry/providers/prometheus"
)

// Config holds the telemetry configuration for all providers.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// OTLP export, used when OTLPEndpoint is set
	OTLPEndpoint   string
	Headers        map[string]string
	Insecure       bool
	TracingEnabled bool
	MetricsEnabled bool
	SamplingRate   float64

	// EnablePrometheusMetricsPath enables the Prometheus /metrics handler
	EnablePrometheusMetricsPath bool

	// CustomAttributes are added to the telemetry resource
	CustomAttributes []attribute.KeyValue
}

// ProviderOption configures the telemetry providers.
type ProviderOption func(*Config) error

// WithServiceName sets the service name
func WithServiceName(serviceName string) ProviderOption {
	return func(config *Config) error {
		if serviceName == "" {
			return fmt.Errorf("service name cannot be empty")
		}
		config.ServiceName = serviceName
		return nil
	}
}

// WithServiceVersion sets the service version
func WithServiceVersion(serviceVersion string) ProviderOption {
	return func(config *Config) error {
		if serviceVersion == "" {
			return fmt.Errorf("service version cannot be empty")
		}
		config.ServiceVersion = serviceVersion
		return nil
	}
}

// WithOTLPEndpoint sets the OTLP endpoint
func WithOTLPEndpoint(endpoint string) ProviderOption {
	return func(config *Config) error {
		config.OTLPEndpoint = endpoint
		return nil
	}
}

// WithHeaders sets the OTLP headers
func WithHeaders(headers map[string]string) ProviderOption {
	return func(config *Config) error {
		config.Headers = headers
		return nil
	}
}

// WithInsecure sets the insecure flag
func WithInsecure(insecure bool) ProviderOption {
	return func(config *Config) error {
		config.Insecure = insecure
		return nil
	}
}

// WithTracingEnabled sets the tracing enabled flag
func WithTracingEnabled(tracingEnabled bool) ProviderOption {
	return func(config *Config) error {
		config.TracingEnabled = tracingEnabled
		return nil
	}
}

// WithMetricsEnabled sets the metrics enabled flag
func WithMetricsEnabled(metricsEnabled bool) ProviderOption {
	return func(config *Config) error {
		config.MetricsEnabled = metricsEnabled
		return nil
	}
}

// WithSamplingRate sets the trace sampling rate
func WithSamplingRate(samplingRate float64) ProviderOption {
	return func(config *Config) error {
		if samplingRate < 0 || samplingRate > 1 {
			return fmt.Errorf("sampling rate must be between 0 and 1, got %v", samplingRate)
		}
		config.SamplingRate = samplingRate
		return nil
	}
}

// WithEnablePrometheusMetricsPath sets the Prometheus handler flag
func WithEnablePrometheusMetricsPath(enable bool) ProviderOption {
	return func(config *Config) error {
		config.EnablePrometheusMetricsPath = enable
		return nil
	}
}

// WithCustomAttributes adds resource attributes
func WithCustomAttributes(attrs ...attribute.KeyValue) ProviderOption {
	return func(config *Config) error {
		config.CustomAttributes = append(config.CustomAttributes, attrs...)
		return nil
	}
}

// CompositeProvider combines the tracer provider, meter provider and
// Prometheus handler built from one Config.
type CompositeProvider struct {
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider
	prometheusHandler http.Handler
	shutdownFuncs     []func(context.Context) error
}

// NewCompositeProvider creates the providers selected by options. Tracing
// needs an OTLP endpoint; metrics are collected when either the Prometheus
// handler or OTLP metrics are enabled. Everything else is a no-op.
func NewCompositeProvider(ctx context.Context, options ...ProviderOption) (*CompositeProvider, error) {
	config := Config{SamplingRate: 1}
	for _, option := range options {
		if err := option(&config); err != nil {
			return nil, err
		}
	}

	otlpTracing := config.OTLPEndpoint != "" && config.TracingEnabled
	otlpMetrics := config.OTLPEndpoint != "" && config.MetricsEnabled
	if !otlpTracing && !otlpMetrics && !config.EnablePrometheusMetricsPath {
		logger.Debugf("No telemetry configured, using no-op providers")
		return &CompositeProvider{
			tracerProvider: tracenoop.NewTracerProvider(),
			meterProvider:  noop.NewMeterProvider(),
		}, nil
	}

	attrs := append([]attribute.KeyValue{
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
	}, config.CustomAttributes...)
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource with service name '%s' and version '%s': %w",
			config.ServiceName, config.ServiceVersion, err)
	}

	composite := &CompositeProvider{}
	if err := composite.buildMeterProvider(ctx, config, otlpMetrics, res); err != nil {
		return nil, err
	}
	if err := composite.buildTracerProvider(ctx, config, otlpTracing, res); err != nil {
		_ = composite.Shutdown(ctx)
		return nil, err
	}

	logger.Infof("Telemetry providers created (otlp tracing: %t, otlp metrics: %t, prometheus: %t)",
		otlpTracing, otlpMetrics, config.EnablePrometheusMetricsPath)
	return composite, nil
}

func (c *CompositeProvider) buildMeterProvider(
	ctx context.Context,
	config Config,
	otlpMetrics bool,
	res *resource.Resource,
) error {
	var readers []sdkmetric.Option
	if config.EnablePrometheusMetricsPath {
		reader, handler, err := prometheus.NewReader(prometheus.Config{IncludeRuntimeMetrics: true})
		if err != nil {
			return fmt.Errorf("failed to create prometheus reader: %w", err)
		}
		readers = append(readers, sdkmetric.WithReader(reader))
		c.prometheusHandler = handler
	}
	if otlpMetrics {
		reader, err := otlp.NewMetricReader(ctx, otlpConfig(config))
		if err != nil {
			return fmt.Errorf("failed to create meter provider with endpoint %s: %w", config.OTLPEndpoint, err)
		}
		readers = append(readers, sdkmetric.WithReader(reader))
	}
	if len(readers) == 0 {
		c.meterProvider = noop.NewMeterProvider()
		return nil
	}

	mp := sdkmetric.NewMeterProvider(append(readers, sdkmetric.WithResource(res))...)
	c.meterProvider = mp
	c.shutdownFuncs = append(c.shutdownFuncs, mp.Shutdown)
	return nil
}

func (c *CompositeProvider) buildTracerProvider(
	ctx context.Context,
	config Config,
	otlpTracing bool,
	res *resource.Resource,
) error {
	if !otlpTracing {
		c.tracerProvider = tracenoop.NewTracerProvider()
		return nil
	}
	tp, shutdown, err := otlp.NewTracerProvider(ctx, otlpConfig(config), res)
	if err != nil {
		return fmt.Errorf("failed to create tracer provider with endpoint %s: %w", config.OTLPEndpoint, err)
	}
	c.tracerProvider = tp
	c.shutdownFuncs = append(c.shutdownFuncs, shutdown)
	return nil
}

func otlpConfig(config Config) otlp.Config {
	return otlp.Config{
		Endpoint:     config.OTLPEndpoint,
		Headers:      config.Headers,
		Insecure:     config.Insecure,
		SamplingRate: config.SamplingRate,
	}
}

// TracerProvider returns the tracer provider.
func (c *CompositeProvider) TracerProvider() trace.TracerProvider {
	return c.tracerProvider
}

// MeterProvider returns the meter provider.
func (c *CompositeProvider) MeterProvider() metric.MeterProvider {
	return c.meterProvider
}

// PrometheusHandler returns the /metrics handler, or nil when Prometheus
// is disabled.
func (c *CompositeProvider) PrometheusHandler() http.Handler {
	return c.prometheusHandler
}

// Shutdown flushes and stops every provider.
func (c *CompositeProvider) Shutdown(ctx context.Context) error {
	var errs []error
	for _, shutdown := range c.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
