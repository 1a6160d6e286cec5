// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/toolhost/pkg/tools"
)

const instrumentationName = "github.com/stacklok/toolhost/pkg/telemetry"

// Metric names. The Prometheus exporter appends _total to the counter and
// the unit suffix to the histogram.
const (
	MetricToolCalls        = "toolhost_tool_calls"
	MetricToolCallDuration = "toolhost_tool_call_duration"
)

// ToolCallDurationBuckets are the histogram boundaries in seconds.
var ToolCallDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// ToolObserver records a span, a call counter and a duration histogram for
// every tool call.
type ToolObserver struct {
	tracer   trace.Tracer
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

var _ tools.Observer = (*ToolObserver)(nil)

// NewToolObserver creates the tool call instruments.
func NewToolObserver(tp trace.TracerProvider, mp metric.MeterProvider) (*ToolObserver, error) {
	meter := mp.Meter(instrumentationName)

	calls, err := meter.Int64Counter(MetricToolCalls,
		metric.WithDescription("Total number of tool calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool call counter: %w", err)
	}
	duration, err := meter.Float64Histogram(MetricToolCallDuration,
		metric.WithDescription("Duration of tool calls in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(ToolCallDurationBuckets...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool call histogram: %w", err)
	}

	return &ToolObserver{
		tracer:   tp.Tracer(instrumentationName),
		calls:    calls,
		duration: duration,
	}, nil
}

// StartCall starts a span for the call. The returned function ends it and
// records the metrics. Only the error kind is recorded, never the message.
func (o *ToolObserver) StartCall(ctx context.Context, tool string) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := o.tracer.Start(ctx, "tools/call "+tool,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(AttrToolName.String(tool)),
	)

	return ctx, func(err error) {
		outcome := Outcome(err)
		if err != nil {
			span.SetAttributes(AttrErrorKind.String(outcome))
			span.SetStatus(codes.Error, outcome)
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()

		o.calls.Add(ctx, 1, metric.WithAttributes(LabelTool.String(tool), LabelOutcome.String(outcome)))
		o.duration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(LabelTool.String(tool)))
	}
}
