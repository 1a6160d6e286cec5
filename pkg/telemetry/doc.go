// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry instrumentation for tool calls:
// a span per call, call counters and duration histograms, exported through
// a Prometheus /metrics handler and optionally through OTLP over HTTP.
package telemetry
