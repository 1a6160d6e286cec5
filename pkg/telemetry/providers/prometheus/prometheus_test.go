// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestNewReader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		config      Config
		wantRuntime bool
	}{
		{name: "with runtime metrics", config: Config{IncludeRuntimeMetrics: true}, wantRuntime: true},
		{name: "without runtime metrics", config: Config{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reader, handler, err := NewReader(tt.config)
			require.NoError(t, err)
			require.NotNil(t, reader)
			require.NotNil(t, handler)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
			assert.Equal(t, http.StatusOK, rec.Code)
			if tt.wantRuntime {
				assert.Contains(t, rec.Body.String(), "go_")
				assert.Contains(t, rec.Body.String(), "process_")
			} else {
				assert.NotContains(t, rec.Body.String(), "go_goroutines")
			}
		})
	}
}

func TestNewReader_ExportsMeterData(t *testing.T) {
	t.Parallel()

	reader, handler, err := NewReader(Config{})
	require.NoError(t, err)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	counter, err := mp.Meter("test").Int64Counter("widgets")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "widgets_total")
}
