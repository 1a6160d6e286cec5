// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetSSEHeaders(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rec.Header().Set("Content-Type", "application/json")
	rec.Header().Set("Cache-Control", "max-age=3600")

	SetSSEHeaders(rec)

	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "keep-alive", rec.Header().Get("Connection"))
}

func TestGetFlusher(t *testing.T) {
	t.Parallel()

	flusher, err := GetFlusher(httptest.NewRecorder())
	require.NoError(t, err)
	assert.NotNil(t, flusher)

	type nonFlushableWriter struct {
		http.ResponseWriter
	}
	flusher, err = GetFlusher(&nonFlushableWriter{ResponseWriter: httptest.NewRecorder()})
	assert.Nil(t, flusher)
	assert.EqualError(t, err, "response writer does not support flushing")
}
