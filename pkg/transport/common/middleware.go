// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package common provides the HTTP plumbing shared by the SSE and
// streamable HTTP transports.
package common

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/toolhost/pkg/logger"
	"github.com/stacklok/toolhost/pkg/transport/types"
)

// ApplyMiddlewares applies a chain of middlewares to an HTTP handler.
// Middlewares are applied in reverse order (last middleware is applied first)
// so that the first middleware in the slice is the outermost handler.
func ApplyMiddlewares(handler http.Handler, middlewares ...types.NamedMiddleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i].Function(handler)
	}
	return handler
}

// LoggingMiddleware logs one debug line per HTTP request.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debugw("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
