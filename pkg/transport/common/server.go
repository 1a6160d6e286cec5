// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stacklok/toolhost/pkg/logger"
)

// DefaultReadHeaderTimeout is the default timeout for reading request headers.
const DefaultReadHeaderTimeout = 10 * time.Second

// ServerConfig holds configuration for creating an HTTP server.
type ServerConfig struct {
	Host              string
	Port              int
	Handler           http.Handler
	ReadHeaderTimeout time.Duration
}

// NewHTTPServer creates a new HTTP server with standard security settings.
func NewHTTPServer(config ServerConfig) *http.Server {
	if config.ReadHeaderTimeout == 0 {
		config.ReadHeaderTimeout = DefaultReadHeaderTimeout
	}

	return &http.Server{
		Addr:              net.JoinHostPort(config.Host, fmt.Sprint(config.Port)),
		Handler:           config.Handler,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
	}
}

// Server is a running HTTP server.
type Server struct {
	srv  *http.Server
	addr string
	done chan struct{}
}

// Serve listens on the configured address and serves in the background.
// Port zero picks a free port; Addr reports the one chosen.
func Serve(config ServerConfig) (*Server, error) {
	srv := NewHTTPServer(config)
	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}

	s := &Server{
		srv:  srv,
		addr: listener.Addr().String(),
		done: make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("HTTP server error: %v", err)
		}
	}()
	return s, nil
}

// Addr returns the address the server listens on.
func (s *Server) Addr() string {
	return s.addr
}

// Done is closed when the server stops serving.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// NewRouter creates a chi router with the request id and panic recovery
// middlewares every transport installs.
func NewRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer, LoggingMiddleware)
	return r
}

// MountHealthCheck adds a health check endpoint to the router.
func MountHealthCheck(r chi.Router, healthChecker http.Handler) {
	if healthChecker != nil {
		r.Method(http.MethodGet, "/health", healthChecker)
	}
}

// MountMetrics adds a Prometheus metrics endpoint to the router.
// Returns true if the handler was non-nil and mounted.
func MountMetrics(r chi.Router, metricsHandler http.Handler) bool {
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
		logger.Info("Prometheus metrics endpoint enabled at /metrics")
		return true
	}
	return false
}

// HealthStatus is the body served at /health.
type HealthStatus struct {
	Status    string `json:"status"`
	Transport string `json:"transport"`
	Sessions  int    `json:"sessions"`
}

// HealthHandler reports the transport as healthy along with its open
// session count.
func HealthHandler(transport string, sessions func() int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		status := HealthStatus{Status: "ok", Transport: transport, Sessions: sessions()}
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.Warnf("Failed to write health status: %v", err)
		}
	})
}
