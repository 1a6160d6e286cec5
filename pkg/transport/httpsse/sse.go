// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package httpsse implements the legacy HTTP+SSE transport: clients hold a
// GET event stream open and POST their messages to the endpoint announced
// on it.
package httpsse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/stacklok/toolhost/pkg/logger"
	"github.com/stacklok/toolhost/pkg/transport/common"
	"github.com/stacklok/toolhost/pkg/transport/errors"
	"github.com/stacklok/toolhost/pkg/transport/session"
	"github.com/stacklok/toolhost/pkg/transport/ssecommon"
	"github.com/stacklok/toolhost/pkg/transport/types"
)

// MaxMessageSize bounds the body of a POSTed message.
const MaxMessageSize = 4 << 20

const eventBuffer = 100

// Transport serves MCP over HTTP+SSE.
//
//nolint:revive // Intentionally named Transport despite package name
type Transport struct {
	host              string
	port              int
	handler           types.Handler
	middlewares       []types.NamedMiddleware
	prometheusHandler http.Handler
	keepAlive         time.Duration

	sessions *session.Manager
	router   chi.Router

	mu       sync.Mutex
	server   *common.Server
	done     chan struct{}
	stopOnce sync.Once
}

// New creates an SSE transport. It does not listen until Start is called.
func New(config types.Config) *Transport {
	keepAlive := config.KeepAliveInterval
	if keepAlive <= 0 {
		keepAlive = ssecommon.DefaultKeepAliveInterval
	}
	t := &Transport{
		host:              config.Host,
		port:              config.Port,
		handler:           config.Handler,
		middlewares:       config.Middlewares,
		prometheusHandler: config.PrometheusHandler,
		keepAlive:         keepAlive,
		sessions:          session.NewManager(config.SessionTTL),
		done:              make(chan struct{}),
	}
	t.router = t.routes()
	return t
}

func (t *Transport) routes() chi.Router {
	r := common.NewRouter()
	r.Method(http.MethodGet, ssecommon.HTTPSSEEndpoint,
		common.ApplyMiddlewares(http.HandlerFunc(t.handleSSEConnection), t.middlewares...))
	r.Method(http.MethodPost, ssecommon.HTTPMessagesEndpoint,
		common.ApplyMiddlewares(http.HandlerFunc(t.handlePostRequest), t.middlewares...))
	common.MountHealthCheck(r, common.HealthHandler(types.TransportTypeSSE.String(), t.sessions.Count))
	common.MountMetrics(r, t.prometheusHandler)
	return r
}

// Mode implements types.Transport.
func (*Transport) Mode() types.TransportType {
	return types.TransportTypeSSE
}

// Handler returns the HTTP handler serving the transport endpoints.
func (t *Transport) Handler() http.Handler {
	return t.router
}

// Addr implements types.Transport.
func (t *Transport) Addr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.server == nil {
		return ""
	}
	return t.server.Addr()
}

// Done implements types.Transport.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Start implements types.Transport.
func (t *Transport) Start(_ context.Context) error {
	if t.handler == nil {
		return errors.ErrHandlerNotSet
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.server != nil {
		return errors.ErrTransportStarted
	}

	server, err := common.Serve(common.ServerConfig{Host: t.host, Port: t.port, Handler: t.router})
	if err != nil {
		return err
	}
	t.server = server
	logger.Infof("SSE endpoint: http://%s%s", server.Addr(), ssecommon.HTTPSSEEndpoint)
	logger.Infof("JSON-RPC endpoint: http://%s%s", server.Addr(), ssecommon.HTTPMessagesEndpoint)
	return nil
}

// Stop implements types.Transport. Open sessions are closed, which cancels
// their in-flight requests.
func (t *Transport) Stop(ctx context.Context) error {
	t.mu.Lock()
	server := t.server
	t.mu.Unlock()
	if server == nil {
		return errors.ErrTransportNotStarted
	}

	var err error
	t.stopOnce.Do(func() {
		t.sessions.Stop()
		err = server.Shutdown(ctx)
		close(t.done)
	})
	return err
}

// sseSession is one connected event stream.
type sseSession struct {
	*session.Base
	dispatcher types.Dispatcher

	// ctx lives as long as the event stream.
	ctx    context.Context
	cancel context.CancelFunc

	sendMu    sync.Mutex
	events    chan string
	closed    chan struct{}
	closeOnce sync.Once
}

// Send implements types.Conn by queueing msg on the event stream.
func (s *sseSession) Send(ctx context.Context, msg *types.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	event := ssecommon.NewSSEMessage(ssecommon.EventMessage, string(data)).ToSSEString()

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	select {
	case s.events <- event:
		return nil
	case <-s.closed:
		return session.ErrSessionDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements session.Session.
func (s *sseSession) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
		if s.dispatcher != nil {
			s.dispatcher.Close()
		}
	})
}

// handleSSEConnection handles an SSE connection.
func (t *Transport) handleSSEConnection(w http.ResponseWriter, r *http.Request) {
	flusher, err := common.GetFlusher(w)
	if err != nil {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess := &sseSession{
		Base:   session.NewBase(uuid.NewString()),
		ctx:    ctx,
		cancel: cancel,
		events: make(chan string, eventBuffer),
		closed: make(chan struct{}),
	}
	sess.dispatcher = t.handler.Open(sess)
	if err := t.sessions.Add(sess); err != nil {
		logger.Errorf("Failed to add SSE session: %v", err)
		sess.Close()
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	defer t.sessions.Delete(sess.ID())
	logger.Infof("SSE client connected: session %s", sess.ID())

	common.SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	endpoint := fmt.Sprintf("%s?%s=%s", ssecommon.HTTPMessagesEndpoint, ssecommon.SessionIDParam, sess.ID())
	if _, err := io.WriteString(w, ssecommon.NewSSEMessage(ssecommon.EventEndpoint, endpoint).ToSSEString()); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(t.keepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Infof("SSE client disconnected: session %s", sess.ID())
			return
		case <-sess.closed:
			return
		case event := <-sess.events:
			if _, err := io.WriteString(w, event); err != nil {
				logger.Debugf("Failed to write to session %s: %v", sess.ID(), err)
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if err := ssecommon.WriteKeepAlive(w); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handlePostRequest hands a POSTed message to the session named by the
// session_id query parameter. Responses travel over the event stream.
func (t *Transport) handlePostRequest(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get(ssecommon.SessionIDParam)
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	found, ok := t.sessions.Get(sessionID)
	if !ok {
		http.Error(w, "Could not find session", http.StatusNotFound)
		return
	}
	sess, ok := found.(*sseSession)
	if !ok {
		http.Error(w, "Could not find session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxMessageSize))
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	sess.dispatcher.Handle(sess.ctx, body, sess)

	w.WriteHeader(http.StatusAccepted)
	if _, err := w.Write([]byte("Accepted")); err != nil {
		logger.Warnf("Failed to write response: %v", err)
	}
}
