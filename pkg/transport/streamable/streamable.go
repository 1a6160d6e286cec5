// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package streamable implements the streamable HTTP transport: every client
// message is POSTed to a single endpoint, responses come back as JSON or as
// a short event stream, and an optional GET stream carries unsolicited
// notifications.
package streamable

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/exp/jsonrpc2"

	"github.com/stacklok/toolhost/pkg/logger"
	"github.com/stacklok/toolhost/pkg/transport/common"
	"github.com/stacklok/toolhost/pkg/transport/errors"
	"github.com/stacklok/toolhost/pkg/transport/session"
	"github.com/stacklok/toolhost/pkg/transport/ssecommon"
	"github.com/stacklok/toolhost/pkg/transport/types"
)

const (
	// HTTPStreamableHTTPEndpoint is the endpoint for Streamable HTTP connections
	HTTPStreamableHTTPEndpoint = "/mcp"

	// SessionIDHeader carries the session id assigned on initialize.
	SessionIDHeader = "Mcp-Session-Id"

	// MaxMessageSize bounds the body of a POSTed message.
	MaxMessageSize = 4 << 20

	eventBuffer = 100
)

// Transport serves MCP over streamable HTTP.
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

// New creates a streamable HTTP transport. It does not listen until Start
// is called.
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
	r.Group(func(r chi.Router) {
		for _, mw := range t.middlewares {
			r.Use(mw.Function)
		}
		r.Post(HTTPStreamableHTTPEndpoint, t.handlePost)
		r.Get(HTTPStreamableHTTPEndpoint, t.handleGet)
		r.Delete(HTTPStreamableHTTPEndpoint, t.handleDelete)
	})
	common.MountHealthCheck(r, common.HealthHandler(types.TransportTypeStreamableHTTP.String(), t.sessions.Count))
	common.MountMetrics(r, t.prometheusHandler)
	return r
}

// Mode implements types.Transport.
func (*Transport) Mode() types.TransportType {
	return types.TransportTypeStreamableHTTP
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
	logger.Infof("Streamable HTTP endpoint: http://%s%s", server.Addr(), HTTPStreamableHTTPEndpoint)
	return nil
}

// Stop implements types.Transport.
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

// handlePost serves one client message.
func (t *Transport) handlePost(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxMessageSize))
	if err != nil {
		http.Error(w, "Error reading request body", http.StatusBadRequest)
		return
	}

	msg, rpcErr := types.Decode(body)
	if rpcErr != nil {
		logger.Debugf("Rejecting malformed message: %s", rpcErr.Message)
		writeJSON(w, http.StatusBadRequest, types.NewErrorResponse(jsonrpc2.ID{}, rpcErr))
		return
	}

	sess, status, ok := t.sessionFor(w, r, msg)
	if !ok {
		http.Error(w, http.StatusText(status), status)
		return
	}

	if !types.IsCall(msg) {
		sess.dispatcher.Handle(sess.ctx, body, sess)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	out := newPostConn()
	defer out.close()
	sess.dispatcher.Handle(r.Context(), body, out)

	if wantsEventStream(r) {
		t.streamResponse(w, r, sess, out)
		return
	}

	for {
		select {
		case m := <-out.messages:
			if m.IsResponse() {
				writeJSON(w, http.StatusOK, m)
				return
			}
		case <-r.Context().Done():
			return
		case <-sess.closed:
			http.Error(w, "session closed", http.StatusNotFound)
			return
		}
	}
}

// sessionFor resolves the session of a POST. An initialize request
// without a session header creates one.
func (t *Transport) sessionFor(w http.ResponseWriter, r *http.Request, msg jsonrpc2.Message) (*streamSession, int, bool) {
	id := r.Header.Get(SessionIDHeader)
	if id == "" {
		req, ok := msg.(*jsonrpc2.Request)
		if !ok || req.Method != string(mcp.MethodInitialize) {
			return nil, http.StatusBadRequest, false
		}
		sess := t.newSession()
		if err := t.sessions.Add(sess); err != nil {
			logger.Errorf("Failed to add session: %v", err)
			sess.Close()
			return nil, http.StatusInternalServerError, false
		}
		w.Header().Set(SessionIDHeader, sess.ID())
		logger.Infof("Streamable HTTP session %s created", sess.ID())
		return sess, 0, true
	}

	found, ok := t.sessions.Get(id)
	if !ok {
		return nil, http.StatusNotFound, false
	}
	sess, ok := found.(*streamSession)
	if !ok {
		return nil, http.StatusNotFound, false
	}
	w.Header().Set(SessionIDHeader, sess.ID())
	return sess, 0, true
}

func (t *Transport) newSession() *streamSession {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &streamSession{
		Base:   session.NewBase(uuid.NewString()),
		ctx:    ctx,
		cancel: cancel,
		closed: make(chan struct{}),
	}
	sess.dispatcher = t.handler.Open(sess)
	return sess
}

// streamResponse writes the request's notifications followed by its
// response as an event stream.
func (*Transport) streamResponse(w http.ResponseWriter, r *http.Request, sess *streamSession, out *postConn) {
	flusher, err := common.GetFlusher(w)
	if err != nil {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}
	common.SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case m := <-out.messages:
			data, err := json.Marshal(m)
			if err != nil {
				logger.Errorf("Failed to encode message: %v", err)
				return
			}
			if _, err := io.WriteString(w, ssecommon.NewSSEMessage(ssecommon.EventMessage, string(data)).ToSSEString()); err != nil {
				return
			}
			flusher.Flush()
			if m.IsResponse() {
				return
			}
		case <-r.Context().Done():
			return
		case <-sess.closed:
			return
		}
	}
}

// handleGet opens the stream for messages that do not belong to a request.
func (t *Transport) handleGet(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		http.Error(w, "Accept must include text/event-stream", http.StatusNotAcceptable)
		return
	}
	found, ok := t.sessions.Get(r.Header.Get(SessionIDHeader))
	if !ok {
		http.Error(w, "Could not find session", http.StatusNotFound)
		return
	}
	sess := found.(*streamSession)
	flusher, err := common.GetFlusher(w)
	if err != nil {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	events, ok := sess.attach()
	if !ok {
		http.Error(w, "A stream is already open for this session", http.StatusConflict)
		return
	}
	defer sess.detach(events)

	common.SetSSEHeaders(w)
	w.Header().Set(SessionIDHeader, sess.ID())
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(t.keepAlive)
	defer keepAlive.Stop()
	for {
		select {
		case event := <-events:
			if _, err := io.WriteString(w, event); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if err := ssecommon.WriteKeepAlive(w); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-sess.closed:
			return
		}
	}
}

// handleDelete terminates a session.
func (t *Transport) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(SessionIDHeader)
	if id == "" {
		http.Error(w, "Mcp-Session-Id is required", http.StatusBadRequest)
		return
	}
	if !t.sessions.Delete(id) {
		http.Error(w, "Could not find session", http.StatusNotFound)
		return
	}
	logger.Infof("Streamable HTTP session %s terminated by client", id)
	w.WriteHeader(http.StatusNoContent)
}

// wantsEventStream reports whether the client accepts only event streams.
func wantsEventStream(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/event-stream") && !strings.Contains(accept, "application/json")
}

func writeJSON(w http.ResponseWriter, status int, msg *types.Message) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(msg); err != nil {
		logger.Warnf("Failed to write response: %v", err)
	}
}
