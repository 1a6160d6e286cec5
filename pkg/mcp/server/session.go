// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/exp/jsonrpc2"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/logger"
	"github.com/stacklok/toolhost/pkg/tools"
	"github.com/stacklok/toolhost/pkg/transport/types"
)

// Notification methods handled or emitted by the server.
const (
	NotificationInitialized = "notifications/initialized"
	NotificationCancelled   = "notifications/cancelled"
	NotificationProgress    = "notifications/progress"
)

// State is the lifecycle state of a session.
type State int32

const (
	// StateAccepted is the initial state; only initialize and ping are served.
	StateAccepted State = iota
	// StateNegotiating follows a successful initialize.
	StateNegotiating
	// StateReady follows the initialized notification.
	StateReady
	// StateClosed is terminal.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAccepted:
		return "accepted"
	case StateNegotiating:
		return "negotiating"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is one client's protocol session.
type Session struct {
	id     string
	server *Server
	conn   types.Conn

	state           atomic.Int32
	protocolVersion atomic.Value

	mu       sync.Mutex
	inflight map[string]*call
	wg       sync.WaitGroup

	done      chan struct{}
	closeOnce sync.Once
}

// call tracks one in-flight request.
type call struct {
	method string
	cancel context.CancelCauseFunc

	mu        sync.Mutex
	cancelled bool
	finished  bool
}

// NewSession opens a session whose unsolicited messages go to conn.
func (s *Server) NewSession(conn types.Conn) *Session {
	return &Session{
		id:       uuid.NewString(),
		server:   s,
		conn:     conn,
		inflight: make(map[string]*call),
		done:     make(chan struct{}),
	}
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// ProtocolVersion returns the negotiated protocol version, or an empty
// string before initialize.
func (s *Session) ProtocolVersion() string {
	v, _ := s.protocolVersion.Load().(string)
	return v
}

// Done is closed once the session is closed and its requests have finished.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close moves the session to StateClosed and cancels in-flight requests.
// Messages handled afterwards are dropped.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))

		s.mu.Lock()
		pending := make([]*call, 0, len(s.inflight))
		for _, c := range s.inflight {
			pending = append(pending, c)
		}
		s.mu.Unlock()

		for _, c := range pending {
			c.abort(hosterr.New(hosterr.KindRequestCancelled, "session closed", nil))
		}
		logger.Debugf("Session %s closed with %d requests in flight", s.id, len(pending))

		go func() {
			s.wg.Wait()
			close(s.done)
		}()
	})
}

// Handle processes one raw message. initialize and notifications are
// handled before Handle returns; other requests run concurrently and send
// their response to out when they complete.
func (s *Session) Handle(ctx context.Context, data []byte, out types.Conn) {
	if s.State() == StateClosed {
		logger.Debugf("Session %s is closed, dropping message", s.id)
		return
	}
	if out == nil {
		out = s.conn
	}

	msg, rpcErr := types.Decode(data)
	if rpcErr != nil {
		logger.Debugf("Session %s received a malformed message: %s", s.id, rpcErr.Message)
		s.send(ctx, out, types.NewErrorResponse(jsonrpc2.ID{}, rpcErr))
		return
	}

	switch m := msg.(type) {
	case *jsonrpc2.Response:
		logger.Debugf("Session %s ignoring client response %v", s.id, m.ID.Raw())
	case *jsonrpc2.Request:
		if !m.ID.IsValid() {
			s.handleNotification(m)
			return
		}
		s.handleRequest(ctx, m, out)
	}
}

func (s *Session) handleNotification(req *jsonrpc2.Request) {
	switch req.Method {
	case NotificationInitialized:
		if s.state.CompareAndSwap(int32(StateNegotiating), int32(StateReady)) {
			logger.Debugf("Session %s is ready (protocol %s)", s.id, s.ProtocolVersion())
		}
	case NotificationCancelled:
		s.handleCancelled(req.Params)
	default:
		logger.Debugf("Session %s ignoring notification %s", s.id, req.Method)
	}
}

func (s *Session) handleRequest(ctx context.Context, req *jsonrpc2.Request, out types.Conn) {
	state := s.State()

	if req.Method == string(mcp.MethodInitialize) {
		if state != StateAccepted {
			s.reply(ctx, out, req.ID, nil, types.NewError(types.CodeInvalidRequest, "InvalidRequest",
				"session is already initialized"))
			return
		}
		result, err := s.initialize(req.Params)
		s.reply(ctx, out, req.ID, result, err)
		return
	}

	if state == StateAccepted && req.Method != string(mcp.MethodPing) {
		s.reply(ctx, out, req.ID, nil, types.NewError(types.CodeInvalidRequest, KindSessionNotInitialized,
			"session is not initialized: send initialize first"))
		return
	}

	handler, ok := s.server.methods[req.Method]
	if !ok {
		s.reply(ctx, out, req.ID, nil, types.NewError(types.CodeMethodNotFound, KindMethodNotFound,
			"method not found: "+req.Method))
		return
	}

	s.dispatch(ctx, req, handler, out)
}

// dispatch runs handler on its own goroutine under a per-request context
// carrying the request timeout and a cancel cause.
func (s *Session) dispatch(ctx context.Context, req *jsonrpc2.Request, handler methodHandler, out types.Conn) {
	key := types.IDKey(req.ID)
	cancelCtx, cancel := context.WithCancelCause(ctx)
	c := &call{method: req.Method, cancel: cancel}

	s.mu.Lock()
	if s.State() == StateClosed {
		s.mu.Unlock()
		cancel(nil)
		return
	}
	if _, dup := s.inflight[key]; dup {
		s.mu.Unlock()
		cancel(nil)
		s.reply(ctx, out, req.ID, nil, types.NewError(types.CodeInvalidRequest, "InvalidRequest",
			"a request with this id is already in flight"))
		return
	}
	s.inflight[key] = c
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer cancel(nil)
		defer s.forget(key, c)

		timeout := s.server.config.ToolTimeout
		reqCtx, stop := context.WithTimeoutCause(cancelCtx, timeout,
			hosterr.Newf(hosterr.KindRequestTimeout, nil, "request %s timed out after %s", req.Method, timeout).
				WithDetails(map[string]any{"timeout": timeout.String()}))
		defer stop()

		if token, ok := progressToken(req.Params); ok {
			reqCtx = tools.WithProgress(reqCtx, func(progress, total float64, message string) {
				c.notify(ctx, out, progressNotification(token, progress, total, message))
			})
		}

		result, err := invoke(reqCtx, handler, req.Params)
		c.finish(func() {
			s.reply(ctx, out, req.ID, result, err)
		})
	}()
}

type outcome struct {
	result any
	err    error
}

// invoke runs handler and abandons it when ctx is done first, so a tool
// that ignores its context cannot hold the response back.
func invoke(ctx context.Context, handler methodHandler, params json.RawMessage) (any, error) {
	ch := make(chan outcome, 1)
	go func() {
		result, err := handler(ctx, params)
		ch <- outcome{result: result, err: err}
	}()

	select {
	case o := <-ch:
		if o.err == nil && ctx.Err() != nil {
			return nil, context.Cause(ctx)
		}
		return o.result, o.err
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

func (s *Session) forget(key string, c *call) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[key] == c {
		delete(s.inflight, key)
	}
}

type cancelledParams struct {
	RequestID any    `json:"requestId"`
	Reason    string `json:"reason,omitempty"`
}

func (s *Session) handleCancelled(params json.RawMessage) {
	var p cancelledParams
	if err := decodeParams(params, &p); err != nil {
		logger.Debugf("Session %s received an invalid cancellation: %v", s.id, err)
		return
	}
	key, ok := requestKey(p.RequestID)
	if !ok {
		logger.Debugf("Session %s received a cancellation without a usable request id", s.id)
		return
	}

	s.mu.Lock()
	c, found := s.inflight[key]
	s.mu.Unlock()
	if !found {
		logger.Debugf("Session %s: cancellation for unknown request %s", s.id, key)
		return
	}

	msg := "request cancelled by client"
	if p.Reason != "" {
		msg += ": " + p.Reason
	}
	logger.Debugf("Session %s cancelling %s request %s", s.id, c.method, key)
	c.abort(hosterr.New(hosterr.KindRequestCancelled, msg, nil).
		WithDetails(map[string]any{"reason": p.Reason}))
}

// requestKey maps a requestId from a cancellation to the key used for the
// in-flight map.
func requestKey(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return types.IDKey(jsonrpc2.StringID(v)), true
	case json.Number:
		n, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil {
				return "", false
			}
			n = int64(f)
		}
		return types.IDKey(jsonrpc2.Int64ID(n)), true
	case float64:
		return types.IDKey(jsonrpc2.Int64ID(int64(v))), true
	default:
		return "", false
	}
}

// abort stops progress reporting for the call and cancels it with cause.
func (c *call) abort(cause error) {
	c.mu.Lock()
	c.cancelled = true
	c.mu.Unlock()
	c.cancel(cause)
}

// notify sends a request-scoped notification unless the call has been
// cancelled or has already been answered.
func (c *call) notify(ctx context.Context, out types.Conn, msg *types.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelled || c.finished {
		return
	}
	if err := out.Send(ctx, msg); err != nil {
		logger.Debugf("Failed to send %s: %v", msg.Method, err)
	}
}

// finish marks the call answered and sends the response while holding the
// lock so that no notification can follow it.
func (c *call) finish(send func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished = true
	send()
}

func (s *Session) reply(ctx context.Context, out types.Conn, id jsonrpc2.ID, result any, err error) {
	if err != nil {
		rpcErr := toRPCError(err)
		logger.Debugf("Session %s request %v failed: %s", s.id, id.Raw(), rpcErr.Data.Kind)
		s.send(ctx, out, types.NewErrorResponse(id, rpcErr))
		return
	}
	s.send(ctx, out, types.NewResponse(id, result))
}

func (s *Session) send(ctx context.Context, out types.Conn, msg *types.Message) {
	if out == nil {
		return
	}
	if err := out.Send(context.WithoutCancel(ctx), msg); err != nil {
		logger.Warnf("Session %s failed to send message: %v", s.id, err)
	}
}
