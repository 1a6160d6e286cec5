// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package streamable

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/stacklok/toolhost/pkg/logger"
	"github.com/stacklok/toolhost/pkg/transport/session"
	"github.com/stacklok/toolhost/pkg/transport/ssecommon"
	"github.com/stacklok/toolhost/pkg/transport/types"
)

// streamSession is one streamable HTTP session. Its own Send carries
// messages that do not belong to a POST, such as those sent after the
// request that caused them was answered; they reach the client only while
// a GET stream is open.
type streamSession struct {
	*session.Base
	dispatcher types.Dispatcher

	// ctx lives as long as the session.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	events chan string

	closed    chan struct{}
	closeOnce sync.Once
}

// Send implements types.Conn.
func (s *streamSession) Send(ctx context.Context, msg *types.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	event := ssecommon.NewSSEMessage(ssecommon.EventMessage, string(data)).ToSSEString()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == nil {
		logger.Debugf("Session %s has no open stream, dropping %s", s.ID(), msg.Method)
		return nil
	}
	select {
	case s.events <- event:
		return nil
	case <-s.closed:
		return session.ErrSessionDisconnected
	case <-ctx.Done():
		return ctx.Err()
	default:
		return session.ErrMessageChannelFull
	}
}

// attach registers a GET stream. Only one may be open at a time.
func (s *streamSession) attach() (chan string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events != nil {
		return nil, false
	}
	s.events = make(chan string, eventBuffer)
	return s.events, true
}

func (s *streamSession) detach(events chan string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == events {
		s.events = nil
	}
}

// Close implements session.Session.
func (s *streamSession) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
		if s.dispatcher != nil {
			s.dispatcher.Close()
		}
	})
}

// postConn collects the messages addressed to one POST.
type postConn struct {
	messages chan *types.Message
	done     chan struct{}
	once     sync.Once
}

func newPostConn() *postConn {
	return &postConn{
		messages: make(chan *types.Message, eventBuffer),
		done:     make(chan struct{}),
	}
}

// Send implements types.Conn. Messages sent after the POST was answered
// are discarded.
func (c *postConn) Send(ctx context.Context, msg *types.Message) error {
	select {
	case c.messages <- msg:
		return nil
	case <-c.done:
		return session.ErrSessionDisconnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *postConn) close() {
	c.once.Do(func() { close(c.done) })
}
