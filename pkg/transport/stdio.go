// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/jsonrpc2"

	"github.com/stacklok/toolhost/pkg/logger"
	"github.com/stacklok/toolhost/pkg/transport/errors"
	"github.com/stacklok/toolhost/pkg/transport/types"
)

// MaxStdioMessageSize bounds a Content-Length framed message.
const MaxStdioMessageSize = 64 << 20

const contentLengthHeader = "content-length:"

type framing int32

const (
	framingUnset framing = iota
	framingLine
	framingContentLength
)

// frameError reports a message whose Content-Length header could not be
// used. The session survives it.
type frameError struct {
	reason string
}

func (e *frameError) Error() string {
	return fmt.Sprintf("%s: %s", errors.ErrInvalidMessage, e.reason)
}

func (*frameError) Unwrap() error {
	return errors.ErrInvalidMessage
}

// StdioTransport serves a single session over the process's standard
// streams. Input may be newline delimited or use Content-Length headers;
// output keeps the framing of the first message for the whole session.
type StdioTransport struct {
	in      io.Reader
	out     io.Writer
	handler types.Handler

	writeMu sync.Mutex
	framing atomic.Int32

	mu         sync.Mutex
	dispatcher types.Dispatcher
	cancel     context.CancelFunc

	done       chan struct{}
	finishOnce sync.Once
}

// NewStdioTransport creates a stdio transport. Nil streams in config
// select os.Stdin and os.Stdout.
func NewStdioTransport(config types.Config) *StdioTransport {
	in, out := config.Stdin, config.Stdout
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	return &StdioTransport{
		in:      in,
		out:     out,
		handler: config.Handler,
		done:    make(chan struct{}),
	}
}

// Mode implements types.Transport.
func (*StdioTransport) Mode() types.TransportType {
	return types.TransportTypeStdio
}

// Addr implements types.Transport. stdio has no address.
func (*StdioTransport) Addr() string {
	return ""
}

// Done implements types.Transport. It is closed when input ends or the
// transport is stopped, once in-flight requests have been answered.
func (t *StdioTransport) Done() <-chan struct{} {
	return t.done
}

// Start implements types.Transport.
func (t *StdioTransport) Start(ctx context.Context) error {
	if t.handler == nil {
		return errors.ErrHandlerNotSet
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.dispatcher != nil {
		return errors.ErrTransportStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.dispatcher = t.handler.Open(t)
	go t.readLoop(runCtx, t.dispatcher)

	logger.Info("Serving MCP over stdio")
	return nil
}

// Stop implements types.Transport.
func (t *StdioTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	started := t.dispatcher != nil
	t.mu.Unlock()
	if !started {
		return errors.ErrTransportNotStarted
	}

	t.finish()
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send implements types.Conn.
func (t *StdioTransport) Send(_ context.Context, msg *types.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if framing(t.framing.Load()) == framingContentLength {
		if _, err := fmt.Fprintf(t.out, "Content-Length: %d\r\n\r\n", len(data)); err != nil {
			return err
		}
		_, err = t.out.Write(data)
		return err
	}
	_, err = t.out.Write(append(data, '\n'))
	return err
}

func (t *StdioTransport) readLoop(ctx context.Context, dispatcher types.Dispatcher) {
	defer t.finish()

	reader := bufio.NewReaderSize(t.in, 64*1024)
	for ctx.Err() == nil {
		data, err := t.readMessage(reader)
		if fe, ok := err.(*frameError); ok { //nolint:errorlint // readMessage returns it unwrapped
			logger.Debugf("Discarding malformed stdin message: %v", fe)
			t.sendParseError(ctx, fe)
			continue
		}
		if err != nil {
			if err == io.EOF {
				logger.Info("stdin closed, ending session")
			} else {
				logger.Errorf("Failed to read from stdin: %v", err)
			}
			return
		}
		dispatcher.Handle(ctx, data, t)
	}
}

func (t *StdioTransport) sendParseError(ctx context.Context, fe *frameError) {
	rpcErr := types.NewError(types.CodeParseError, "ParseError", "parse error: "+fe.reason)
	if err := t.Send(ctx, types.NewErrorResponse(jsonrpc2.ID{}, rpcErr)); err != nil {
		logger.Warnf("Failed to send parse error: %v", err)
	}
}

// latchFraming records the framing of the first message. Later messages
// do not change it.
func (t *StdioTransport) latchFraming(f framing) {
	t.framing.CompareAndSwap(int32(framingUnset), int32(f))
}

// readMessage reads one framed message. The first message fixes the
// output framing. A Content-Length header that cannot be parsed yields a
// *frameError after the rest of its header block has been consumed.
func (t *StdioTransport) readMessage(r *bufio.Reader) ([]byte, error) {
	for {
		line, err := r.ReadBytes('\n')
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			if err != nil {
				return nil, err
			}
			continue
		}

		if !hasContentLength(trimmed) {
			t.latchFraming(framingLine)
			return trimmed, nil
		}
		t.latchFraming(framingContentLength)

		length, perr := parseContentLength(trimmed)
		// Skip any further headers up to the blank separator line.
		for {
			header, err := r.ReadBytes('\n')
			if err != nil {
				return nil, err
			}
			header = bytes.TrimSpace(header)
			if len(header) == 0 {
				break
			}
			if perr == nil && hasContentLength(header) {
				length, perr = parseContentLength(header)
			}
		}
		if perr != nil {
			return nil, &frameError{reason: perr.Error()}
		}

		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
		return body, nil
	}
}

func hasContentLength(line []byte) bool {
	return len(line) >= len(contentLengthHeader) &&
		bytes.EqualFold(line[:len(contentLengthHeader)], []byte(contentLengthHeader))
}

func parseContentLength(line []byte) (int, error) {
	value := string(bytes.TrimSpace(line[len(contentLengthHeader):]))
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 || n > MaxStdioMessageSize {
		return 0, fmt.Errorf("bad Content-Length %q", value)
	}
	return n, nil
}

// finish closes the session and closes done once it has drained.
func (t *StdioTransport) finish() {
	t.finishOnce.Do(func() {
		t.mu.Lock()
		dispatcher, cancel := t.dispatcher, t.cancel
		t.mu.Unlock()

		dispatcher.Close()
		go func() {
			<-dispatcher.Done()
			cancel()
			close(t.done)
		}()
	})
}
