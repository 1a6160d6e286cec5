// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/exp/jsonrpc2"
)

// JSONRPCVersion is the only protocol version tag accepted on the wire.
const JSONRPCVersion = "2.0"

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Message is an outbound JSON-RPC message: a response when ID is set and
// Method is empty, a notification otherwise.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  any             `json:"params,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object. Data carries the machine readable kind.
type Error struct {
	Code    int        `json:"code"`
	Message string     `json:"message"`
	Data    *ErrorData `json:"data,omitempty"`
}

// ErrorData is the data member of an Error.
type ErrorData struct {
	Kind    string `json:"kind"`
	Details any    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError creates an error object with the given code and kind.
func NewError(code int, kind, message string) *Error {
	return &Error{Code: code, Message: message, Data: &ErrorData{Kind: kind}}
}

// IsResponse reports whether m is a response.
func (m *Message) IsResponse() bool {
	return m.Method == "" && m.ID != nil
}

// NewResponse creates a success response for id.
func NewResponse(id jsonrpc2.ID, result any) *Message {
	return &Message{JSONRPC: JSONRPCVersion, ID: EncodeID(id), Result: result}
}

// NewErrorResponse creates an error response for id. An invalid id is
// encoded as null, as required for errors detected before the id is known.
func NewErrorResponse(id jsonrpc2.ID, err *Error) *Message {
	return &Message{JSONRPC: JSONRPCVersion, ID: EncodeID(id), Error: err}
}

// NewNotification creates a notification.
func NewNotification(method string, params any) *Message {
	return &Message{JSONRPC: JSONRPCVersion, Method: method, Params: params}
}

// EncodeID renders id for the wire.
func EncodeID(id jsonrpc2.ID) json.RawMessage {
	if !id.IsValid() {
		return json.RawMessage("null")
	}
	data, err := json.Marshal(id.Raw())
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}

// IDKey returns a stable string key for a jsonrpc2.ID. Numeric and string
// ids are prefixed so that 1 and "1" do not collide.
func IDKey(id jsonrpc2.ID) string {
	switch v := id.Raw().(type) {
	case string:
		return "s:" + v
	case int64:
		return fmt.Sprintf("n:%d", v)
	case nil:
		return "nil"
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

// Decode parses one inbound message. Malformed JSON yields a parse error;
// well formed JSON that is not a JSON-RPC 2.0 message yields an invalid
// request error.
func Decode(data []byte) (jsonrpc2.Message, *Error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, NewError(CodeParseError, "ParseError", "parse error: message is not valid JSON")
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return nil, NewError(CodeInvalidRequest, "InvalidRequest", "batch requests are not supported")
	}
	msg, err := jsonrpc2.DecodeMessage(trimmed)
	if err != nil {
		return nil, NewError(CodeInvalidRequest, "InvalidRequest", "invalid JSON-RPC 2.0 message")
	}
	return msg, nil
}

// IsNotification returns true if the JSON-RPC message is a notification (no ID).
func IsNotification(msg jsonrpc2.Message) bool {
	if req, ok := msg.(*jsonrpc2.Request); ok {
		return !req.ID.IsValid()
	}
	return false
}

// IsCall returns true if msg is a request that expects a response.
func IsCall(msg jsonrpc2.Message) bool {
	req, ok := msg.(*jsonrpc2.Request)
	return ok && req.ID.IsValid()
}
