// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/logger"
	"github.com/stacklok/toolhost/pkg/transport/types"
)

// Protocol level error kinds reported in error data.
const (
	KindSessionNotInitialized = "SessionNotInitialized"
	KindMethodNotFound        = "MethodNotFound"
	KindInvalidParams         = "InvalidParams"
	KindInternal              = "InternalError"
)

// Application error codes, outside the range reserved by JSON-RPC.
const (
	CodeToolExecution             = -32000
	CodeNotAuthorized             = -32001
	CodeRequestTimeout            = -32002
	CodeUpstreamHTTP              = -32003
	CodeUpstreamTransport         = -32004
	CodeToolReturnNotSerializable = -32005
	CodeStore                     = -32006
	CodeRequestCancelled          = -32800
)

// CodeForKind returns the JSON-RPC error code for an error kind.
func CodeForKind(kind hosterr.Kind) int {
	switch kind {
	case hosterr.KindValidation, hosterr.KindInvalidToolSignature, hosterr.KindToolNotFound:
		return types.CodeInvalidParams
	case hosterr.KindNotAuthorized:
		return CodeNotAuthorized
	case hosterr.KindRequestTimeout:
		return CodeRequestTimeout
	case hosterr.KindRequestCancelled:
		return CodeRequestCancelled
	case hosterr.KindUpstreamHTTP:
		return CodeUpstreamHTTP
	case hosterr.KindUpstreamTransport:
		return CodeUpstreamTransport
	case hosterr.KindToolReturnNotSerializable:
		return CodeToolReturnNotSerializable
	case hosterr.KindToolExecution:
		return CodeToolExecution
	case hosterr.KindStoreUnavailable, hosterr.KindKeyNotFound, hosterr.KindPermissionDenied:
		return CodeStore
	default:
		return types.CodeInternalError
	}
}

// toRPCError maps err onto a JSON-RPC error object. Only the taxonomy
// message and details are exposed; causes stay in the logs.
func toRPCError(err error) *types.Error {
	var rpcErr *types.Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	herr, ok := hosterr.As(err)
	if !ok {
		switch {
		case errors.Is(err, context.Canceled):
			herr = hosterr.New(hosterr.KindRequestCancelled, "request cancelled", nil)
		case errors.Is(err, context.DeadlineExceeded):
			herr = hosterr.New(hosterr.KindRequestTimeout, "request timed out", nil)
		default:
			logger.Errorf("Unclassified request failure: %v", err)
			return types.NewError(types.CodeInternalError, KindInternal, "internal error")
		}
	}

	return &types.Error{
		Code:    CodeForKind(herr.Kind),
		Message: herr.Message,
		Data: &types.ErrorData{
			Kind:    string(herr.Kind),
			Details: herr.Details,
		},
	}
}
