// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	hosterr "github.com/stacklok/toolhost/pkg/errors"
	"github.com/stacklok/toolhost/pkg/logger"
	"github.com/stacklok/toolhost/pkg/tools"
	"github.com/stacklok/toolhost/pkg/transport/types"
)

type initializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    map[string]any     `json:"capabilities"`
	ClientInfo      mcp.Implementation `json:"clientInfo"`
}

type listChanged struct {
	ListChanged bool `json:"listChanged"`
}

type resourceCapability struct {
	Subscribe   bool `json:"subscribe"`
	ListChanged bool `json:"listChanged"`
}

type serverCapabilities struct {
	Tools     *listChanged        `json:"tools,omitempty"`
	Resources *resourceCapability `json:"resources,omitempty"`
	Prompts   *listChanged        `json:"prompts,omitempty"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    serverCapabilities `json:"capabilities"`
	ServerInfo      mcp.Implementation `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// initialize negotiates the protocol version and moves the session to
// StateNegotiating.
func (s *Session) initialize(params json.RawMessage) (any, error) {
	var p initializeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ProtocolVersion == "" {
		return nil, invalidParams("/protocolVersion", "protocolVersion is required")
	}
	if !s.state.CompareAndSwap(int32(StateAccepted), int32(StateNegotiating)) {
		return nil, types.NewError(types.CodeInvalidRequest, "InvalidRequest", "session is already initialized")
	}

	version := negotiateVersion(p.ProtocolVersion)
	s.protocolVersion.Store(version)
	logger.Infof("Session %s initialized by %s %s (requested protocol %s, using %s)",
		s.id, p.ClientInfo.Name, p.ClientInfo.Version, p.ProtocolVersion, version)

	return &initializeResult{
		ProtocolVersion: version,
		Capabilities: serverCapabilities{
			Tools:     &listChanged{},
			Resources: &resourceCapability{},
			Prompts:   &listChanged{},
		},
		ServerInfo: mcp.Implementation{
			Name:    s.server.config.Name,
			Version: s.server.config.Version,
		},
		Instructions: s.server.config.Instructions,
	}, nil
}

func (*Server) handlePing(context.Context, json.RawMessage) (any, error) {
	return struct{}{}, nil
}

type listToolsResult struct {
	Tools []tools.Descriptor `json:"tools"`
}

func (s *Server) handleListTools(context.Context, json.RawMessage) (any, error) {
	return &listToolsResult{Tools: s.registry.Descriptors()}, nil
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (s *Server) handleCallTool(ctx context.Context, params json.RawMessage) (any, error) {
	var p callToolParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, invalidParams("/name", "tool name is required")
	}
	if p.Arguments == nil {
		p.Arguments = map[string]any{}
	}

	res, err := s.registry.Call(ctx, p.Name, p.Arguments)
	if err != nil {
		return nil, err
	}

	result := &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(res.Text())},
	}
	if trimmed := bytes.TrimSpace(res.JSON); len(trimmed) > 0 && trimmed[0] == '{' {
		result.StructuredContent = json.RawMessage(trimmed)
	}
	return result, nil
}

func (s *Server) handleListResources(context.Context, json.RawMessage) (any, error) {
	resources := s.registry.Resources()
	out := make([]mcp.Resource, 0, len(resources))
	for _, r := range resources {
		out = append(out, mcp.Resource{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MIMEType:    r.MIMEType,
		})
	}
	return &mcp.ListResourcesResult{Resources: out}, nil
}

type readResourceParams struct {
	URI string `json:"uri"`
}

func (s *Server) handleReadResource(ctx context.Context, params json.RawMessage) (any, error) {
	var p readResourceParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.URI == "" {
		return nil, invalidParams("/uri", "uri is required")
	}

	res, text, err := s.registry.ReadResource(ctx, p.URI)
	if err != nil {
		if _, ok := hosterr.As(err); !ok {
			err = hosterr.NewToolExecutionError(p.URI, err)
		}
		return nil, err
	}
	return &mcp.ReadResourceResult{
		Contents: []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      res.URI,
				MIMEType: res.MIMEType,
				Text:     text,
			},
		},
	}, nil
}

func (s *Server) handleListPrompts(context.Context, json.RawMessage) (any, error) {
	prompts := s.registry.Prompts()
	out := make([]mcp.Prompt, 0, len(prompts))
	for _, p := range prompts {
		args := make([]mcp.PromptArgument, 0, len(p.Arguments))
		for _, a := range p.Arguments {
			args = append(args, mcp.PromptArgument{
				Name:        a.Name,
				Description: a.Description,
				Required:    a.Required,
			})
		}
		out = append(out, mcp.Prompt{
			Name:        p.Name,
			Description: p.Description,
			Arguments:   args,
		})
	}
	return &mcp.ListPromptsResult{Prompts: out}, nil
}

type getPromptParams struct {
	Name      string            `json:"name"`
	Arguments map[string]string `json:"arguments"`
}

func (s *Server) handleGetPrompt(ctx context.Context, params json.RawMessage) (any, error) {
	var p getPromptParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, invalidParams("/name", "prompt name is required")
	}

	prompt, messages, err := s.registry.GetPrompt(ctx, p.Name, p.Arguments)
	if err != nil {
		if _, ok := hosterr.As(err); !ok {
			err = hosterr.NewToolExecutionError(p.Name, err)
		}
		return nil, err
	}
	out := make([]mcp.PromptMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, mcp.PromptMessage{
			Role:    mcp.Role(m.Role),
			Content: mcp.NewTextContent(m.Text),
		})
	}
	return &mcp.GetPromptResult{
		Description: prompt.Description,
		Messages:    out,
	}, nil
}

type requestMeta struct {
	Meta struct {
		ProgressToken any `json:"progressToken"`
	} `json:"_meta"`
}

// progressToken extracts params._meta.progressToken.
func progressToken(params json.RawMessage) (any, bool) {
	if len(params) == 0 {
		return nil, false
	}
	var m requestMeta
	if err := decodeParams(params, &m); err != nil {
		return nil, false
	}
	return m.Meta.ProgressToken, m.Meta.ProgressToken != nil
}

type progressParams struct {
	ProgressToken any     `json:"progressToken"`
	Progress      float64 `json:"progress"`
	Total         float64 `json:"total,omitempty"`
	Message       string  `json:"message,omitempty"`
}

func progressNotification(token any, progress, total float64, message string) *types.Message {
	return types.NewNotification(NotificationProgress, &progressParams{
		ProgressToken: token,
		Progress:      progress,
		Total:         total,
		Message:       message,
	})
}

// decodeParams decodes request params keeping numbers as json.Number so
// integer arguments survive schema validation unchanged.
func decodeParams(params json.RawMessage, v any) error {
	if len(bytes.TrimSpace(params)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(params))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return types.NewError(types.CodeInvalidParams, KindInvalidParams, fmt.Sprintf("invalid params: %v", err))
	}
	return nil
}

func invalidParams(path, message string) error {
	return hosterr.NewValidationError([]string{path}, []string{path + ": " + message})
}
