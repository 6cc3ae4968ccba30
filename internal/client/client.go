// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package client provides the protocol sessions the orchestrator speaks
// through: mcp-go sessions for stdio, SSE, and streamable HTTP transports,
// and an in-repo JSON-RPC websocket session.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tombee/ensemble/internal/transport"
)

// clientVersion is reported to servers during the initialize handshake.
const clientVersion = "0.1.0"

// Tool describes a tool advertised by a server.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Content is one piece of tool output.
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// ToolResult is the outcome of one tool call.
type ToolResult struct {
	IsError bool      `json:"isError,omitempty"`
	Content []Content `json:"content"`
}

// Text concatenates the text content items, one per line.
func (r *ToolResult) Text() string {
	var parts []string
	for _, c := range r.Content {
		if c.Type == "text" && c.Text != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Client is the narrow protocol surface the orchestrator needs from a
// server session. Sessions are single-server; Close releases the
// underlying transport.
type Client interface {
	Initialize(ctx context.Context) error
	ListTools(ctx context.Context) ([]Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error)
	Ping(ctx context.Context) error
	Close() error
}

// Factory builds a client session for a classified transport descriptor.
// The orchestrator takes a Factory so tests can substitute fakes.
type Factory func(ctx context.Context, name string, desc *transport.Descriptor) (Client, error)

// New is the default factory. Stdio, SSE, and streamable HTTP sessions are
// backed by mcp-go; websocket sessions by the in-repo JSON-RPC client.
func New(ctx context.Context, name string, desc *transport.Descriptor) (Client, error) {
	if desc == nil {
		return nil, fmt.Errorf("server %q: no transport descriptor: %w", name, transport.ErrUnsupportedConfig)
	}

	switch desc.Kind {
	case transport.KindStdio:
		return newStdioSession(ctx, name, desc)
	case transport.KindSSE, transport.KindStreamableHTTP:
		return newHTTPSession(ctx, name, desc)
	case transport.KindWebSocket:
		return newWebsocketSession(ctx, name, desc)
	default:
		return nil, fmt.Errorf("server %q: no client for %s transport: %w", name, desc.Kind, transport.ErrUnsupportedConfig)
	}
}
