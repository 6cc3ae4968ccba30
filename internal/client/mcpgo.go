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

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcptransport "github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tombee/ensemble/internal/transport"
	pkgerrors "github.com/tombee/ensemble/pkg/errors"
	"github.com/tombee/ensemble/pkg/httpclient"
)

// mcpSession adapts a mark3labs client to the Client interface.
type mcpSession struct {
	serverName string
	client     *mcpclient.Client
	timeout    time.Duration
}

// newStdioSession spawns the configured command as a pipe-connected child
// for the duration of the session.
func newStdioSession(ctx context.Context, name string, desc *transport.Descriptor) (Client, error) {
	stdio := mcptransport.NewStdio(desc.Command, desc.Env, desc.Args...)
	c := mcpclient.NewClient(stdio)
	if err := c.Start(ctx); err != nil {
		return nil, &pkgerrors.TransportError{
			Server:    name,
			Transport: "stdio",
			Message:   "failed to start session",
			Cause:     err,
		}
	}

	return &mcpSession{serverName: name, client: c, timeout: desc.Timeout}, nil
}

// newHTTPSession connects to a remote SSE or streamable HTTP endpoint.
func newHTTPSession(ctx context.Context, name string, desc *transport.Descriptor) (Client, error) {
	hc, err := buildHTTPClient(name, desc)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP client for %q: %w", name, err)
	}

	var c *mcpclient.Client
	switch desc.Kind {
	case transport.KindSSE:
		c, err = mcpclient.NewSSEMCPClient(desc.URL,
			mcptransport.WithHTTPClient(hc))
	case transport.KindStreamableHTTP:
		c, err = mcpclient.NewStreamableHttpClient(desc.URL,
			mcptransport.WithHTTPTimeout(desc.Timeout),
			mcptransport.WithHTTPBasicClient(hc))
	default:
		return nil, fmt.Errorf("server %q: %s is not an HTTP transport: %w", name, desc.Kind, transport.ErrUnsupportedConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client for %q: %w", desc.Kind, name, err)
	}

	if err := c.Start(ctx); err != nil {
		return nil, &pkgerrors.TransportError{
			Server:    name,
			Transport: desc.Kind.String(),
			Message:   fmt.Sprintf("failed to connect to %s", desc.URL),
			Hint:      "Check that the endpoint is reachable and the URL is correct",
			Cause:     err,
		}
	}

	return &mcpSession{serverName: name, client: c, timeout: desc.Timeout}, nil
}

// buildHTTPClient assembles the HTTP client the protocol transports ride
// on. The SSE event stream outlives any single request, so SSE clients go
// into streaming mode where only the connect phase carries a deadline.
func buildHTTPClient(name string, desc *transport.Descriptor) (*http.Client, error) {
	cfg := httpclient.DefaultConfig()
	cfg.ServerName = name
	cfg.Headers = desc.Headers
	cfg.Streaming = desc.Kind == transport.KindSSE
	if desc.Timeout > 0 {
		cfg.RequestTimeout = desc.Timeout
	}

	return httpclient.New(cfg)
}

// callContext bounds a protocol call with the per-server timeout.
func (s *mcpSession) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// timeoutError converts a blown per-server deadline into a TimeoutError so
// callers see the configured limit rather than a bare context error. Returns
// nil when err is not a deadline failure.
func (s *mcpSession) timeoutError(op string, err error) error {
	if s.timeout <= 0 || !errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return &pkgerrors.TimeoutError{
		Operation: fmt.Sprintf("%s on %q", op, s.serverName),
		Duration:  s.timeout,
		Cause:     err,
	}
}

// Initialize performs the protocol handshake.
func (s *mcpSession) Initialize(ctx context.Context) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	_, err := s.client.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "ensemble",
				Version: clientVersion,
			},
		},
	})
	if err != nil {
		if terr := s.timeoutError("initialize", err); terr != nil {
			return terr
		}
		return fmt.Errorf("initialize failed for %q: %w", s.serverName, err)
	}
	return nil
}

// ListTools retrieves the tools the server advertises.
func (s *mcpSession) ListTools(ctx context.Context) ([]Tool, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		if terr := s.timeoutError("list tools", err); terr != nil {
			return nil, terr
		}
		return nil, fmt.Errorf("failed to list tools on %q: %w", s.serverName, err)
	}

	tools := make([]Tool, len(result.Tools))
	for i, tool := range result.Tools {
		schema, err := toolSchema(tool)
		if err != nil {
			return nil, err
		}
		tools[i] = Tool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		}
	}
	return tools, nil
}

// toolSchema extracts the raw JSON input schema from an advertised tool.
func toolSchema(tool mcp.Tool) (json.RawMessage, error) {
	if len(tool.RawInputSchema) > 0 {
		return json.RawMessage(tool.RawInputSchema), nil
	}
	schema, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal input schema for %s: %w", tool.Name, err)
	}
	return schema, nil
}

// CallTool executes a tool with the given arguments.
func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	result, err := s.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		if terr := s.timeoutError(fmt.Sprintf("tool %q", name), err); terr != nil {
			return nil, terr
		}
		return nil, fmt.Errorf("tool %q failed on %q: %w", name, s.serverName, err)
	}

	return convertCallResult(result), nil
}

// convertCallResult maps an mcp-go tool result to the session-neutral type.
func convertCallResult(result *mcp.CallToolResult) *ToolResult {
	out := &ToolResult{
		IsError: result.IsError,
		Content: make([]Content, len(result.Content)),
	}
	for i, content := range result.Content {
		out.Content[i] = convertContent(content)
	}
	return out
}

// convertContent maps one mcp-go content item, defaulting unknown
// content kinds to an opaque marker rather than dropping them.
func convertContent(content mcp.Content) Content {
	if text, ok := mcp.AsTextContent(content); ok {
		return Content{Type: "text", Text: text.Text}
	}
	if image, ok := mcp.AsImageContent(content); ok {
		return Content{Type: "image", Data: image.Data, MimeType: image.MIMEType}
	}
	if audio, ok := mcp.AsAudioContent(content); ok {
		return Content{Type: "audio", Data: audio.Data, MimeType: audio.MIMEType}
	}
	return Content{Type: "unknown"}
}

// Ping checks that the server is still responsive.
func (s *mcpSession) Ping(ctx context.Context) error {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	if err := s.client.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed for %q: %w", s.serverName, err)
	}
	return nil
}

// Close releases the session transport. For stdio sessions this also
// terminates the pipe-connected child.
func (s *mcpSession) Close() error {
	return s.client.Close()
}
