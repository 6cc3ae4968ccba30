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
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/tombee/ensemble/internal/transport"
	pkgerrors "github.com/tombee/ensemble/pkg/errors"
)

const (
	// wsHandshakeTimeout bounds the websocket upgrade.
	wsHandshakeTimeout = 10 * time.Second

	// wsWriteWait is the deadline for a single frame write.
	wsWriteWait = 10 * time.Second

	// wsReadWait is how long the connection may stay silent before the
	// read loop gives up. Pongs and responses both reset it.
	wsReadWait = 60 * time.Second
)

// wsSession speaks JSON-RPC 2.0 over a websocket connection. Gorilla
// permits one concurrent reader and one concurrent writer, so all frame
// writes serialize through writeMu while a single readLoop goroutine
// owns the read side.
type wsSession struct {
	serverName string
	conn       *websocket.Conn
	timeout    time.Duration

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[int64]chan *wsResponse
	nextID  int64
	closed  bool
	readErr error

	done chan struct{}
}

// wsRequest is a JSON-RPC 2.0 request frame. Notifications omit the ID.
type wsRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// wsResponse is a JSON-RPC 2.0 response frame. Server-initiated
// notifications carry a method and no ID.
type wsResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *wsError        `json:"error,omitempty"`
}

// wsError is the JSON-RPC 2.0 error object.
type wsError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *wsError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// newWebsocketSession dials the endpoint and starts the read and
// keepalive loops.
func newWebsocketSession(ctx context.Context, name string, desc *transport.Descriptor) (Client, error) {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}

	header := http.Header{}
	for k, v := range desc.Headers {
		header.Set(k, v)
	}

	conn, resp, err := dialer.DialContext(ctx, desc.URL, header)
	if err != nil {
		terr := &pkgerrors.TransportError{
			Server:    name,
			Transport: "websocket",
			Message:   fmt.Sprintf("failed to connect to %s", desc.URL),
			Hint:      "Check that the endpoint is reachable and accepts websocket upgrades",
			Cause:     err,
		}
		if resp != nil {
			terr.StatusCode = resp.StatusCode
		}
		return nil, terr
	}

	s := &wsSession{
		serverName: name,
		conn:       conn,
		timeout:    desc.Timeout,
		pending:    make(map[int64]chan *wsResponse),
		done:       make(chan struct{}),
	}

	conn.SetReadDeadline(time.Now().Add(wsReadWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadWait))
	})

	go s.readLoop()
	if desc.PingInterval > 0 {
		go s.pingLoop(desc.PingInterval)
	}

	return s, nil
}

// readLoop owns the read side of the connection, routing responses to
// their pending calls. It exits on the first read error, failing every
// in-flight and future call.
func (s *wsSession) readLoop() {
	for {
		var resp wsResponse
		if err := s.conn.ReadJSON(&resp); err != nil {
			s.failPending(err)
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(wsReadWait))

		// Server notifications have no ID and nobody waiting.
		if resp.ID == nil {
			continue
		}

		s.mu.Lock()
		ch, ok := s.pending[*resp.ID]
		if ok {
			delete(s.pending, *resp.ID)
		}
		s.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
}

// failPending records the terminal read error and unblocks every waiter.
func (s *wsSession) failPending(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr == nil {
		s.readErr = err
	}
	close(s.done)
	s.pending = make(map[int64]chan *wsResponse)
}

// pingLoop sends keepalive pings until the connection dies.
func (s *wsSession) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteWait))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// call issues one request and waits for its response.
func (s *wsSession) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, fmt.Errorf("connection to %q is closed", s.serverName)
	}
	if s.readErr != nil {
		err := s.readErr
		s.mu.Unlock()
		return nil, fmt.Errorf("connection to %q lost: %w", s.serverName, err)
	}
	s.nextID++
	id := s.nextID
	ch := make(chan *wsResponse, 1)
	s.pending[id] = ch
	s.mu.Unlock()

	req := wsRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}
	if err := s.writeJSON(&req); err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, fmt.Errorf("failed to send %s to %q: %w", method, s.serverName, err)
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("%s failed on %q: %w", method, s.serverName, resp.Error)
		}
		return resp.Result, nil
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return nil, fmt.Errorf("%s on %q: %w", method, s.serverName, ctx.Err())
	case <-s.done:
		s.mu.Lock()
		err := s.readErr
		s.mu.Unlock()
		return nil, fmt.Errorf("connection to %q lost: %w", s.serverName, err)
	}
}

// notify issues a request with no ID and expects no response.
func (s *wsSession) notify(method string, params any) error {
	return s.writeJSON(&wsRequest{JSONRPC: "2.0", Method: method, Params: params})
}

func (s *wsSession) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteJSON(v)
}

// Initialize performs the protocol handshake and sends the initialized
// notification the protocol requires before normal traffic.
func (s *wsSession) Initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "ensemble",
			"version": clientVersion,
		},
	}
	if _, err := s.call(ctx, "initialize", params); err != nil {
		return err
	}
	if err := s.notify("notifications/initialized", nil); err != nil {
		return fmt.Errorf("failed to send initialized notification to %q: %w", s.serverName, err)
	}
	return nil
}

// ListTools retrieves the tools the server advertises.
func (s *wsSession) ListTools(ctx context.Context) ([]Tool, error) {
	result, err := s.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}

	var listed struct {
		Tools []Tool `json:"tools"`
	}
	if err := json.Unmarshal(result, &listed); err != nil {
		return nil, fmt.Errorf("failed to decode tool list from %q: %w", s.serverName, err)
	}
	return listed.Tools, nil
}

// CallTool executes a tool with the given arguments.
func (s *wsSession) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	params := map[string]any{"name": name}
	if len(args) > 0 {
		params["arguments"] = args
	}

	result, err := s.call(ctx, "tools/call", params)
	if err != nil {
		return nil, err
	}

	var out ToolResult
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("failed to decode result of %q from %q: %w", name, s.serverName, err)
	}
	return &out, nil
}

// Ping checks that the server is still responsive.
func (s *wsSession) Ping(ctx context.Context) error {
	_, err := s.call(ctx, "ping", nil)
	return err
}

// Close sends a close frame and tears the connection down. The read
// loop exits when the peer acknowledges or the connection drops.
func (s *wsSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.writeMu.Lock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.writeMu.Unlock()

	return s.conn.Close()
}
