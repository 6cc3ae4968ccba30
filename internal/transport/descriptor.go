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

// Package transport classifies server configurations into transport
// descriptors. Classification is pure: no filesystem or network access, so a
// descriptor computed once for a configuration stays valid for its lifetime.
package transport

import (
	"time"

	"github.com/tombee/ensemble/internal/config"
)

// Kind identifies the transport family used to reach a tool server.
type Kind int

const (
	// KindStdio is a locally launched subprocess speaking over pipes.
	KindStdio Kind = iota

	// KindWebSocket is a websocket endpoint (ws:// or wss://).
	KindWebSocket

	// KindSSE is an HTTP endpoint using server-sent events.
	KindSSE

	// KindStreamableHTTP is an HTTP endpoint using the streamable transport.
	KindStreamableHTTP

	// KindHTTPInferred marks a bare http(s) URL before inference resolves it
	// to SSE or streamable HTTP. Select never returns this kind; descriptors
	// carry the resolved kind with Inferred set.
	KindHTTPInferred
)

// String returns the transport kind as a config-compatible string.
func (k Kind) String() string {
	switch k {
	case KindStdio:
		return "stdio"
	case KindWebSocket:
		return "websocket"
	case KindSSE:
		return "sse"
	case KindStreamableHTTP:
		return "streamable-http"
	case KindHTTPInferred:
		return "http-inferred"
	default:
		return "unknown"
	}
}

// LauncherKind is the launch strategy for a stdio server command. The enum
// lives in config, next to the store that stamps it at load time; the alias
// keeps descriptor call sites reading naturally.
type LauncherKind = config.LauncherKind

const (
	LauncherGeneric       = config.LauncherGeneric
	LauncherInterpreter   = config.LauncherInterpreter
	LauncherPackageRunner = config.LauncherPackageRunner
)

// Descriptor is the resolved transport for one named server. It carries
// everything a protocol client factory needs and nothing it must re-derive.
type Descriptor struct {
	// Name is the configured server name, carried for error context.
	Name string

	// Kind is the resolved transport family.
	Kind Kind

	// Inferred is true when Kind was inferred from a bare http(s) URL rather
	// than declared.
	Inferred bool

	// URL is the endpoint for websocket, SSE, and streamable HTTP transports.
	URL string

	// Headers accompany every HTTP request for URL-based transports.
	Headers map[string]string

	// Command and Args describe the subprocess for stdio transports, with
	// package-runner rewriting already applied.
	Command string
	Args    []string

	// Env is the subprocess environment overlay as KEY=VALUE pairs, sorted.
	Env []string

	// LauncherKind is the launch strategy for stdio transports.
	LauncherKind LauncherKind

	// Timeout is the per-call deadline.
	Timeout time.Duration

	// PingInterval is the keepalive interval, 0 when disabled.
	PingInterval time.Duration
}
