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

// Package errors defines the typed errors shared across the config,
// client, and command layers. The orchestrator has its own coded error
// type; these cover the layers beneath it.
package errors

import (
	"fmt"
	"time"
)

// ConfigError reports a problem reading or parsing the server config file.
type ConfigError struct {
	// Path is the config file involved, if known.
	Path string

	// Reason explains what went wrong.
	Reason string

	// Cause is the underlying read or parse error.
	Cause error
}

func (e *ConfigError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("config %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("config: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ValidationError reports a server config entry that fails a structural
// check: a bad transport type, a negative timeout, a malformed name.
type ValidationError struct {
	// Field is the offending config field, empty when the check spans
	// several fields.
	Field string

	// Message states the constraint, phrased as a predicate on the field
	// ("must be non-negative").
	Message string

	// Hint is optional guidance for fixing the entry.
	Hint string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return e.Message
}

// IsUserVisible marks validation failures as safe to show directly.
func (e *ValidationError) IsUserVisible() bool { return true }

// UserMessage returns the one-line form without any hint attached.
func (e *ValidationError) UserMessage() string { return e.Error() }

// Suggestion returns the fix hint, if any.
func (e *ValidationError) Suggestion() string { return e.Hint }

// NotFoundError reports a missing resource: an unknown server name, a
// registry entry that was never written, a log file that does not exist.
type NotFoundError struct {
	// Resource is the kind of thing looked up ("server", "server logs").
	Resource string

	// ID is the identifier that missed.
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// TransportError reports a failure talking to a tool server, whether the
// session rides a subprocess pipe, a websocket, or an HTTP stream.
type TransportError struct {
	// Server is the configured server name.
	Server string

	// Transport names the transport in use ("stdio", "sse", "websocket").
	Transport string

	// StatusCode carries the HTTP status when the transport saw one.
	StatusCode int

	// Message describes the failure.
	Message string

	// Hint is optional guidance for resolution.
	Hint string

	// CorrelationID ties the error to request logs.
	CorrelationID string

	// Cause is the underlying error.
	Cause error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("server %s (%s): %s", e.Server, e.Transport, e.Message)
	if e.Transport == "" {
		msg = fmt.Sprintf("server %s: %s", e.Server, e.Message)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s [HTTP %d]", msg, e.StatusCode)
	}
	if e.CorrelationID != "" {
		msg = fmt.Sprintf("%s (correlation-id: %s)", msg, e.CorrelationID)
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsUserVisible marks transport failures as safe to show directly.
func (e *TransportError) IsUserVisible() bool { return true }

// UserMessage returns the one-line form without hint or correlation ID.
func (e *TransportError) UserMessage() string {
	if e.Transport != "" {
		return fmt.Sprintf("server %s (%s): %s", e.Server, e.Transport, e.Message)
	}
	return fmt.Sprintf("server %s: %s", e.Server, e.Message)
}

// Suggestion returns the resolution hint, if any.
func (e *TransportError) Suggestion() string { return e.Hint }

// TimeoutError reports an operation that exceeded its per-server deadline.
type TimeoutError struct {
	// Operation describes what timed out ("tool call", "list tools").
	Operation string

	// Duration is the deadline that was exceeded.
	Duration time.Duration

	// Cause is the underlying error, usually context.DeadlineExceeded.
	Cause error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v", e.Operation, e.Duration)
}

func (e *TimeoutError) Unwrap() error {
	return e.Cause
}
