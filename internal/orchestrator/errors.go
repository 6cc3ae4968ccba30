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

package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a category of orchestration error.
type ErrorCode string

const (
	// CodeConfigNotFound indicates an unknown server name.
	CodeConfigNotFound ErrorCode = "CONFIG_NOT_FOUND"
	// CodeUnsupportedConfig indicates no transport rule matches the config.
	CodeUnsupportedConfig ErrorCode = "UNSUPPORTED_CONFIG"
	// CodeLaunchFailed indicates a server process failed to start.
	CodeLaunchFailed ErrorCode = "LAUNCH_FAILED"
	// CodeToolNotFound indicates a tool missing from a server's advertised set.
	CodeToolNotFound ErrorCode = "TOOL_NOT_FOUND"
	// CodeTransport indicates a failure talking to a server.
	CodeTransport ErrorCode = "TRANSPORT"
	// CodeConnectionClosed indicates the server connection closed.
	CodeConnectionClosed ErrorCode = "CONNECTION_CLOSED"
	// CodeTimeout indicates an operation exceeded its deadline.
	CodeTimeout ErrorCode = "TIMEOUT"
	// CodeInternal indicates an internal error.
	CodeInternal ErrorCode = "INTERNAL"
)

// OrchestratorError is an error type that includes suggestions for resolution.
type OrchestratorError struct {
	// Code is the error category.
	Code ErrorCode
	// Message is the primary error message.
	Message string
	// Detail provides additional context.
	Detail string
	// Suggestions are actionable steps to resolve the error.
	Suggestions []string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *OrchestratorError) Error() string {
	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(e.Message)
	sb.WriteString("\n")

	if e.Detail != "" {
		sb.WriteString("  → ")
		sb.WriteString(e.Detail)
		sb.WriteString("\n")
	}

	if len(e.Suggestions) > 0 {
		sb.WriteString("\n  Suggestions:\n")
		for _, s := range e.Suggestions {
			sb.WriteString("  - ")
			sb.WriteString(s)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// Unwrap returns the underlying error.
func (e *OrchestratorError) Unwrap() error {
	return e.Cause
}

// IsUserVisible implements pkg/errors.UserVisibleError.
// Orchestration errors are always user-visible.
func (e *OrchestratorError) IsUserVisible() bool {
	return true
}

// UserMessage implements pkg/errors.UserVisibleError.
// Returns a user-friendly message without technical details.
func (e *OrchestratorError) UserMessage() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// Suggestion implements pkg/errors.UserVisibleError.
// Returns actionable guidance for resolving the error.
func (e *OrchestratorError) Suggestion() string {
	if len(e.Suggestions) == 0 {
		return ""
	}
	// The full list is available in Error() output.
	return e.Suggestions[0]
}

// NewError creates a new OrchestratorError.
func NewError(code ErrorCode, message string) *OrchestratorError {
	return &OrchestratorError{
		Code:    code,
		Message: message,
	}
}

// WithDetail adds detail to the error.
func (e *OrchestratorError) WithDetail(detail string) *OrchestratorError {
	e.Detail = detail
	return e
}

// WithSuggestions adds suggestions to the error.
func (e *OrchestratorError) WithSuggestions(suggestions ...string) *OrchestratorError {
	e.Suggestions = suggestions
	return e
}

// WithCause adds an underlying cause to the error.
func (e *OrchestratorError) WithCause(cause error) *OrchestratorError {
	e.Cause = cause
	return e
}

// ErrConfigNotFound creates an error for an unknown server name.
func ErrConfigNotFound(name string) *OrchestratorError {
	return NewError(CodeConfigNotFound, fmt.Sprintf("Server '%s' is not configured", name)).
		WithSuggestions(
			"Check configured servers: ensemble list",
			fmt.Sprintf("Add the server: ensemble add %s", name),
		)
}

// ErrUnsupportedConfig creates an error for a config no transport rule matches.
func ErrUnsupportedConfig(name string, cause error) *OrchestratorError {
	e := NewError(CodeUnsupportedConfig, fmt.Sprintf("Server '%s' has no usable transport configuration", name)).
		WithCause(cause).
		WithSuggestions(
			"Declare a command for stdio servers or a url for remote servers",
			fmt.Sprintf("Inspect the entry: ensemble list --json | grep -A5 %s", name),
		)
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// ErrLaunchFailed creates an error for a server that failed to start.
// The cause carries the stderr tail and log path from the launcher.
func ErrLaunchFailed(name string, cause error) *OrchestratorError {
	e := NewError(CodeLaunchFailed, fmt.Sprintf("Failed to launch server '%s'", name)).
		WithCause(cause).
		WithSuggestions(
			fmt.Sprintf("Check server logs: ensemble logs %s", name),
			"Verify the command and arguments are correct",
			"Ensure required environment variables are set",
		)
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// ErrToolNotFound creates an error for a tool the server does not advertise.
func ErrToolNotFound(server, tool string, available []string) *OrchestratorError {
	detail := "Server advertises no tools"
	if len(available) > 0 {
		detail = "Available tools: " + strings.Join(available, ", ")
	}
	return NewError(CodeToolNotFound, fmt.Sprintf("Tool '%s' not found on server '%s'", tool, server)).
		WithDetail(detail).
		WithSuggestions(
			fmt.Sprintf("List available tools: ensemble tools -s %s", server),
		)
}

// ErrTransportFailed creates an error for a failure talking to a server.
// The readable message comes from unwrapped; cause preserves the full chain.
func ErrTransportFailed(name string, unwrapped, cause error) *OrchestratorError {
	e := NewError(CodeTransport, fmt.Sprintf("Communication with server '%s' failed", name)).
		WithCause(cause).
		WithSuggestions(
			"Check if the server is running: ensemble list",
			fmt.Sprintf("Check server logs: ensemble logs %s", name),
		)
	if unwrapped != nil {
		e.Detail = unwrapped.Error()
	}
	return e
}

// ErrConnectionClosed creates an error for a server connection that closed.
func ErrConnectionClosed(name string, cause error) *OrchestratorError {
	return NewError(CodeConnectionClosed, fmt.Sprintf("Connection to server '%s' closed", name)).
		WithCause(cause).
		WithSuggestions(
			"Check if the server is still running: ensemble list",
			fmt.Sprintf("Check server logs for crash details: ensemble logs %s", name),
			fmt.Sprintf("Relaunch the server: ensemble launch %s", name),
		)
}

// ErrQueryTimeout creates an error for a protocol call that timed out.
func ErrQueryTimeout(name string, timeout time.Duration, cause error) *OrchestratorError {
	return NewError(CodeTimeout, fmt.Sprintf("Server '%s' did not respond within %v", name, timeout)).
		WithCause(cause).
		WithSuggestions(
			"Check if the server is responding",
			"Increase the timeout for this server in your configuration",
			fmt.Sprintf("Check server logs: ensemble logs %s", name),
		)
}

// ErrInternal creates an error for an unexpected internal failure.
func ErrInternal(message string, cause error) *OrchestratorError {
	e := NewError(CodeInternal, message).WithCause(cause)
	if cause != nil {
		e.Detail = cause.Error()
	}
	return e
}

// WrapError wraps a standard error in an OrchestratorError if it isn't one
// already.
func WrapError(err error, code ErrorCode, message string) *OrchestratorError {
	var oErr *OrchestratorError
	if errors.As(err, &oErr) {
		return oErr
	}
	return NewError(code, message).WithDetail(err.Error()).WithCause(err)
}

// CodeOf extracts the error code from an error chain, or "" if the chain
// holds no OrchestratorError.
func CodeOf(err error) ErrorCode {
	var oErr *OrchestratorError
	if errors.As(err, &oErr) {
		return oErr.Code
	}
	return ""
}
