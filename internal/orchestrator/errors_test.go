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
	"testing"
)

func TestOrchestratorError_Error(t *testing.T) {
	err := NewError(CodeLaunchFailed, "Failed to launch server 'echo'").
		WithDetail("exit status 1").
		WithSuggestions("Check server logs: ensemble logs echo", "Verify the command")

	msg := err.Error()
	if !strings.Contains(msg, "Error: Failed to launch server 'echo'") {
		t.Errorf("Error() missing message: %q", msg)
	}
	if !strings.Contains(msg, "→ exit status 1") {
		t.Errorf("Error() missing detail line: %q", msg)
	}
	if !strings.Contains(msg, "Suggestions:") {
		t.Errorf("Error() missing suggestions header: %q", msg)
	}
	if !strings.Contains(msg, "- Verify the command") {
		t.Errorf("Error() missing suggestion bullet: %q", msg)
	}
}

func TestOrchestratorError_UserMessage(t *testing.T) {
	err := NewError(CodeTransport, "Communication failed")
	if got := err.UserMessage(); got != "Communication failed" {
		t.Errorf("UserMessage() = %q", got)
	}

	err = err.WithDetail("connection refused")
	if got := err.UserMessage(); got != "Communication failed: connection refused" {
		t.Errorf("UserMessage() = %q", got)
	}

	if !err.IsUserVisible() {
		t.Error("orchestration errors must be user visible")
	}
}

func TestOrchestratorError_Suggestion(t *testing.T) {
	err := NewError(CodeTimeout, "Timed out")
	if got := err.Suggestion(); got != "" {
		t.Errorf("Suggestion() = %q, want empty", got)
	}

	err = err.WithSuggestions("first", "second")
	if got := err.Suggestion(); got != "first" {
		t.Errorf("Suggestion() = %q, want first", got)
	}
}

func TestOrchestratorError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewError(CodeInternal, "wrapped").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}
}

func TestWrapError(t *testing.T) {
	plain := errors.New("something broke")
	wrapped := WrapError(plain, CodeTransport, "Transport failed")
	if wrapped.Code != CodeTransport {
		t.Errorf("Code = %q", wrapped.Code)
	}
	if wrapped.Detail != "something broke" {
		t.Errorf("Detail = %q", wrapped.Detail)
	}
	if !errors.Is(wrapped, plain) {
		t.Error("wrapped error must keep the original in its chain")
	}

	// An existing orchestration error passes through untouched.
	original := ErrConfigNotFound("echo")
	again := WrapError(fmt.Errorf("outer: %w", original), CodeInternal, "ignored")
	if again != original {
		t.Error("WrapError should return the existing error")
	}
	if again.Code != CodeConfigNotFound {
		t.Errorf("Code = %q, want %q", again.Code, CodeConfigNotFound)
	}
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("context: %w", ErrConfigNotFound("echo"))
	if got := CodeOf(err); got != CodeConfigNotFound {
		t.Errorf("CodeOf() = %q, want %q", got, CodeConfigNotFound)
	}

	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
}

func TestErrToolNotFound_ListsAvailable(t *testing.T) {
	err := ErrToolNotFound("echo", "fetch", []string{"echo", "reverse"})
	if !strings.Contains(err.Detail, "echo, reverse") {
		t.Errorf("Detail = %q, want available tools listed", err.Detail)
	}

	empty := ErrToolNotFound("echo", "fetch", nil)
	if !strings.Contains(empty.Detail, "no tools") {
		t.Errorf("Detail = %q, want no-tools note", empty.Detail)
	}
}

func TestErrConfigNotFound_SuggestsCLI(t *testing.T) {
	err := ErrConfigNotFound("echo")
	found := false
	for _, s := range err.Suggestions {
		if strings.Contains(s, "ensemble list") {
			found = true
		}
	}
	if !found {
		t.Errorf("Suggestions = %v, want a pointer to the list command", err.Suggestions)
	}
}
