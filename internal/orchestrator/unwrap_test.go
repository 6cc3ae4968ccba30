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
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"testing"
)

func TestUnwrapAggregate_Nil(t *testing.T) {
	if got := UnwrapAggregate(nil); got != nil {
		t.Errorf("UnwrapAggregate(nil) = %v, want nil", got)
	}
}

func TestUnwrapAggregate_ContextErrorsPassThrough(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"deadline exceeded", fmt.Errorf("tool call: %w", context.DeadlineExceeded)},
		{"canceled", fmt.Errorf("tool call: %w", context.Canceled)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UnwrapAggregate(tt.err); got != tt.err {
				t.Errorf("UnwrapAggregate() = %v, want the original error", got)
			}
		})
	}
}

func TestUnwrapAggregate_NetErrorsSurface(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	got := UnwrapAggregate(fmt.Errorf("transport: %w", opErr))
	if got != error(opErr) {
		t.Errorf("UnwrapAggregate() = %v, want the net.OpError", got)
	}

	urlErr := &url.Error{Op: "Get", URL: "http://localhost:9000", Err: errors.New("connection refused")}
	got = UnwrapAggregate(fmt.Errorf("transport: %w", urlErr))
	if got != error(urlErr) {
		t.Errorf("UnwrapAggregate() = %v, want the url.Error", got)
	}
}

func TestUnwrapAggregate_ExtractsAccessDenied(t *testing.T) {
	raw := errors.New("unhandled errors in task group (2 sub-exceptions)\n" +
		"  - tool error: Access denied - path outside allowed directories: /etc\n" +
		"  - during cleanup: generator did not stop")

	got := UnwrapAggregate(raw)
	msg := got.Error()
	if !strings.Contains(msg, "Access denied") {
		t.Errorf("extracted message %q should keep the denial", msg)
	}
	if strings.Contains(msg, "task group") {
		t.Errorf("extracted message %q should drop the aggregate wrapper", msg)
	}
	if !errors.Is(got, raw) {
		t.Error("extracted error must keep the original in its chain")
	}
}

func TestUnwrapAggregate_ExtractsMissingFile(t *testing.T) {
	raw := errors.New("launch failed:\nspawn npx: no such file or directory\nexit status 1")

	got := UnwrapAggregate(raw)
	want := "spawn npx: no such file or directory"
	if got.Error() != want {
		t.Errorf("UnwrapAggregate() = %q, want %q", got.Error(), want)
	}
}

func TestUnwrapAggregate_SingleLinePermissionDenied(t *testing.T) {
	raw := errors.New("fork/exec /opt/tool: permission denied")

	got := UnwrapAggregate(raw)
	if !strings.Contains(got.Error(), "permission denied") {
		t.Errorf("UnwrapAggregate() = %q, want permission denial kept", got.Error())
	}
	if !errors.Is(got, raw) {
		t.Error("extracted error must keep the original in its chain")
	}
}

func TestUnwrapAggregate_UnrecognizedReturnsOriginal(t *testing.T) {
	raw := errors.New("protocol violation: unexpected frame type 0x7")
	if got := UnwrapAggregate(raw); got != raw {
		t.Errorf("UnwrapAggregate() = %v, want the original error", got)
	}
}

func TestExtractKnownFailure(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		want string
		ok   bool
	}{
		{
			name: "bulleted line with trailing comma",
			msg:  "aggregate:\n  - tool: Access denied - /etc,\n  - more context",
			want: "tool: Access denied - /etc",
			ok:   true,
		},
		{
			name: "tool not found",
			msg:  "rpc error: Tool not found: fetchx",
			want: "rpc error: Tool not found: fetchx",
			ok:   true,
		},
		{
			name: "no marker",
			msg:  "some other failure",
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractKnownFailure(tt.msg)
			if ok != tt.ok {
				t.Fatalf("extractKnownFailure() ok = %v, want %v", ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("extractKnownFailure() = %q, want %q", got, tt.want)
			}
		})
	}
}
