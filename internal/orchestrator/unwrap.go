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
	"net"
	"net/url"
	"strings"
)

// failureMarkers are the annotations UnwrapAggregate recognizes inside
// flattened aggregate messages. Order matters: more specific markers first.
var failureMarkers = []string{
	"access denied",
	"permission denied",
	"no such file or directory",
	"not found",
}

// UnwrapAggregate reduces an opaque transport failure to its most readable
// single cause.
//
// Structured causes pass through unchanged so errors.Is and errors.As keep
// working: context cancellation, deadline errors, and net/url errors are
// never rewritten. For everything else a narrow marker table pulls the
// relevant fragment out of messages that collapse several causes into one
// string, such as the task-group aggregates some protocol stacks produce.
// The table is a compatibility shim, not a general parser; unrecognized
// errors are returned as-is.
func UnwrapAggregate(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr
	}

	if fragment, ok := extractKnownFailure(err.Error()); ok {
		return &extractedError{msg: fragment, cause: err}
	}
	return err
}

// extractedError carries a readable fragment pulled from an aggregate
// message while preserving the original chain for errors.Is and errors.As.
type extractedError struct {
	msg   string
	cause error
}

func (e *extractedError) Error() string { return e.msg }

func (e *extractedError) Unwrap() error { return e.cause }

// extractKnownFailure returns the readable fragment around the first
// recognized marker in msg.
func extractKnownFailure(msg string) (string, bool) {
	lower := strings.ToLower(msg)
	for _, marker := range failureMarkers {
		idx := strings.Index(lower, marker)
		if idx < 0 {
			continue
		}
		if fragment := fragmentAround(msg, idx); fragment != "" {
			return fragment, true
		}
	}
	return "", false
}

// fragmentAround isolates the line of msg containing byte offset idx and
// strips list bullets and trailing aggregate punctuation.
func fragmentAround(msg string, idx int) string {
	start := strings.LastIndexByte(msg[:idx], '\n') + 1
	end := strings.IndexByte(msg[idx:], '\n')
	if end < 0 {
		end = len(msg)
	} else {
		end += idx
	}

	fragment := strings.TrimSpace(msg[start:end])
	fragment = strings.TrimPrefix(fragment, "- ")
	fragment = strings.TrimPrefix(fragment, "* ")
	fragment = strings.TrimRight(fragment, ",;")
	return strings.TrimSpace(fragment)
}
