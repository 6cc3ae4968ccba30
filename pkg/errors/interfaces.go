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

package errors

// UserVisibleError is implemented by errors whose message is meant for end
// users rather than logs. The CLI's exit handling checks for it with
// errors.As and, when present, prints UserMessage plus the suggestion
// instead of the raw error chain.
//
// The orchestrator's coded errors implement it, as do ValidationError and
// TransportError in this package.
type UserVisibleError interface {
	error

	// IsUserVisible reports whether the message should reach the user
	// as-is. Implementations return false to force the raw rendering.
	IsUserVisible() bool

	// UserMessage is the one-line message shown to the user.
	UserMessage() string

	// Suggestion is actionable guidance, empty when there is none.
	Suggestion() string
}
