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

package completion

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestCompleteOutputFormats(t *testing.T) {
	completions, directive := CompleteOutputFormats(nil, nil, "")

	if len(completions) != 4 {
		t.Errorf("expected 4 output formats, got %d", len(completions))
	}

	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("expected ShellCompDirectiveNoFileComp, got %v", directive)
	}

	// Verify expected formats
	expectedFormats := map[string]bool{
		"text":     false,
		"json":     false,
		"markdown": false,
		"code:":    false,
	}

	for _, comp := range completions {
		parts := strings.Split(comp, "\t")
		if len(parts) < 1 {
			continue
		}
		format := parts[0]
		if _, ok := expectedFormats[format]; ok {
			expectedFormats[format] = true
		}
	}

	for format, found := range expectedFormats {
		if !found {
			t.Errorf("expected output format %q not found", format)
		}
	}
}

func TestCompleteTransportTypes(t *testing.T) {
	completions, directive := CompleteTransportTypes(nil, nil, "")

	if len(completions) != 4 {
		t.Errorf("expected 4 transport types, got %d", len(completions))
	}

	if directive != cobra.ShellCompDirectiveNoFileComp {
		t.Errorf("expected ShellCompDirectiveNoFileComp, got %v", directive)
	}

	// Verify expected types
	expectedTypes := map[string]bool{
		"stdio":           false,
		"websocket":       false,
		"sse":             false,
		"streamable-http": false,
	}

	for _, comp := range completions {
		parts := strings.Split(comp, "\t")
		if len(parts) < 1 {
			continue
		}
		transport := parts[0]
		if _, ok := expectedTypes[transport]; ok {
			expectedTypes[transport] = true
		}
	}

	for transport, found := range expectedTypes {
		if !found {
			t.Errorf("expected transport type %q not found", transport)
		}
	}
}

func TestFlagCompletions_HaveDescriptions(t *testing.T) {
	testCases := []struct {
		name string
		fn   func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective)
	}{
		{"OutputFormats", CompleteOutputFormats},
		{"TransportTypes", CompleteTransportTypes},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			completions, _ := tc.fn(nil, nil, "")

			for _, comp := range completions {
				if !strings.Contains(comp, "\t") {
					t.Errorf("%s completion %q should have a description separated by tab", tc.name, comp)
				}
			}
		})
	}
}
