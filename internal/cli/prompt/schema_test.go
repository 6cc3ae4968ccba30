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

package prompt

import "testing"

func fetchSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to fetch",
			},
			"max_length": map[string]interface{}{
				"type": "integer",
			},
			"format": map[string]interface{}{
				"type": "string",
				"enum": []interface{}{"text", "html", "markdown"},
			},
		},
		"required": []interface{}{"url", "format"},
	}
}

func TestFindMissingArgs(t *testing.T) {
	tests := []struct {
		name   string
		schema map[string]interface{}
		args   map[string]interface{}
		want   []string
	}{
		{
			name:   "all required missing",
			schema: fetchSchema(),
			args:   map[string]interface{}{},
			want:   []string{"url", "format"},
		},
		{
			name:   "partially provided",
			schema: fetchSchema(),
			args:   map[string]interface{}{"url": "https://example.com"},
			want:   []string{"format"},
		},
		{
			name:   "all provided",
			schema: fetchSchema(),
			args:   map[string]interface{}{"url": "https://example.com", "format": "text"},
			want:   nil,
		},
		{
			name:   "optional args never reported",
			schema: fetchSchema(),
			args:   map[string]interface{}{"url": "u", "format": "text", "max_length": 10},
			want:   nil,
		},
		{
			name:   "no required list",
			schema: map[string]interface{}{"type": "object"},
			args:   map[string]interface{}{},
			want:   nil,
		},
		{
			name:   "malformed required entries skipped",
			schema: map[string]interface{}{"required": []interface{}{42, ""}},
			args:   map[string]interface{}{},
			want:   nil,
		},
		{
			name:   "nil schema",
			schema: nil,
			args:   map[string]interface{}{},
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FindMissingArgs(tt.schema, tt.args)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d missing args, want %d: %v", len(got), len(tt.want), got)
			}
			for i, name := range tt.want {
				if got[i].Name != name {
					t.Errorf("missing[%d] = %q, want %q", i, got[i].Name, name)
				}
			}
		})
	}
}

func TestFindMissingArgs_PropertyMetadata(t *testing.T) {
	missing := FindMissingArgs(fetchSchema(), nil)
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing args, got %d", len(missing))
	}

	url := missing[0]
	if url.Type != ArgTypeString {
		t.Errorf("url type = %q, want string", url.Type)
	}
	if url.Description != "URL to fetch" {
		t.Errorf("url description = %q", url.Description)
	}
	if len(url.Options) != 0 {
		t.Errorf("url should have no enum options")
	}

	format := missing[1]
	if len(format.Options) != 3 || format.Options[0] != "text" {
		t.Errorf("format options = %v", format.Options)
	}
}

func TestFindMissingArgs_UntypedProperty(t *testing.T) {
	schema := map[string]interface{}{
		"required": []interface{}{"payload"},
	}

	missing := FindMissingArgs(schema, nil)
	if len(missing) != 1 {
		t.Fatalf("expected 1 missing arg, got %d", len(missing))
	}
	// Absent property schemas default to string prompting
	if missing[0].Type != ArgTypeString {
		t.Errorf("type = %q, want string", missing[0].Type)
	}
}
