package adapt

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

var fetchSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"url": {"type": "string"},
		"max_length": {"type": "integer"}
	},
	"required": ["url"]
}`)

var messageSchema = json.RawMessage(`{
	"type": "object",
	"properties": {
		"message": {"type": "string"}
	}
}`)

func TestMerge(t *testing.T) {
	tests := []struct {
		name    string
		schema  json.RawMessage
		args    map[string]any
		message string
		want    map[string]any
	}{
		{
			name:    "message merges under message key",
			schema:  messageSchema,
			message: "hello",
			want:    map[string]any{"message": "hello"},
		},
		{
			name:    "existing message argument wins",
			schema:  messageSchema,
			args:    map[string]any{"message": "explicit"},
			message: "ignored",
			want:    map[string]any{"message": "explicit"},
		},
		{
			name:    "url schema maps message to url",
			schema:  fetchSchema,
			message: "https://example.com",
			want:    map[string]any{"url": "https://example.com"},
		},
		{
			name:    "url schema overrides explicit url with message",
			schema:  fetchSchema,
			args:    map[string]any{"url": "https://old.example.com", "max_length": 100},
			message: "https://new.example.com",
			want:    map[string]any{"url": "https://new.example.com", "max_length": 100},
		},
		{
			name:   "empty message leaves args alone",
			schema: messageSchema,
			args:   map[string]any{"count": 3},
			want:   map[string]any{"count": 3},
		},
		{
			name:    "nil args with no message",
			schema:  nil,
			message: "",
			want:    map[string]any{},
		},
		{
			name:    "no schema falls back to message key",
			schema:  nil,
			message: "hi",
			want:    map[string]any{"message": "hi"},
		},
		{
			name:    "invalid schema falls back to message key",
			schema:  json.RawMessage(`{not json`),
			message: "hi",
			want:    map[string]any{"message": "hi"},
		},
		{
			name: "schema with both url and message keeps message key",
			schema: json.RawMessage(`{
				"properties": {"url": {"type": "string"}, "message": {"type": "string"}}
			}`),
			message: "hi",
			want:    map[string]any{"message": "hi"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Merge(tt.schema, tt.args, tt.message)
			if len(got) != len(tt.want) {
				t.Fatalf("Merge() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Merge()[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestMerge_DoesNotMutateInput(t *testing.T) {
	args := map[string]any{"count": 3}
	Merge(messageSchema, args, "hello")

	if len(args) != 1 {
		t.Errorf("input map was mutated: %v", args)
	}
}

func TestArguments_NoTransform(t *testing.T) {
	got, err := Arguments(context.Background(), messageSchema, map[string]any{"a": "b"}, "hello", "")
	if err != nil {
		t.Fatalf("Arguments failed: %v", err)
	}
	if got["a"] != "b" || got["message"] != "hello" {
		t.Errorf("unexpected merge result: %v", got)
	}
}

func TestArguments_TransformReshapes(t *testing.T) {
	got, err := Arguments(context.Background(), messageSchema, nil, "hello world",
		`{query: .message, limit: 5}`)
	if err != nil {
		t.Fatalf("Arguments failed: %v", err)
	}
	if got["query"] != "hello world" {
		t.Errorf("expected transform to move message into query, got %v", got)
	}
	if got["limit"] != 5 {
		t.Errorf("expected literal limit 5, got %v (%T)", got["limit"], got["limit"])
	}
}

func TestArguments_TransformMustProduceObject(t *testing.T) {
	_, err := Arguments(context.Background(), nil, nil, "hello", `.message`)
	if err == nil {
		t.Fatal("expected error for non-object transform result")
	}
	if !strings.Contains(err.Error(), "must produce an object") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestArguments_TransformSyntaxError(t *testing.T) {
	_, err := Arguments(context.Background(), nil, nil, "hello", `{broken`)
	if err == nil {
		t.Fatal("expected error for broken expression")
	}
}

func TestValidateTransform(t *testing.T) {
	if err := ValidateTransform(""); err != nil {
		t.Errorf("empty expression should validate: %v", err)
	}
	if err := ValidateTransform(`{query: .message}`); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateTransform(`{broken`); err == nil {
		t.Error("expected error for broken expression")
	}
}
