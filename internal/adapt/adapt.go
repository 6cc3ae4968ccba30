// Package adapt reshapes caller-supplied arguments to fit a tool's input
// schema before a call goes out.
package adapt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tombee/ensemble/internal/jq"
)

const (
	// TransformTimeout is the maximum execution time for argument transforms (1 second)
	TransformTimeout = 1 * time.Second

	// TransformMaxInputSize is the maximum merged-argument size for transforms (10MB)
	TransformMaxInputSize = 10 * 1024 * 1024
)

// Merge combines explicit arguments with a free-form message. The message
// lands under "url" when the tool's input schema asks for one, otherwise
// under "message" unless the caller already set it. The input map is never
// mutated.
func Merge(schema json.RawMessage, args map[string]any, message string) map[string]any {
	merged := make(map[string]any, len(args)+1)
	for k, v := range args {
		merged[k] = v
	}

	if message == "" {
		return merged
	}

	if schemaWantsURL(schema) {
		// Fetch-style tools take the message as their target URL.
		merged["url"] = message
		return merged
	}

	if _, ok := merged["message"]; !ok {
		merged["message"] = message
	}
	return merged
}

// Arguments merges args and message, then applies the server's optional jq
// transform to the merged object. The transform must yield an object.
func Arguments(ctx context.Context, schema json.RawMessage, args map[string]any, message, transform string) (map[string]any, error) {
	merged := Merge(schema, args, message)
	if transform == "" {
		return merged, nil
	}

	executor := jq.NewExecutor(TransformTimeout, TransformMaxInputSize)
	result, err := executor.Execute(ctx, transform, merged)
	if err != nil {
		return nil, fmt.Errorf("argument transform failed: %w", err)
	}

	out, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("argument transform must produce an object, got %T", result)
	}
	return out, nil
}

// ValidateTransform compiles a transform expression so syntax errors surface
// at configuration load rather than call time.
func ValidateTransform(expression string) error {
	return jq.NewExecutor(TransformTimeout, TransformMaxInputSize).Validate(expression)
}

// schemaWantsURL reports whether the input schema declares a url property
// and no message property, the shape fetch-style tools advertise.
func schemaWantsURL(schema json.RawMessage) bool {
	if len(schema) == 0 {
		return false
	}

	var decoded struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema, &decoded); err != nil {
		return false
	}

	_, hasURL := decoded.Properties["url"]
	_, hasMessage := decoded.Properties["message"]
	return hasURL && !hasMessage
}
