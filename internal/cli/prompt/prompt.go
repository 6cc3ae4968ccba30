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

// Package prompt collects tool arguments interactively. It inspects a
// tool's input schema, identifies required arguments the caller did not
// supply, and prompts for them with validation and retry logic. A mock
// prompter supports testing without a terminal.
package prompt

import (
	"context"
	"fmt"
)

// Prompter defines the interface for interactive input collection.
// Implementations include SurveyPrompter (production) and MockPrompter (testing).
type Prompter interface {
	// PromptString collects a string input from the user
	PromptString(ctx context.Context, name, desc string, def string) (string, error)

	// PromptNumber collects a numeric input from the user
	PromptNumber(ctx context.Context, name, desc string, def float64) (float64, error)

	// PromptBool collects a boolean input from the user
	PromptBool(ctx context.Context, name, desc string, def bool) (bool, error)

	// PromptEnum presents a list of options and collects the user's selection
	PromptEnum(ctx context.Context, name, desc string, options []string, def string) (string, error)

	// PromptArray collects an array input from the user (comma-separated or JSON)
	PromptArray(ctx context.Context, name, desc string) ([]interface{}, error)

	// PromptObject collects an object input from the user (JSON)
	PromptObject(ctx context.Context, name, desc string) (map[string]interface{}, error)

	// Confirm asks a yes/no question
	Confirm(ctx context.Context, message string, def bool) (bool, error)

	// IsInteractive returns true if prompts can be displayed
	IsInteractive() bool
}

// ArgCollector manages a prompt session collecting the missing required
// arguments for one tool call.
type ArgCollector struct {
	prompter Prompter
}

// NewArgCollector creates a new argument collector with the given prompter.
func NewArgCollector(p Prompter) *ArgCollector {
	return &ArgCollector{prompter: p}
}

// CollectArgs prompts for each missing argument in order and returns the
// collected values keyed by argument name. Each argument is retried up to
// MaxRetries times on validation failure.
func (ac *ArgCollector) CollectArgs(ctx context.Context, missing []MissingArg) (map[string]interface{}, error) {
	if len(missing) == 0 {
		return map[string]interface{}{}, nil
	}
	if !ac.prompter.IsInteractive() {
		return nil, fmt.Errorf("cannot prompt for %d missing argument(s) in non-interactive mode", len(missing))
	}

	collected := make(map[string]interface{}, len(missing))
	for i, arg := range missing {
		prefix := ""
		if len(missing) > 1 {
			prefix = fmt.Sprintf("[Argument %d of %d] ", i+1, len(missing))
		}

		value, err := ac.collectOne(ctx, prefix, arg)
		if err != nil {
			return nil, err
		}
		collected[arg.Name] = value
	}

	return collected, nil
}

// collectOne prompts for a single argument with retry logic.
func (ac *ArgCollector) collectOne(ctx context.Context, prefix string, arg MissingArg) (interface{}, error) {
	var lastErr error

	for attempt := 0; attempt < MaxRetries; attempt++ {
		var value interface{}
		var err error

		name := prefix + arg.Name
		switch {
		case len(arg.Options) > 0:
			value, err = ac.prompter.PromptEnum(ctx, name, arg.Description, arg.Options, "")

		case arg.Type == ArgTypeNumber || arg.Type == ArgTypeInteger:
			value, err = ac.prompter.PromptNumber(ctx, name, arg.Description, 0)

		case arg.Type == ArgTypeBoolean:
			value, err = ac.prompter.PromptBool(ctx, name, arg.Description, false)

		case arg.Type == ArgTypeArray:
			value, err = ac.prompter.PromptArray(ctx, name, arg.Description)

		case arg.Type == ArgTypeObject:
			value, err = ac.prompter.PromptObject(ctx, name, arg.Description)

		default:
			value, err = ac.prompter.PromptString(ctx, name, arg.Description, "")
		}

		if err == nil {
			return value, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed to collect argument %q after %d attempts: %w", arg.Name, MaxRetries, lastErr)
}
