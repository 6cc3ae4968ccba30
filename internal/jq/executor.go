// Package jq evaluates the jq expressions that server argument transforms
// are written in. Execution is bounded in both time and input size so a
// bad transform cannot wedge a tool call.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
)

const (
	// DefaultTimeout bounds a single expression run.
	DefaultTimeout = 1 * time.Second

	// DefaultMaxInputSize caps the JSON size of the transform input.
	DefaultMaxInputSize = 10 * 1024 * 1024
)

// Executor runs jq expressions under a deadline and an input size cap.
// The zero values of both limits fall back to the package defaults.
type Executor struct {
	timeout  time.Duration
	maxInput int64
}

// NewExecutor returns an executor with the given limits.
func NewExecutor(timeout time.Duration, maxInput int64) *Executor {
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if maxInput == 0 {
		maxInput = DefaultMaxInputSize
	}
	return &Executor{timeout: timeout, maxInput: maxInput}
}

// Execute runs expression against data. An empty expression is the
// identity. When the expression yields one value that value is returned;
// several values come back as a slice.
func (e *Executor) Execute(ctx context.Context, expression string, data any) (any, error) {
	if expression == "" {
		return data, nil
	}

	if err := e.checkInputSize(data); err != nil {
		return nil, err
	}

	code, err := compile(expression)
	if err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// RunWithContext keeps even non-terminating expressions (until, repeat)
	// interruptible.
	iter := code.RunWithContext(execCtx, data)

	var results []any
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if runErr, isErr := v.(error); isErr {
			if execCtx.Err() != nil {
				return nil, fmt.Errorf("execution timeout after %v", e.timeout)
			}
			return nil, runErr
		}
		results = append(results, v)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// Validate compiles an expression without running it, so a broken
// transform surfaces when the config loads rather than mid-call.
func (e *Executor) Validate(expression string) error {
	if expression == "" {
		return nil
	}
	_, err := compile(expression)
	return err
}

// compile parses and compiles a jq expression.
func compile(expression string) (*gojq.Code, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}

	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("jq compilation failed: %w", err)
	}
	return code, nil
}

// checkInputSize rejects transform inputs whose JSON form exceeds the cap.
func (e *Executor) checkInputSize(data any) error {
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	if int64(len(encoded)) > e.maxInput {
		return fmt.Errorf("data size (%d bytes) exceeds maximum (%d bytes)", len(encoded), e.maxInput)
	}
	return nil
}
