package worker

import (
	"context"
	"encoding/json"
)

// Executor runs the domain computation for one kind of task.
// Execute must only read input and must not retain it.
type Executor interface {
	// Kind returns the task kind this executor handles.
	Kind() string

	// Execute computes the output for input.
	Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc struct {
	kind string
	fn   func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)
}

// NewExecutorFunc creates an executor of the given kind backed by fn.
func NewExecutorFunc(kind string, fn func(ctx context.Context, input json.RawMessage) (json.RawMessage, error)) *ExecutorFunc {
	return &ExecutorFunc{kind: kind, fn: fn}
}

// Kind implements Executor.
func (e *ExecutorFunc) Kind() string { return e.kind }

// Execute implements Executor.
func (e *ExecutorFunc) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	return e.fn(ctx, input)
}
