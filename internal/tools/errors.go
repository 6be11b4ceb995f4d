package tools

import (
	"errors"
	"fmt"
)

// ErrUnknownTool is returned by Resolve and Invoke for unregistered names.
var ErrUnknownTool = errors.New("unknown tool")

// ValidationError means the arguments did not match the tool's schema.
// The handler was not run.
type ValidationError struct {
	Tool  string
	Cause error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid arguments for %s: %v", e.Tool, e.Cause)
}

func (e *ValidationError) Unwrap() error { return e.Cause }

// ExecutionError wraps a handler failure, including a recovered panic or
// a timeout.
type ExecutionError struct {
	Tool  string
	Cause error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Tool, e.Cause)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }
