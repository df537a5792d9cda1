// Package tool defines the tool interface, result model, and registry for
// schemer. Every action the agent takes against the outside world goes
// through a registered tool, and every tool failure is reported as an
// error-status Result rather than a raised error, so a misbehaving tool
// can never abort an orchestration turn.
package tool

import (
	"context"
	"encoding/json"
)

// Status classifies a tool execution outcome.
type Status string

// Status values for tool results.
const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Result is the normalized outcome of a tool execution. Transport faults,
// protocol faults, and application errors all surface here as StatusError
// with a message; Output carries the payload on success.
type Result struct {
	Status   Status `json:"status"`
	ToolName string `json:"tool_name,omitempty"`
	Output   any    `json:"output,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Errorf builds an error-status Result.
func Errorf(name, message string) Result {
	return Result{Status: StatusError, ToolName: name, Message: message}
}

// Success builds a success-status Result.
func Success(name string, output any) Result {
	return Result{Status: StatusSuccess, ToolName: name, Output: output}
}

// OK reports whether the result carries a success status.
func (r Result) OK() bool { return r.Status == StatusSuccess }

// Tool is the interface all schemer tools implement.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description used in the
	// decision engine's tool catalog.
	Description() string

	// Schema returns a JSON Schema describing the tool's parameters.
	Schema() json.RawMessage

	// Execute runs the tool. Failures are reported in the Result; Execute
	// never returns a Go error.
	Execute(ctx context.Context, input map[string]any) Result
}
