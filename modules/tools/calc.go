package tools

import (
	"log/slog"

	"github.com/buildsense/schemer/internal/tool"
)

const twoIntSchema = `{"type":"object","properties":{"a":{"type":"integer"},"b":{"type":"integer"}},"required":["a","b"]}`

const twoNumberSchema = `{"type":"object","properties":{"a":{"type":"number"},"b":{"type":"number"}},"required":["a","b"]}`

// calcTool is a plain worker delegate with no memory side effects.
type calcTool struct{ workerTool }

var _ tool.Tool = (*calcTool)(nil)

// NewAdd returns the integer addition tool.
func NewAdd(caller Caller, logger *slog.Logger) tool.Tool {
	return &calcTool{newWorkerTool("add", "Adds two integers.", twoIntSchema, caller, logger)}
}

// NewSubtract returns the integer subtraction tool.
func NewSubtract(caller Caller, logger *slog.Logger) tool.Tool {
	return &calcTool{newWorkerTool("subtract", "Subtracts two integers.", twoIntSchema, caller, logger)}
}

// NewMultiply returns the multiplication tool.
func NewMultiply(caller Caller, logger *slog.Logger) tool.Tool {
	return &calcTool{newWorkerTool("multiply", "Multiplies two numbers.", twoNumberSchema, caller, logger)}
}

// NewDivide returns the division tool. Division by zero is the worker's
// concern; it reports it as an error result like any other fault.
func NewDivide(caller Caller, logger *slog.Logger) tool.Tool {
	return &calcTool{newWorkerTool("divide", "Divides two numbers. Cannot divide by zero.", twoNumberSchema, caller, logger)}
}
