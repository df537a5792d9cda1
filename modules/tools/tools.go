// Package tools implements the agent's tool set. Every tool delegates
// its actual work to the shared worker subprocess via a Caller; the
// wrappers contribute the catalog metadata (name, description, schema)
// and, for the session-aware ones, the memory side effects applied to
// successful results.
package tools

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/buildsense/schemer/internal/tool"
	"github.com/buildsense/schemer/internal/worker"
)

// Caller issues one correlated exchange against the worker subprocess.
// *worker.Client is the production implementation.
type Caller interface {
	Call(ctx context.Context, method string, params map[string]any) worker.Result
}

var _ Caller = (*worker.Client)(nil)

// workerTool is the common delegate: Execute forwards the input to the
// worker method named after the tool and normalizes the outcome.
type workerTool struct {
	name        string
	description string
	schema      json.RawMessage
	caller      Caller
	logger      *slog.Logger
}

func newWorkerTool(name, description string, schema string, caller Caller, logger *slog.Logger) workerTool {
	if logger == nil {
		logger = slog.Default()
	}
	return workerTool{
		name:        name,
		description: description,
		schema:      json.RawMessage(schema),
		caller:      caller,
		logger:      logger.With("tool", name),
	}
}

func (t *workerTool) Name() string            { return t.name }
func (t *workerTool) Description() string     { return t.description }
func (t *workerTool) Schema() json.RawMessage { return t.schema }

func (t *workerTool) Execute(ctx context.Context, input map[string]any) tool.Result {
	if t.caller == nil {
		return tool.Errorf(t.name, "worker process not available")
	}
	res := t.caller.Call(ctx, t.name, input)
	if !res.OK() {
		t.logger.Warn("tool call failed", "message", res.Message)
		return tool.Errorf(t.name, res.Message)
	}
	return tool.Success(t.name, decodeOutput(res.Output))
}

// decodeOutput turns the raw worker payload into Go values so callers
// and memory side effects can inspect it. Undecodable payloads are kept
// as raw text rather than dropped.
func decodeOutput(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

// All returns the full tool set backed by the given caller, in catalog
// order.
func All(caller Caller, logger *slog.Logger) []tool.Tool {
	return []tool.Tool{
		NewAdd(caller, logger),
		NewSubtract(caller, logger),
		NewMultiply(caller, logger),
		NewDivide(caller, logger),
		NewSearchDocuments(caller, logger),
		NewProductSearch(caller, logger),
		NewMaterialPropertyFetcher(caller, logger),
		NewFormSchemer(caller, logger),
	}
}
