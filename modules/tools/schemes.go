package tools

import (
	"context"
	"log/slog"

	"github.com/buildsense/schemer/internal/session"
	"github.com/buildsense/schemer/internal/tool"
)

const formSchemerSchema = `{"type":"object","properties":{"grid_spacing_x":{"type":"number"},"grid_spacing_y":{"type":"number"},"extents_x":{"type":"number"},"extents_y":{"type":"number"},"no_of_floors":{"type":"integer"}},"required":["grid_spacing_x","grid_spacing_y","extents_x","extents_y","no_of_floors"]}`

// formSchemerTool evaluates building form schemes via the worker and
// mirrors the results into session memory: a batch of generated schemes
// is stored as numbered scheme records, a single tonnage evaluation is
// merged into the current scheme.
type formSchemerTool struct {
	workerTool
	memory *session.Memory
}

var (
	_ tool.Tool         = (*formSchemerTool)(nil)
	_ tool.SessionAware = (*formSchemerTool)(nil)
)

// NewFormSchemer returns the building form scheme evaluation tool.
func NewFormSchemer(caller Caller, logger *slog.Logger) tool.Tool {
	return &formSchemerTool{workerTool: newWorkerTool(
		"ai_form_schemer",
		"Generates and evaluates a building form scheme, calculating steel and concrete tonnage for the given grid and extents.",
		formSchemerSchema,
		caller, logger,
	)}
}

func (t *formSchemerTool) BindMemory(m *session.Memory) { t.memory = m }

func (t *formSchemerTool) Execute(ctx context.Context, input map[string]any) tool.Result {
	result := t.workerTool.Execute(ctx, input)
	if !result.OK() || t.memory == nil {
		return result
	}

	output, ok := result.Output.(map[string]any)
	if !ok {
		return result
	}

	if schemes := schemeList(output["schemes"]); len(schemes) > 0 {
		ids := t.memory.StoreGeneratedSchemes(schemes)
		t.logger.Info("stored generated schemes in session memory", "count", len(ids))
		return result
	}

	if t.memory.CurrentSchemeID() != "" {
		if t.memory.UpdateCurrentSchemeData(output) {
			t.logger.Info("merged evaluation into current scheme")
		}
	}
	return result
}

// schemeList coerces a decoded "schemes" payload into scheme records,
// skipping entries that are not objects.
func schemeList(v any) []map[string]any {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if record, ok := item.(map[string]any); ok {
			out = append(out, record)
		}
	}
	return out
}
