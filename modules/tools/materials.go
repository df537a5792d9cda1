package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/buildsense/schemer/internal/session"
	"github.com/buildsense/schemer/internal/tool"
)

const productSearchSchema = `{"type":"object","properties":{"product_name":{"type":"string","description":"The type of product to search for, e.g. 'paint', 'insulation', 'structural steel'"}},"required":["product_name"]}`

const materialPropertySchema = `{"type":"object","properties":{"material_name":{"type":"string","description":"The name of the material"},"property_name":{"type":"string","description":"The property to fetch"}},"required":["material_name","property_name"]}`

// productOptionsFactKey holds the product list from the most recent
// search so follow-up questions can be answered from memory.
const productOptionsFactKey = "product_options"

// productSearchTool queries the 2050 Materials database via the worker
// and remembers the returned product options.
type productSearchTool struct {
	workerTool
	memory *session.Memory
}

var (
	_ tool.Tool         = (*productSearchTool)(nil)
	_ tool.SessionAware = (*productSearchTool)(nil)
)

// NewProductSearch returns the 2050 Materials product search tool.
func NewProductSearch(caller Caller, logger *slog.Logger) tool.Tool {
	return &productSearchTool{workerTool: newWorkerTool(
		"search_2050_products",
		"Searches the 2050 Materials database for a product type and returns the options with the lowest manufacturing emissions.",
		productSearchSchema,
		caller, logger,
	)}
}

func (t *productSearchTool) BindMemory(m *session.Memory) { t.memory = m }

func (t *productSearchTool) Execute(ctx context.Context, input map[string]any) tool.Result {
	result := t.workerTool.Execute(ctx, input)
	if !result.OK() || t.memory == nil {
		return result
	}
	if output, ok := result.Output.(map[string]any); ok {
		if products, ok := output["products"]; ok {
			t.memory.StoreFact(productOptionsFactKey, products)
			t.logger.Info("stored product options in session memory")
		}
	}
	return result
}

// materialPropertyTool fetches one property of one material and caches
// the value as a session fact keyed by material and property.
type materialPropertyTool struct {
	workerTool
	memory *session.Memory
}

var (
	_ tool.Tool         = (*materialPropertyTool)(nil)
	_ tool.SessionAware = (*materialPropertyTool)(nil)
)

// NewMaterialPropertyFetcher returns the material property tool.
func NewMaterialPropertyFetcher(caller Caller, logger *slog.Logger) tool.Tool {
	return &materialPropertyTool{workerTool: newWorkerTool(
		"material_property_fetcher",
		"Fetches a specific property for a given material. Stores the fetched property in agent memory.",
		materialPropertySchema,
		caller, logger,
	)}
}

func (t *materialPropertyTool) BindMemory(m *session.Memory) { t.memory = m }

func (t *materialPropertyTool) Execute(ctx context.Context, input map[string]any) tool.Result {
	result := t.workerTool.Execute(ctx, input)
	if !result.OK() || t.memory == nil || result.Output == nil {
		return result
	}

	material := stringOr(input["material_name"], "unknown_material")
	property := stringOr(input["property_name"], "unknown_property")

	// Prefer the "value" field of a structured payload, else keep the
	// whole output.
	value := result.Output
	if output, ok := result.Output.(map[string]any); ok {
		if v, ok := output["value"]; ok {
			value = v
		}
	}
	if value != nil {
		key := fmt.Sprintf("material_property_%s_%s", material, property)
		t.memory.StoreFact(key, value)
		t.logger.Info("stored material property in session memory", "key", key)
	}
	return result
}

func stringOr(v any, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}
