package tools

import (
	"log/slog"

	"github.com/buildsense/schemer/internal/tool"
)

const searchDocumentsSchema = `{"type":"object","properties":{"query":{"type":"string","description":"The search query"}},"required":["query"]}`

// documentsTool searches internal case-study documents via the worker.
type documentsTool struct{ workerTool }

var _ tool.Tool = (*documentsTool)(nil)

// NewSearchDocuments returns the case-study search tool.
func NewSearchDocuments(caller Caller, logger *slog.Logger) tool.Tool {
	return &documentsTool{newWorkerTool(
		"search_documents",
		"Searches internal documents for case studies and information on building options, materials, or construction techniques, including topics like waste management.",
		searchDocumentsSchema,
		caller, logger,
	)}
}
