// Package perception performs lightweight intent and entity extraction on
// raw user input. Its output is a hint for the decision engine, never a
// substitute for the raw query, and extraction never blocks or fails.
package perception

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Intent values produced by Process.
const (
	IntentGeneralQuery   = "general_query"
	IntentEndSession     = "end_session"
	IntentFinalizeScheme = "finalize_scheme"
)

// Command is a structured, directly actionable instruction recognized in
// the input, such as finalizing a specific scheme.
type Command struct {
	Type     string
	SchemeID string
}

// Observation is the result of processing one user input.
type Observation struct {
	OriginalQuery   string
	NormalizedQuery string
	Intent          string
	Entities        map[string]any
	Command         *Command
}

var (
	finalizePattern = regexp.MustCompile(`(?i)(finali[sz]e|choose|select|pick)\s+scheme\s*(\d+)`)

	endSessionKeywords = []string{"that is all, thank you", "exit", "quit", "bye", "goodbye"}
)

// Processor extracts intents and entities from user queries.
type Processor struct{}

// New creates a Processor.
func New() *Processor { return &Processor{} }

// Process analyses a raw user query and returns an Observation.
func (p *Processor) Process(query string) Observation {
	normalized := strings.ToLower(strings.TrimSpace(query))

	obs := Observation{
		OriginalQuery:   query,
		NormalizedQuery: normalized,
		Intent:          IntentGeneralQuery,
		Entities:        make(map[string]any),
	}

	for _, keyword := range endSessionKeywords {
		if strings.Contains(normalized, keyword) {
			obs.Intent = IntentEndSession
			return obs
		}
	}

	if match := finalizePattern.FindStringSubmatch(query); match != nil {
		number, _ := strconv.Atoi(match[2])
		schemeID := fmt.Sprintf("scheme_%s", match[2])
		obs.Intent = IntentFinalizeScheme
		obs.Entities["scheme_id_number"] = number
		obs.Entities["scheme_id_string"] = schemeID
		obs.Command = &Command{Type: IntentFinalizeScheme, SchemeID: schemeID}
	}

	return obs
}
