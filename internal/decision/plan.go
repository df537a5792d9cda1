// Package decision turns a user query plus session context into a Plan
// by prompting a text completion backend and recovering a structured
// object from whatever text comes back. The engine makes exactly one
// backend call per Plan request and never returns an error: every
// failure degrades to a plan that apologizes and carries diagnostics in
// its thought.
package decision

import "encoding/json"

// FinalAnswer is the sentinel tool name meaning "no tool, just speak".
const FinalAnswer = "final_answer"

// Memory action types the orchestrator understands. Anything else in a
// plan's memory_actions list is logged and ignored.
const (
	ActionStoreFact         = "store_fact"
	ActionSetCurrentScheme  = "set_current_scheme"
	ActionUpdateCurrentData = "update_current_scheme_data"
)

// MemoryAction is one memory mutation requested by a plan. Which fields
// are meaningful depends on Action: store_fact uses Key/Value,
// set_current_scheme uses SchemeID, update_current_scheme_data uses Data.
type MemoryAction struct {
	Action   string         `json:"action"`
	Key      string         `json:"key,omitempty"`
	Value    any            `json:"value,omitempty"`
	SchemeID string         `json:"scheme_id,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Plan is the structured decision output for one turn.
type Plan struct {
	Thought       string         `json:"thought"`
	ToolName      string         `json:"tool_name"`
	ToolInput     map[string]any `json:"tool_input"`
	Speak         string         `json:"speak"`
	MemoryActions []MemoryAction `json:"memory_actions"`

	// Degraded marks plans synthesized from a backend fault or an
	// unparseable reply rather than recovered from a real reply.
	Degraded bool `json:"-"`
}

// IsFinal reports whether the plan asks for no tool call.
func (p Plan) IsFinal() bool { return p.ToolName == FinalAnswer }

// parsePlan decodes recovered JSON into a Plan, filling the defaults
// the protocol allows the model to omit.
func parsePlan(raw []byte) (Plan, error) {
	var decoded struct {
		Thought       *string        `json:"thought"`
		ToolName      *string        `json:"tool_name"`
		ToolInput     map[string]any `json:"tool_input"`
		Speak         *string        `json:"speak"`
		MemoryActions []MemoryAction `json:"memory_actions"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return Plan{}, err
	}

	p := Plan{
		Thought:       "No thought process provided.",
		ToolName:      FinalAnswer,
		ToolInput:     map[string]any{},
		Speak:         "I'm not sure how to respond to that.",
		MemoryActions: []MemoryAction{},
	}
	if decoded.Thought != nil {
		p.Thought = *decoded.Thought
	}
	if decoded.ToolName != nil && *decoded.ToolName != "" {
		p.ToolName = *decoded.ToolName
	}
	if decoded.ToolInput != nil {
		p.ToolInput = decoded.ToolInput
	}
	if decoded.Speak != nil {
		p.Speak = *decoded.Speak
	}
	if decoded.MemoryActions != nil {
		p.MemoryActions = decoded.MemoryActions
	}
	return p, nil
}
