package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/buildsense/schemer/internal/session"
)

// Completer is the text completion backend: one text blob in, one text
// blob out. No schema is enforced by the transport; all structure is
// recovered from the reply text.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Fixed user-facing apologies for the degenerate plans.
const (
	apologyNotInitialized = "Sorry, I'm having trouble thinking right now."
	apologyBadFormat      = "I'm sorry, I had trouble understanding the response format."
	apologyUnexpected     = "I'm sorry, an unexpected error occurred."
)

// historyWindow is how many trailing turns (user and agent counted
// separately) are quoted in the prompt.
const historyWindow = 6

// Request carries everything the engine needs to plan one turn.
type Request struct {
	Query         string
	Intent        string
	Entities      map[string]any
	Command       map[string]any
	MemoryContext string
	History       []session.Turn

	// PriorToolOutput, when non-empty, marks this as a re-evaluation
	// call: a tool already ran and its output should be turned into a
	// natural final answer.
	PriorToolOutput string
}

// Engine plans turns against a Completer. A nil Completer is a valid
// (degraded) state: every Plan call then returns the fixed apology
// without attempting a backend call.
type Engine struct {
	completer Completer
	catalog   string
	logger    *slog.Logger
}

// New creates an Engine. catalog is the rendered tool listing embedded
// into every prompt; completer may be nil when no backend is configured.
func New(completer Completer, catalog string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if completer == nil {
		logger.Error("decision: no completion backend configured, all plans will degrade")
	}
	return &Engine{
		completer: completer,
		catalog:   catalog,
		logger:    logger.With("component", "decision"),
	}
}

// Plan makes exactly one backend call and recovers a Plan from its
// reply. It never returns an error and never retries: backend faults and
// unparseable replies come back as final-answer plans with a fixed
// apology in Speak and diagnostics in Thought.
func (e *Engine) Plan(ctx context.Context, req Request) Plan {
	if e.completer == nil {
		e.logger.Error("decision: backend not initialized, returning degraded plan")
		return degradedPlan("LLM not initialized.", apologyNotInitialized)
	}

	prompt := e.buildPrompt(req)
	e.logger.Debug("decision: prompt built", "length", len(prompt), "reevaluation", req.PriorToolOutput != "")

	reply, err := e.completer.Complete(ctx, prompt)
	if err != nil {
		e.logger.Error("decision: completion call failed", "error", err)
		return degradedPlan(fmt.Sprintf("Error: An unexpected error occurred: %v", err), apologyUnexpected)
	}

	recovered := recoverJSON(reply)
	plan, err := parsePlan([]byte(recovered))
	if err != nil {
		e.logger.Error("decision: failed to parse plan", "error", err, "raw", reply)
		return degradedPlan(fmt.Sprintf("Error: Could not parse LLM response. Raw: %s", reply), apologyBadFormat)
	}

	e.logger.Info("decision: plan ready", "tool", plan.ToolName, "memory_actions", len(plan.MemoryActions))
	return plan
}

func degradedPlan(thought, speak string) Plan {
	return Plan{
		Thought:       thought,
		ToolName:      FinalAnswer,
		ToolInput:     map[string]any{},
		Speak:         speak,
		MemoryActions: []MemoryAction{},
		Degraded:      true,
	}
}

func (e *Engine) buildPrompt(req Request) string {
	var b strings.Builder

	b.WriteString(systemPrompt(e.catalog))

	b.WriteString("\n--- Pre-processed Information from Perception Module ---\n")
	intent := req.Intent
	if intent == "" {
		intent = "N/A"
	}
	fmt.Fprintf(&b, "Perceived Intent: %s\n", intent)
	if len(req.Entities) > 0 {
		fmt.Fprintf(&b, "Extracted Entities by Perception: %s\n", mustJSON(req.Entities))
	}
	if len(req.Command) > 0 {
		fmt.Fprintf(&b, "Parsed Command by Perception: %s\n", mustJSON(req.Command))
	}
	b.WriteString("Note: Use this perception data as a hint, but always prioritize the user's raw query for final understanding.\n")

	b.WriteString("\n--- Current Memory Context ---\n")
	if strings.TrimSpace(req.MemoryContext) != "" {
		b.WriteString(req.MemoryContext)
		b.WriteString("\n")
	} else {
		b.WriteString("No specific facts or scheme data currently in active memory.\n")
	}

	b.WriteString("\n--- Recent Conversation History (for context) ---\n")
	history := req.History
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	if len(history) == 0 {
		b.WriteString("No prior conversation in this session.\n")
	} else {
		for _, turn := range history {
			content := turn.Content
			if turn.Role == session.RoleAgent && turn.FinalAnswer != "" {
				content = turn.FinalAnswer
			}
			fmt.Fprintf(&b, "%s: %s\n", roleLabel(turn.Role), content)
		}
	}

	if req.PriorToolOutput != "" {
		b.WriteString("\n--- Result from Last Tool Execution ---\n")
		fmt.Fprintf(&b, "Tool output: %s\n", req.PriorToolOutput)
		b.WriteString("Based on this tool output and the original query, formulate your final response or decide the next step.\n")
	}

	fmt.Fprintf(&b, "\n--- User's Current Query ---\nUser: %s\n", req.Query)
	b.WriteString("\n--- Your JSON Response ---\n")

	return b.String()
}

func roleLabel(r session.Role) string {
	switch r {
	case session.RoleUser:
		return "User"
	case session.RoleAgent:
		return "Agent"
	default:
		return "Unknown"
	}
}

func mustJSON(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(out)
}
