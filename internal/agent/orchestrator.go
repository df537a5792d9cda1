// Package agent runs the per-session turn loop: perceive the query,
// consult memory for repeats, plan with the decision engine, apply
// memory actions, dispatch tools, and record every turn. All tool and
// backend failures are absorbed into user-facing text; nothing a turn
// does can take the session down.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/buildsense/schemer/internal/decision"
	"github.com/buildsense/schemer/internal/perception"
	"github.com/buildsense/schemer/internal/session"
	"github.com/buildsense/schemer/internal/tool"
)

// Fixed session messages.
const (
	greeting        = "What do you want to do today?"
	farewell        = "That is all, thank you."
	noActiveSession = "No active session to end."
	fromMemoryNote  = "Retrieved from memory."
)

// repeatLookback is how many prior user turns are scanned for a
// repeated question.
const repeatLookback = 5

// terminationPhrases end the session when a normalized query matches
// one exactly.
var terminationPhrases = []string{"that is all, thank you.", "bye", "exit", "quit"}

// Planner produces a Plan for a turn. *decision.Engine is the
// production implementation.
type Planner interface {
	Plan(ctx context.Context, req decision.Request) decision.Plan
}

var _ Planner = (*decision.Engine)(nil)

// Observer receives turn-level notifications, mainly for metrics. All
// methods are called with the orchestrator lock held, so they must not
// call back into the orchestrator.
type Observer interface {
	TurnCompleted()
	ToolInvoked(name string)
	PlanDegraded()
	MemoryHit()
}

// Config wires an Orchestrator's collaborators.
type Config struct {
	Planner Planner

	// Observer is notified as turns complete; nil means no notifications.
	Observer Observer

	// Tools are registered into the orchestrator's registry; tools that
	// implement tool.SessionAware get the session memory bound at
	// construction.
	Tools []tool.Tool

	// SessionID pins the session identity; empty means a fresh random id.
	SessionID string

	// ContextBudget caps the memory context handed to the planner, in
	// characters. Zero or negative uses session.DefaultContextBudget.
	ContextBudget int

	Logger *slog.Logger
}

// Orchestrator owns one session: its memory, perception, planner, and
// tool registry. One turn runs at a time; a second ProcessQuery for the
// same session blocks until the first completes.
type Orchestrator struct {
	mu sync.Mutex

	memory     *session.Memory
	perception *perception.Processor
	planner    Planner
	registry   *tool.Registry
	observer   Observer
	budget     int
	logger     *slog.Logger

	active bool
}

// New builds an Orchestrator and binds the session memory into every
// session-aware tool. Tool registration problems are logged, not fatal:
// a misregistered tool is simply unavailable.
func New(cfg Config) *Orchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var mem *session.Memory
	if cfg.SessionID != "" {
		mem = session.NewWithID(cfg.SessionID, logger)
	} else {
		mem = session.New(logger)
	}
	logger = logger.With("component", "agent", "session", mem.SessionID())

	registry := tool.NewRegistry()
	for _, t := range cfg.Tools {
		if err := registry.Register(t); err != nil {
			logger.Warn("agent: skipping tool registration", "tool", t.Name(), "error", err)
		}
	}
	bound := tool.BindSession(mem, cfg.Tools)
	logger.Info("agent: initialized", "tools", len(registry.Names()), "session_aware", bound)

	budget := cfg.ContextBudget
	if budget <= 0 {
		budget = session.DefaultContextBudget
	}

	return &Orchestrator{
		memory:     mem,
		perception: perception.New(),
		planner:    cfg.Planner,
		registry:   registry,
		observer:   cfg.Observer,
		budget:     budget,
		logger:     logger,
	}
}

// SessionID returns the session's identifier.
func (o *Orchestrator) SessionID() string { return o.memory.SessionID() }

// Memory exposes the session memory, mainly for inspection endpoints.
func (o *Orchestrator) Memory() *session.Memory { return o.memory }

// Registry exposes the orchestrator's tool registry.
func (o *Orchestrator) Registry() *tool.Registry { return o.registry }

// Active reports whether a session is running.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// StartSession activates the session, resets its memory, and returns
// the fixed greeting (recorded as the first agent turn).
func (o *Orchestrator) StartSession() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.startLocked()
}

func (o *Orchestrator) startLocked() string {
	if o.active {
		o.logger.Warn("agent: start requested while session already active")
	}
	o.active = true
	o.memory.Clear()
	o.memory.AppendTurn(session.Turn{
		Role:        session.RoleAgent,
		Content:     greeting,
		FinalAnswer: greeting,
	})
	o.logger.Info("agent: session started")
	return greeting
}

// EndSession closes the session and returns the fixed farewell. Ending
// an idle session is a no-op that reports so rather than failing.
func (o *Orchestrator) EndSession() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.endLocked()
}

func (o *Orchestrator) endLocked() string {
	if !o.active {
		o.logger.Info("agent: end requested with no active session")
		return noActiveSession
	}
	o.memory.AppendTurn(session.Turn{
		Role:        session.RoleAgent,
		Content:     "Session ended.",
		FinalAnswer: farewell,
	})
	o.active = false
	o.logger.Info("agent: session ended")
	return farewell
}

// ProcessQuery runs one full turn and returns the user-facing answer.
// It auto-starts an idle session. Every failure path returns text; the
// session stays alive through tool and backend faults.
func (o *Orchestrator) ProcessQuery(ctx context.Context, query string) string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.active {
		o.logger.Warn("agent: query received while idle, starting session implicitly")
		o.startLocked()
	}

	obs := o.perception.Process(query)
	o.logger.Info("agent: turn started", "intent", obs.Intent)

	o.memory.AppendTurn(session.Turn{Role: session.RoleUser, Content: query})

	if isTermination(query) {
		return o.endLocked()
	}

	if answer, ok := o.memory.CheckRepeated(query, repeatLookback); ok {
		o.logger.Info("agent: answering repeated question from memory")
		o.memory.AppendTurn(session.Turn{
			Role:        session.RoleAgent,
			Content:     fromMemoryNote,
			FinalAnswer: answer,
		})
		if o.observer != nil {
			o.observer.MemoryHit()
			o.observer.TurnCompleted()
		}
		return answer
	}

	plan := o.plan(ctx, decision.Request{
		Query:         query,
		Intent:        obs.Intent,
		Entities:      obs.Entities,
		Command:       commandMap(obs.Command),
		MemoryContext: o.memory.BuildContext(o.budget),
		History:       o.memory.History(0),
	})
	o.logger.Info("agent: initial plan", "tool", plan.ToolName, "thought", plan.Thought)

	o.applyMemoryActions(plan.MemoryActions)

	answer := plan.Speak
	thought := plan.Thought
	var (
		usedTool   string
		usedInput  map[string]any
		toolOutput string
	)

	if !plan.IsFinal() {
		usedTool = plan.ToolName
		usedInput = plan.ToolInput
		answer, toolOutput, thought = o.dispatchTool(ctx, query, plan)
		if !o.registry.Has(plan.ToolName) {
			usedTool = ""
			usedInput = nil
		}
	}

	o.memory.AppendTurn(session.Turn{
		Role:        session.RoleAgent,
		Content:     thought,
		ToolName:    usedTool,
		ToolInput:   usedInput,
		ToolOutput:  toolOutput,
		FinalAnswer: answer,
	})
	if o.observer != nil {
		o.observer.TurnCompleted()
	}
	o.logger.Info("agent: turn complete", "answer_length", len(answer))
	return answer
}

// plan guards against a missing planner the same way the decision
// engine guards against a missing backend.
func (o *Orchestrator) plan(ctx context.Context, req decision.Request) decision.Plan {
	if o.planner == nil {
		o.logger.Error("agent: no planner configured")
		if o.observer != nil {
			o.observer.PlanDegraded()
		}
		return decision.Plan{
			Thought:       "No planner configured.",
			ToolName:      decision.FinalAnswer,
			ToolInput:     map[string]any{},
			Speak:         "Sorry, I'm having trouble thinking right now.",
			MemoryActions: []decision.MemoryAction{},
			Degraded:      true,
		}
	}
	p := o.planner.Plan(ctx, req)
	if p.Degraded && o.observer != nil {
		o.observer.PlanDegraded()
	}
	return p
}

// dispatchTool runs the planned tool and converts its outcome to the
// final answer, re-planning on success to phrase the result naturally.
// It returns (answer, rawToolOutput, thought).
func (o *Orchestrator) dispatchTool(ctx context.Context, query string, plan decision.Plan) (string, string, string) {
	t, err := o.registry.Get(plan.ToolName)
	if err != nil {
		o.logger.Warn("agent: planned tool not registered", "tool", plan.ToolName)
		answer := fmt.Sprintf("I thought about using a tool called '%s', but I don't seem to have it available right now.", plan.ToolName)
		return answer, "", plan.Thought
	}

	o.logger.Info("agent: executing tool", "tool", plan.ToolName, "input", plan.ToolInput)
	if o.observer != nil {
		o.observer.ToolInvoked(plan.ToolName)
	}
	result := safeExecute(ctx, t, plan.ToolInput)

	if !result.OK() {
		o.logger.Warn("agent: tool returned error", "tool", plan.ToolName, "message", result.Message)
		answer := fmt.Sprintf("Sorry, I encountered an error trying to use the tool: %s. Error: %s", plan.ToolName, result.Message)
		return answer, "Error: " + result.Message, plan.Thought
	}

	output := renderOutput(result)
	o.logger.Info("agent: tool succeeded", "tool", plan.ToolName)

	reeval := o.plan(ctx, decision.Request{
		Query:           query,
		MemoryContext:   o.memory.BuildContext(o.budget),
		History:         o.memory.History(0),
		PriorToolOutput: fmt.Sprintf("Tool '%s' was called with input %s and returned: %s", plan.ToolName, renderInput(plan.ToolInput), output),
	})
	if reeval.IsFinal() {
		o.applyMemoryActions(reeval.MemoryActions)
		return reeval.Speak, output, reeval.Thought
	}

	o.logger.Warn("agent: re-evaluation asked for another tool, using templated answer", "tool", reeval.ToolName)
	answer := fmt.Sprintf("I used the '%s' tool. Result: %s", plan.ToolName, output)
	return answer, output, plan.Thought
}

// safeExecute shields the turn from a panicking tool.
func safeExecute(ctx context.Context, t tool.Tool, input map[string]any) (result tool.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = tool.Errorf(t.Name(), fmt.Sprintf("tool panicked: %v", r))
		}
	}()
	return t.Execute(ctx, input)
}

// applyMemoryActions applies plan memory actions in list order. Bad
// entries are logged and skipped, never fatal.
func (o *Orchestrator) applyMemoryActions(actions []decision.MemoryAction) {
	for _, a := range actions {
		switch a.Action {
		case decision.ActionStoreFact:
			o.memory.StoreFact(a.Key, a.Value)
		case decision.ActionSetCurrentScheme:
			if a.SchemeID == "" {
				o.logger.Warn("agent: set_current_scheme action missing scheme_id")
				continue
			}
			if !o.memory.SetCurrentScheme(a.SchemeID) {
				o.logger.Warn("agent: set_current_scheme failed", "scheme_id", a.SchemeID)
			}
		case decision.ActionUpdateCurrentData:
			if len(a.Data) == 0 {
				o.logger.Warn("agent: update_current_scheme_data action missing data")
				continue
			}
			if !o.memory.UpdateCurrentSchemeData(a.Data) {
				o.logger.Warn("agent: update_current_scheme_data with no current scheme")
			}
		default:
			o.logger.Warn("agent: unknown memory action type", "action", a.Action)
		}
	}
}

func isTermination(query string) bool {
	normalized := strings.ToLower(strings.TrimSpace(query))
	for _, phrase := range terminationPhrases {
		if normalized == phrase {
			return true
		}
	}
	return false
}

func commandMap(c *perception.Command) map[string]any {
	if c == nil {
		return nil
	}
	return map[string]any{"type": c.Type, "scheme_id": c.SchemeID}
}

func renderInput(input map[string]any) string {
	if len(input) == 0 {
		return "{}"
	}
	return mustJSON(input)
}

func renderOutput(result tool.Result) string {
	if result.Output == nil {
		return ""
	}
	if s, ok := result.Output.(string); ok {
		return s
	}
	return mustJSON(result.Output)
}

func mustJSON(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(out)
}
