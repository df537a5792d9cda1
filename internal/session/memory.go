// Package session implements per-conversation agent memory: the ordered
// turn log, key/value facts, design-scheme records, and the bounded
// context serializer consumed by the decision engine.
//
// A Memory belongs to exactly one session and is accessed sequentially;
// it is not safe for concurrent use. Operations never fail on normal
// misuse (unknown key, unknown scheme); they return absent sentinels so
// a hallucinated reference from the decision engine cannot crash a turn.
package session

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Fact key under which the current scheme pointer is mirrored, so that
// pointer and fact lookups always agree.
const currentSchemeFactKey = "current_scheme_id"

// Memory holds all mutable state for one conversation session.
type Memory struct {
	sessionID string
	turns     []Turn
	facts     map[string]any
	factOrder []string
	schemes   map[string]map[string]any
	currentID string
	logger    *slog.Logger
}

// New creates a Memory with a freshly generated session ID.
func New(logger *slog.Logger) *Memory {
	return NewWithID(uuid.NewString(), logger)
}

// NewWithID creates a Memory bound to an existing session ID.
func NewWithID(id string, logger *slog.Logger) *Memory {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Memory{
		sessionID: id,
		facts:     make(map[string]any),
		schemes:   make(map[string]map[string]any),
		logger:    logger.With("session", id),
	}
	return m
}

// SessionID returns the session identifier this memory belongs to.
func (m *Memory) SessionID() string { return m.sessionID }

// AppendTurn records a turn at the end of the conversation history.
func (m *Memory) AppendTurn(t Turn) {
	m.turns = append(m.turns, t)
	m.logger.Debug("session: turn appended", "role", t.Role, "tool", t.ToolName)
}

// History returns a copy of the conversation history. If lastN > 0, only
// the lastN most recent turns are returned.
func (m *Memory) History(lastN int) []Turn {
	turns := m.turns
	if lastN > 0 && lastN < len(turns) {
		turns = turns[len(turns)-lastN:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Len returns the number of recorded turns.
func (m *Memory) Len() int { return len(m.turns) }

// StoreFact stores a key/value fact. Last write wins.
func (m *Memory) StoreFact(key string, value any) {
	if _, exists := m.facts[key]; !exists {
		m.factOrder = append(m.factOrder, key)
	}
	m.facts[key] = value
	m.logger.Debug("session: fact stored", "key", key)
}

// RetrieveFact returns the value stored under key, if any.
func (m *Memory) RetrieveFact(key string) (any, bool) {
	v, ok := m.facts[key]
	return v, ok
}

// Facts returns a copy of all stored facts.
func (m *Memory) Facts() map[string]any {
	out := make(map[string]any, len(m.facts))
	for k, v := range m.facts {
		out[k] = v
	}
	return out
}

// StoreScheme stores or updates data for a scheme. With overwrite false
// (the default used by callers applying incremental updates) the new data
// is shallow-merged into any existing record, so repeated partial updates
// accumulate. With overwrite true the record is replaced wholesale.
func (m *Memory) StoreScheme(id string, data map[string]any, overwrite bool) {
	if _, exists := m.schemes[id]; !exists || overwrite {
		m.schemes[id] = make(map[string]any, len(data))
	}
	for k, v := range data {
		m.schemes[id][k] = v
	}
	m.logger.Debug("session: scheme stored", "scheme", id, "overwrite", overwrite)
}

// RetrieveScheme returns the data for a scheme, if any.
func (m *Memory) RetrieveScheme(id string) (map[string]any, bool) {
	data, ok := m.schemes[id]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out, true
}

// Schemes returns a copy of all scheme records.
func (m *Memory) Schemes() map[string]map[string]any {
	out := make(map[string]map[string]any, len(m.schemes))
	for id := range m.schemes {
		data, _ := m.RetrieveScheme(id)
		out[id] = data
	}
	return out
}

// SetCurrentScheme marks a scheme as the active one for the session.
// A scheme is considered to exist if it has a stored record or if a
// generation pass left an "{id}_details" or "{id}_summary" fact behind.
// On success the pointer is also mirrored into the facts under
// "current_scheme_id"; on failure the state is left unchanged.
func (m *Memory) SetCurrentScheme(id string) bool {
	if !m.schemeExists(id) {
		m.logger.Warn("session: cannot set current scheme, id unknown", "scheme", id)
		return false
	}
	m.currentID = id
	m.StoreFact(currentSchemeFactKey, id)
	m.logger.Info("session: current scheme set", "scheme", id)
	return true
}

func (m *Memory) schemeExists(id string) bool {
	if _, ok := m.schemes[id]; ok {
		return true
	}
	if _, ok := m.facts[id+"_details"]; ok {
		return true
	}
	_, ok := m.facts[id+"_summary"]
	return ok
}

// CurrentSchemeID returns the active scheme ID, preferring the in-memory
// pointer and falling back to the mirrored fact. Empty if none is set.
func (m *Memory) CurrentSchemeID() string {
	if m.currentID != "" {
		return m.currentID
	}
	if v, ok := m.facts[currentSchemeFactKey]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// CurrentSchemeData returns the record for the active scheme, if any.
func (m *Memory) CurrentSchemeData() (map[string]any, bool) {
	id := m.CurrentSchemeID()
	if id == "" {
		return nil, false
	}
	return m.RetrieveScheme(id)
}

// UpdateCurrentSchemeData merges data into the active scheme's record.
// Returns false when no current scheme is set.
func (m *Memory) UpdateCurrentSchemeData(data map[string]any) bool {
	id := m.CurrentSchemeID()
	if id == "" {
		m.logger.Warn("session: no current scheme, cannot update scheme data")
		return false
	}
	m.StoreScheme(id, data, false)
	return true
}

// CheckRepeated looks back through the turn log for a user turn whose
// content matches query (case-insensitive, whitespace-trimmed) and, if
// found, returns the final answer of the agent turn that immediately
// followed it. Only the lookback most recent user turns are considered.
// The forward scan for the answer is abandoned if another user turn comes
// first: a later answer does not answer the matched question.
func (m *Memory) CheckRepeated(query string, lookback int) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(query))

	userTurnsChecked := 0
	for i := len(m.turns) - 1; i >= 0; i-- {
		turn := m.turns[i]
		if turn.Role != RoleUser {
			continue
		}
		userTurnsChecked++
		if userTurnsChecked > lookback {
			break
		}
		if strings.ToLower(strings.TrimSpace(turn.Content)) != normalized {
			continue
		}
		for j := i + 1; j < len(m.turns); j++ {
			next := m.turns[j]
			if next.Role == RoleAgent && next.FinalAnswer != "" {
				m.logger.Info("session: repeated question, answering from history")
				return next.FinalAnswer, true
			}
			if next.Role == RoleUser {
				break
			}
		}
	}
	return "", false
}

// Clear wipes all turns, facts, schemes, and the current-scheme pointer.
// The session ID is kept; callers wanting a fresh identity create a new
// Memory instead.
func (m *Memory) Clear() {
	m.turns = nil
	m.facts = make(map[string]any)
	m.factOrder = nil
	m.schemes = make(map[string]map[string]any)
	m.currentID = ""
	m.logger.Info("session: memory cleared")
}
