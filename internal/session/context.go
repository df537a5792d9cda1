package session

import (
	"fmt"
	"sort"
	"strings"
)

// Fact keys containing any of these fragments are serialized before other
// facts when assembling decision context.
var priorityFactFragments = []string{"scheme", "building", "project", "material", "current"}

// Maximum number of user/agent pairs included in the history block.
const maxHistoryPairs = 5

// DefaultContextBudget is the soft character budget callers use when
// they have no reason to pick another one.
const DefaultContextBudget = 4000

// BuildContext assembles a textual context snapshot for the decision
// engine: the current scheme block, a prioritized facts block, and a
// recency-ordered window of recent turns. maxLen is a soft character
// budget: whole entries are skipped once the budget is hit, but a block
// already being appended is never split mid-entry.
func (m *Memory) BuildContext(maxLen int) string {
	var parts []string
	currentLen := 0

	add := func(text string) bool {
		if text == "" {
			return false
		}
		if currentLen+len(text) >= maxLen {
			m.logger.Warn("session: context budget reached", "budget", maxLen)
			return false
		}
		parts = append(parts, text)
		currentLen += len(text)
		return true
	}

	// Current scheme block.
	if id := m.CurrentSchemeID(); id != "" {
		if data, ok := m.CurrentSchemeData(); ok {
			var b strings.Builder
			fmt.Fprintf(&b, "Current Active Scheme (ID: %s):\n", id)
			for _, k := range sortedKeys(data) {
				fmt.Fprintf(&b, "  - %s: %v\n", k, data[k])
			}
			add(b.String() + "\n")
		} else {
			add(fmt.Sprintf("Current Active Scheme ID: %s (Details may be in facts or forthcoming).\n\n", id))
		}
	}

	// Facts block. Priority keys first, insertion order within each group.
	// Reserve a quarter of the budget for the history block.
	if len(m.facts) > 0 {
		const header = "Key Information from Memory (Facts):\n"
		factBudget := maxLen * 3 / 4

		var lines strings.Builder
		for _, key := range m.orderedFactKeys() {
			line := fmt.Sprintf("- %s: %v\n", key, m.facts[key])
			projected := lines.Len() + len(line)
			if lines.Len() == 0 {
				projected += len(header)
			}
			if currentLen+projected >= factBudget {
				m.logger.Debug("session: fact budget reached", "key", key)
				break
			}
			lines.WriteString(line)
		}
		if lines.Len() > 0 {
			add(header + lines.String() + "\n")
		}
	}

	// History block, most recent turns last.
	const header = "Recent Conversation Snippets (User/Agent):\n"
	var history string
	included := 0
	for i := len(m.turns) - 1; i >= 0; i-- {
		if included >= maxHistoryPairs*2 {
			break
		}
		turn := m.turns[i]
		snippet := renderSnippet(turn)

		projected := len(snippet) + len(history)
		if history == "" {
			projected += len(header)
		}
		if currentLen+projected >= maxLen {
			m.logger.Debug("session: history budget reached")
			break
		}
		history = snippet + history
		included++
	}
	if history != "" {
		add(header + history)
	}

	return strings.Join(parts, "")
}

func renderSnippet(turn Turn) string {
	prefix := "Agent: "
	if turn.Role == RoleUser {
		prefix = "User: "
	}
	content := turn.Content
	switch {
	case turn.Role == RoleAgent && turn.FinalAnswer != "":
		content = turn.FinalAnswer
	case turn.Role == RoleAgent && turn.ToolName != "":
		content += fmt.Sprintf(" (Used tool: %s)", turn.ToolName)
	}
	return prefix + content + "\n"
}

// orderedFactKeys returns fact keys with priority fragments first,
// preserving insertion order within each group.
func (m *Memory) orderedFactKeys() []string {
	var priority, other []string
	for _, k := range m.factOrder {
		if isPriorityKey(k) {
			priority = append(priority, k)
		} else {
			other = append(other, k)
		}
	}
	return append(priority, other...)
}

func isPriorityKey(key string) bool {
	lower := strings.ToLower(key)
	for _, frag := range priorityFactFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
