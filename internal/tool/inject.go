package tool

import "github.com/buildsense/schemer/internal/session"

// SessionAware is implemented by tools that write results back into the
// session's memory (for example, caching fetched material properties).
// The orchestrator binds its memory into every SessionAware tool at
// construction time; there is no runtime probing.
type SessionAware interface {
	BindMemory(m *session.Memory)
}

// BindSession injects mem into every SessionAware tool in the list and
// returns how many tools were bound.
func BindSession(mem *session.Memory, tools []Tool) int {
	bound := 0
	for _, t := range tools {
		if sa, ok := t.(SessionAware); ok {
			sa.BindMemory(mem)
			bound++
		}
	}
	return bound
}
