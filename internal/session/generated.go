package session

import "fmt"

// Fact key holding the list of scheme IDs produced by the last generation pass.
const generatedIDsFactKey = "generated_scheme_ids"

// StoreGeneratedSchemes records a batch of generated schemes. Each scheme
// gets a sequential ID ("scheme_1", "scheme_2", ...), a full record in the
// scheme store, and a "{id}_summary" fact so the ID resolves for
// SetCurrentScheme even after scheme records are pruned. The list of IDs
// is itself stored as a fact for later retrieval.
func (m *Memory) StoreGeneratedSchemes(schemes []map[string]any) []string {
	ids := make([]string, 0, len(schemes))
	for i, detail := range schemes {
		if detail == nil {
			m.logger.Error("session: generated scheme is nil, skipping", "index", i)
			continue
		}
		id := fmt.Sprintf("scheme_%d", i+1)
		m.StoreScheme(id, detail, true)
		m.StoreFact(id+"_summary", schemeSummary(i, detail))
		ids = append(ids, id)
	}
	m.StoreFact(generatedIDsFactKey, ids)
	m.logger.Info("session: generated schemes stored", "count", len(ids))
	return ids
}

// GeneratedSchemeIDs returns the IDs recorded by the last StoreGeneratedSchemes.
func (m *Memory) GeneratedSchemeIDs() []string {
	v, ok := m.facts[generatedIDsFactKey]
	if !ok {
		return nil
	}
	ids, ok := v.([]string)
	if !ok {
		return nil
	}
	return ids
}

// AllGeneratedSchemes resolves every generated scheme ID to its full record.
// IDs whose records have gone missing are skipped.
func (m *Memory) AllGeneratedSchemes() []map[string]any {
	var out []map[string]any
	for _, id := range m.GeneratedSchemeIDs() {
		if data, ok := m.RetrieveScheme(id); ok {
			out = append(out, data)
		} else {
			m.logger.Warn("session: generated scheme record missing", "scheme", id)
		}
	}
	return out
}

func schemeSummary(index int, detail map[string]any) string {
	if name, ok := detail["name"].(string); ok && name != "" {
		return name
	}
	desc, _ := detail["description"].(string)
	if runes := []rune(desc); len(runes) > 50 {
		desc = string(runes[:50])
	}
	if desc == "" {
		desc = "No description"
	}
	return fmt.Sprintf("Scheme %d - %s", index+1, desc)
}
