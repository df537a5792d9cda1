package session_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/buildsense/schemer/internal/session"
)

func newMemory(t *testing.T) *session.Memory {
	t.Helper()
	return session.NewWithID("test-session", nil)
}

func TestMemory_StoreFact_LastWriteWins(t *testing.T) {
	t.Parallel()

	m := newMemory(t)
	m.StoreFact("site", "london")
	m.StoreFact("site", "manchester")

	v, ok := m.RetrieveFact("site")
	if !ok {
		t.Fatal("RetrieveFact(site): not found")
	}
	if v != "manchester" {
		t.Errorf("RetrieveFact(site) = %v, want manchester", v)
	}
}

func TestMemory_RetrieveFact_Absent(t *testing.T) {
	t.Parallel()

	m := newMemory(t)
	if _, ok := m.RetrieveFact("missing"); ok {
		t.Error("RetrieveFact(missing): found, want absent")
	}
}

func TestMemory_StoreScheme_MergeByDefault(t *testing.T) {
	t.Parallel()

	m := newMemory(t)
	m.StoreScheme("scheme_1", map[string]any{"floors": 10, "grid": 6}, false)
	m.StoreScheme("scheme_1", map[string]any{"floors": 12, "material": "steel"}, false)

	got, ok := m.RetrieveScheme("scheme_1")
	if !ok {
		t.Fatal("RetrieveScheme(scheme_1): not found")
	}
	want := map[string]any{"floors": 12, "grid": 6, "material": "steel"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("scheme[%q] = %v, want %v", k, got[k], v)
		}
	}
	if len(got) != len(want) {
		t.Errorf("scheme has %d keys, want %d", len(got), len(want))
	}
}

func TestMemory_StoreScheme_Overwrite(t *testing.T) {
	t.Parallel()

	m := newMemory(t)
	m.StoreScheme("scheme_1", map[string]any{"floors": 10, "grid": 6}, false)
	m.StoreScheme("scheme_1", map[string]any{"floors": 3}, true)

	got, _ := m.RetrieveScheme("scheme_1")
	if len(got) != 1 || got["floors"] != 3 {
		t.Errorf("scheme = %v, want only floors=3", got)
	}
}

func TestMemory_SetCurrentScheme(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(m *session.Memory)
		id    string
		want  bool
	}{
		{
			name:  "stored scheme record",
			setup: func(m *session.Memory) { m.StoreScheme("scheme_2", map[string]any{"floors": 5}, false) },
			id:    "scheme_2",
			want:  true,
		},
		{
			name:  "details fact only",
			setup: func(m *session.Memory) { m.StoreFact("scheme_3_details", "a tall tower") },
			id:    "scheme_3",
			want:  true,
		},
		{
			name:  "summary fact only",
			setup: func(m *session.Memory) { m.StoreFact("scheme_4_summary", "a short tower") },
			id:    "scheme_4",
			want:  true,
		},
		{
			name:  "unknown scheme",
			setup: func(*session.Memory) {},
			id:    "scheme_9",
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newMemory(t)
			tt.setup(m)
			if got := m.SetCurrentScheme(tt.id); got != tt.want {
				t.Fatalf("SetCurrentScheme(%q) = %v, want %v", tt.id, got, tt.want)
			}
			if tt.want {
				if got := m.CurrentSchemeID(); got != tt.id {
					t.Errorf("CurrentSchemeID() = %q, want %q", got, tt.id)
				}
				// The pointer must be mirrored into the facts.
				if v, _ := m.RetrieveFact("current_scheme_id"); v != tt.id {
					t.Errorf("fact current_scheme_id = %v, want %q", v, tt.id)
				}
			} else {
				if got := m.CurrentSchemeID(); got != "" {
					t.Errorf("CurrentSchemeID() = %q, want empty after failed set", got)
				}
			}
		})
	}
}

func TestMemory_CurrentSchemeID_FactFallback(t *testing.T) {
	t.Parallel()

	// A current_scheme_id fact restored from elsewhere must be honored
	// even when the in-memory pointer was never set.
	m := newMemory(t)
	m.StoreFact("current_scheme_id", "scheme_7")
	if got := m.CurrentSchemeID(); got != "scheme_7" {
		t.Errorf("CurrentSchemeID() = %q, want scheme_7", got)
	}
}

func TestMemory_UpdateCurrentSchemeData(t *testing.T) {
	t.Parallel()

	m := newMemory(t)
	if m.UpdateCurrentSchemeData(map[string]any{"floors": 5}) {
		t.Error("UpdateCurrentSchemeData with no current scheme: got true, want false")
	}

	m.StoreScheme("scheme_1", map[string]any{"floors": 10}, false)
	m.SetCurrentScheme("scheme_1")
	if !m.UpdateCurrentSchemeData(map[string]any{"material": "timber"}) {
		t.Fatal("UpdateCurrentSchemeData: got false, want true")
	}

	got, _ := m.RetrieveScheme("scheme_1")
	if got["material"] != "timber" || got["floors"] != 10 {
		t.Errorf("scheme = %v, want merged floors+material", got)
	}
}

func TestMemory_CheckRepeated(t *testing.T) {
	t.Parallel()

	m := newMemory(t)
	m.AppendTurn(session.Turn{Role: session.RoleUser, Content: "What is the best paint?"})
	m.AppendTurn(session.Turn{Role: session.RoleAgent, Content: "thinking", FinalAnswer: "EcoPaint 3000"})
	m.AppendTurn(session.Turn{Role: session.RoleUser, Content: "Something else"})
	m.AppendTurn(session.Turn{Role: session.RoleAgent, Content: "thinking", FinalAnswer: "Sure."})

	answer, ok := m.CheckRepeated("what is the best paint?  ", 5)
	if !ok {
		t.Fatal("CheckRepeated: no match, want match")
	}
	if answer != "EcoPaint 3000" {
		t.Errorf("CheckRepeated = %q, want EcoPaint 3000", answer)
	}
}

func TestMemory_CheckRepeated_ZeroLookback(t *testing.T) {
	t.Parallel()

	m := newMemory(t)
	m.AppendTurn(session.Turn{Role: session.RoleUser, Content: "Q"})
	m.AppendTurn(session.Turn{Role: session.RoleAgent, FinalAnswer: "A"})

	if _, ok := m.CheckRepeated("Q", 0); ok {
		t.Error("CheckRepeated with lookback 0: got match, want absent")
	}
}

func TestMemory_CheckRepeated_InterveningUserTurn(t *testing.T) {
	t.Parallel()

	// The agent never answered the matched question before the user
	// spoke again, so the later answer does not count.
	m := newMemory(t)
	m.AppendTurn(session.Turn{Role: session.RoleUser, Content: "Q"})
	m.AppendTurn(session.Turn{Role: session.RoleUser, Content: "R"})
	m.AppendTurn(session.Turn{Role: session.RoleAgent, FinalAnswer: "answer to R"})
	m.AppendTurn(session.Turn{Role: session.RoleUser, Content: "S"})
	m.AppendTurn(session.Turn{Role: session.RoleAgent, FinalAnswer: "answer to S"})

	if answer, ok := m.CheckRepeated("Q", 5); ok {
		t.Errorf("CheckRepeated = %q, want absent", answer)
	}
}

func TestMemory_CheckRepeated_MostRecentMatchWins(t *testing.T) {
	t.Parallel()

	m := newMemory(t)
	m.AppendTurn(session.Turn{Role: session.RoleUser, Content: "Q"})
	m.AppendTurn(session.Turn{Role: session.RoleAgent, FinalAnswer: "old answer"})
	m.AppendTurn(session.Turn{Role: session.RoleUser, Content: "Q"})
	m.AppendTurn(session.Turn{Role: session.RoleAgent, FinalAnswer: "new answer"})

	answer, ok := m.CheckRepeated("Q", 5)
	if !ok || answer != "new answer" {
		t.Errorf("CheckRepeated = %q, %v; want new answer, true", answer, ok)
	}
}

func TestMemory_Clear(t *testing.T) {
	t.Parallel()

	m := newMemory(t)
	m.AppendTurn(session.Turn{Role: session.RoleUser, Content: "hello"})
	m.StoreFact("k", "v")
	m.StoreScheme("scheme_1", map[string]any{"floors": 1}, false)
	m.SetCurrentScheme("scheme_1")

	m.Clear()

	if m.Len() != 0 {
		t.Errorf("Len() = %d after Clear, want 0", m.Len())
	}
	if len(m.Facts()) != 0 {
		t.Errorf("Facts() = %v after Clear, want empty", m.Facts())
	}
	if _, ok := m.RetrieveScheme("scheme_1"); ok {
		t.Error("RetrieveScheme after Clear: found, want absent")
	}
	if m.CurrentSchemeID() != "" {
		t.Errorf("CurrentSchemeID() = %q after Clear, want empty", m.CurrentSchemeID())
	}
	if m.SessionID() != "test-session" {
		t.Errorf("SessionID() = %q after Clear, want unchanged", m.SessionID())
	}
}

func TestMemory_StoreGeneratedSchemes(t *testing.T) {
	t.Parallel()

	m := newMemory(t)
	ids := m.StoreGeneratedSchemes([]map[string]any{
		{"name": "Regular Grid", "floors": 10},
		{"floors": 4, "description": "a long low warehouse with a very wide span layout"},
	})

	if len(ids) != 2 || ids[0] != "scheme_1" || ids[1] != "scheme_2" {
		t.Fatalf("ids = %v, want [scheme_1 scheme_2]", ids)
	}

	// The summary fact makes the ID resolvable for SetCurrentScheme.
	if !m.SetCurrentScheme("scheme_2") {
		t.Error("SetCurrentScheme(scheme_2) = false, want true")
	}

	if v, _ := m.RetrieveFact("scheme_1_summary"); v != "Regular Grid" {
		t.Errorf("scheme_1_summary = %v, want Regular Grid", v)
	}
	// Description longer than 50 characters is cut in the summary.
	v, _ := m.RetrieveFact("scheme_2_summary")
	s, _ := v.(string)
	if !strings.HasPrefix(s, "Scheme 2 - a long low warehouse") || len(s) > len("Scheme 2 - ")+50 {
		t.Errorf("scheme_2_summary = %q, want truncated description summary", s)
	}

	all := m.AllGeneratedSchemes()
	if len(all) != 2 {
		t.Fatalf("AllGeneratedSchemes: %d records, want 2", len(all))
	}
	if all[0]["name"] != "Regular Grid" {
		t.Errorf("first generated scheme = %v, want Regular Grid record", all[0])
	}
}

func TestMemory_StoreGeneratedSchemes_MultibyteDescription(t *testing.T) {
	t.Parallel()

	// 80 characters, 3 bytes each; a byte-based cut would land inside a
	// rune and leave the summary invalid UTF-8.
	desc := strings.Repeat("梁柱板基", 20)
	m := newMemory(t)
	m.StoreGeneratedSchemes([]map[string]any{{"description": desc}})

	v, _ := m.RetrieveFact("scheme_1_summary")
	s, _ := v.(string)
	if !utf8.ValidString(s) {
		t.Fatalf("summary is not valid UTF-8: %q", s)
	}
	want := "Scheme 1 - " + strings.Repeat("梁柱板基", 12) + "梁柱"
	if s != want {
		t.Errorf("summary = %q, want the first 50 characters of the description", s)
	}
}
