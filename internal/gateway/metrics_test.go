package gateway_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/buildsense/schemer/internal/gateway"
)

func TestMetrics_Snapshot(t *testing.T) {
	t.Parallel()

	m := gateway.NewMetrics()
	m.TurnCompleted()
	m.TurnCompleted()
	m.ToolInvoked("add")
	m.PlanDegraded()
	m.MemoryHit()
	m.SessionReaped()

	snap := m.Snapshot()
	if snap.Turns != 2 {
		t.Errorf("Turns = %d, want 2", snap.Turns)
	}
	if snap.ToolCalls != 1 || snap.PlanFailures != 1 || snap.MemoryHits != 1 || snap.Reaped != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestMetrics_Exposition(t *testing.T) {
	t.Parallel()

	m := gateway.NewMetrics()
	m.ToolInvoked("add")
	m.ToolInvoked("add")
	m.ToolInvoked("multiply")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Result().Body)
	text := string(body)
	if !strings.Contains(text, `schemer_tool_calls_total{tool="add"} 2`) {
		t.Errorf("missing add counter:\n%s", text)
	}
	if !strings.Contains(text, `schemer_tool_calls_total{tool="multiply"} 1`) {
		t.Errorf("missing multiply counter:\n%s", text)
	}
}

func TestMetrics_Isolated(t *testing.T) {
	t.Parallel()

	// Two collectors must not share a registry.
	a := gateway.NewMetrics()
	b := gateway.NewMetrics()
	a.TurnCompleted()

	if got := b.Snapshot().Turns; got != 0 {
		t.Errorf("fresh collector Turns = %d, want 0", got)
	}
}
