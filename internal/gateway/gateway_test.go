package gateway_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/buildsense/schemer/internal/agent"
	"github.com/buildsense/schemer/internal/archive"
	"github.com/buildsense/schemer/internal/decision"
	"github.com/buildsense/schemer/internal/gateway"
	"github.com/buildsense/schemer/internal/session"
)

func sessionUserTurn(content string) session.Turn {
	return session.Turn{Role: session.RoleUser, Content: content}
}

// fakePlanner always answers with a fixed final plan.
type fakePlanner struct {
	answer string
}

func (p *fakePlanner) Plan(_ context.Context, _ decision.Request) decision.Plan {
	return decision.Plan{
		Thought:       "thinking",
		ToolName:      decision.FinalAnswer,
		ToolInput:     map[string]any{},
		Speak:         p.answer,
		MemoryActions: []decision.MemoryAction{},
	}
}

var _ agent.Planner = (*fakePlanner)(nil)

// fakeWorker reports a fixed liveness state.
type fakeWorker struct {
	running bool
}

func (w *fakeWorker) Running() bool { return w.running }

// newGateway builds a gateway around a fakePlanner, with a real archive
// in a temp dir. customize may be nil.
func newGateway(t *testing.T, customize func(*gateway.Options)) (*gateway.Gateway, *httptest.Server) {
	t.Helper()

	store, err := archive.Open(filepath.Join(t.TempDir(), "archive.db"), nil)
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	metrics := gateway.NewMetrics()
	opts := gateway.Options{
		Archive: store,
		Metrics: metrics,
		NewOrchestrator: func(sessionID string) *agent.Orchestrator {
			return agent.New(agent.Config{
				Planner:   &fakePlanner{answer: "Here you go."},
				SessionID: sessionID,
				Observer:  metrics,
			})
		},
	}
	if customize != nil {
		customize(&opts)
	}

	g := gateway.New(opts)
	srv := httptest.NewServer(g.Handler())
	t.Cleanup(srv.Close)
	return g, srv
}

func postQuery(t *testing.T, srv *httptest.Server, sessionID, query string) map[string]any {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"session_id": sessionID, "query": query})
	resp, err := http.Post(srv.URL+"/query", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /query: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /query status = %d", resp.StatusCode)
	}

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func getJSON(t *testing.T, url string, out any) int {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestQuery_NewSession(t *testing.T) {
	t.Parallel()

	_, srv := newGateway(t, nil)

	out := postQuery(t, srv, "", "design something")
	id, _ := out["session_id"].(string)
	if id == "" {
		t.Fatal("response missing session_id")
	}
	if out["answer"] != "Here you go." {
		t.Errorf("answer = %v", out["answer"])
	}
	if out["active"] != true {
		t.Errorf("active = %v, want true", out["active"])
	}

	var sess struct {
		Active  bool `json:"active"`
		History []struct {
			Role        string `json:"role"`
			FinalAnswer string `json:"final_answer"`
		} `json:"history"`
	}
	if code := getJSON(t, srv.URL+"/session/"+id, &sess); code != http.StatusOK {
		t.Fatalf("GET /session status = %d", code)
	}
	// Greeting, user query, agent answer.
	if len(sess.History) != 3 {
		t.Fatalf("history len = %d, want 3", len(sess.History))
	}
	if sess.History[0].FinalAnswer != "What do you want to do today?" {
		t.Errorf("first turn = %+v", sess.History[0])
	}
}

func TestQuery_BadRequest(t *testing.T) {
	t.Parallel()

	_, srv := newGateway(t, nil)

	resp, err := http.Post(srv.URL+"/query", "application/json", strings.NewReader(`{"query": ""}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestQuery_Termination(t *testing.T) {
	t.Parallel()

	_, srv := newGateway(t, nil)

	out := postQuery(t, srv, "term-session", "hello")
	if out["active"] != true {
		t.Fatalf("active = %v after first turn", out["active"])
	}

	out = postQuery(t, srv, "term-session", "bye")
	if out["answer"] != "That is all, thank you." {
		t.Errorf("answer = %v", out["answer"])
	}
	if out["active"] != false {
		t.Errorf("active = %v, want false", out["active"])
	}
}

func TestSessions_MergedIndex(t *testing.T) {
	t.Parallel()

	var store *archive.Store
	_, srv := newGateway(t, func(o *gateway.Options) {
		store = o.Archive.(*archive.Store)
	})

	postQuery(t, srv, "live-1", "hello")

	// A session only the archive knows about.
	if err := store.AppendTurn(context.Background(), "cold-1", sessionUserTurn("old question")); err != nil {
		t.Fatalf("AppendTurn: %v", err)
	}

	var summaries []struct {
		SessionID string `json:"session_id"`
		Live      bool   `json:"live"`
		TurnCount int    `json:"turn_count"`
	}
	if code := getJSON(t, srv.URL+"/sessions", &summaries); code != http.StatusOK {
		t.Fatalf("GET /sessions status = %d", code)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries = %+v, want 2 entries", summaries)
	}
	byID := map[string]bool{}
	for _, s := range summaries {
		byID[s.SessionID] = s.Live
	}
	if !byID["live-1"] || byID["cold-1"] {
		t.Errorf("live flags wrong: %+v", byID)
	}
}

func TestDeleteSession_Auth(t *testing.T) {
	t.Parallel()

	_, srv := newGateway(t, func(o *gateway.Options) {
		o.AuthToken = "sekrit"
	})

	postQuery(t, srv, "doomed", "hello")

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/session/doomed", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated delete status = %d, want 401", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodDelete, srv.URL+"/session/doomed", nil)
	req.Header.Set("Authorization", "Bearer sekrit")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("authenticated delete status = %d, want 204", resp.StatusCode)
	}

	if code := getJSON(t, srv.URL+"/session/doomed", nil); code != http.StatusNotFound {
		t.Errorf("GET after delete = %d, want 404", code)
	}
}

func TestDeleteSession_NotFound(t *testing.T) {
	t.Parallel()

	_, srv := newGateway(t, nil)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/session/ghost", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	worker := &fakeWorker{running: true}
	_, srv := newGateway(t, func(o *gateway.Options) {
		o.Worker = worker
	})

	var health struct {
		Status string `json:"status"`
		Worker string `json:"worker"`
	}
	if code := getJSON(t, srv.URL+"/health", &health); code != http.StatusOK {
		t.Fatalf("healthy status = %d", code)
	}
	if health.Status != "ok" || health.Worker != "running" {
		t.Errorf("health = %+v", health)
	}

	worker.running = false
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("degraded status = %d, want 503", resp.StatusCode)
	}
}

func TestStatusAndMetrics(t *testing.T) {
	t.Parallel()

	_, srv := newGateway(t, nil)

	postQuery(t, srv, "", "hello")

	var status struct {
		Sessions int `json:"sessions"`
		Metrics  struct {
			Turns int64 `json:"turns"`
		} `json:"metrics"`
	}
	if code := getJSON(t, srv.URL+"/status", &status); code != http.StatusOK {
		t.Fatalf("GET /status = %d", code)
	}
	if status.Sessions != 1 || status.Metrics.Turns != 1 {
		t.Errorf("status = %+v", status)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "schemer_turns_total 1") {
		t.Errorf("exposition missing turn counter:\n%s", body)
	}
}

func TestPruneIdle(t *testing.T) {
	t.Parallel()

	g, srv := newGateway(t, nil)

	out := postQuery(t, srv, "", "remember this")
	id := out["session_id"].(string)

	// A zero allowance makes any completed turn idle.
	if pruned := g.PruneIdle(0); pruned != 1 {
		t.Fatalf("PruneIdle = %d, want 1", pruned)
	}
	if g.Len() != 0 {
		t.Errorf("live sessions = %d after prune", g.Len())
	}

	// The transcript survives in the archive, including the farewell.
	var sess struct {
		Active  bool `json:"active"`
		History []struct {
			FinalAnswer string `json:"final_answer"`
		} `json:"history"`
	}
	if code := getJSON(t, srv.URL+"/session/"+id, &sess); code != http.StatusOK {
		t.Fatalf("GET archived session = %d", code)
	}
	if sess.Active {
		t.Error("archived session reported active")
	}
	last := sess.History[len(sess.History)-1]
	if last.FinalAnswer != "That is all, thank you." {
		t.Errorf("last archived turn = %+v", last)
	}
}

func TestWebSocketChat(t *testing.T) {
	t.Parallel()

	_, srv := newGateway(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	readFrame := func() map[string]any {
		t.Helper()
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("unmarshal frame: %v", err)
		}
		return frame
	}
	writeText := func(text string) {
		t.Helper()
		data, _ := json.Marshal(map[string]string{"text": text})
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	opening := readFrame()
	if opening["type"] != "session" || opening["session_id"] == "" {
		t.Fatalf("opening frame = %v", opening)
	}
	if opening["text"] != "What do you want to do today?" {
		t.Errorf("greeting = %v", opening["text"])
	}

	writeText("hello there")
	answer := readFrame()
	if answer["type"] != "answer" || answer["text"] != "Here you go." || answer["active"] != true {
		t.Errorf("answer frame = %v", answer)
	}

	writeText("bye")
	farewell := readFrame()
	if farewell["text"] != "That is all, thank you." || farewell["active"] != false {
		t.Errorf("farewell frame = %v", farewell)
	}

	// The server closes with a normal closure after the session ends.
	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("expected close after session end")
	}
}
