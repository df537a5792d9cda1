package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/buildsense/schemer/internal/session"
)

// queryRequest is the body of POST /query. An empty session_id starts a
// new session.
type queryRequest struct {
	SessionID string `json:"session_id"`
	Query     string `json:"query"`
}

// queryResponse is the reply to POST /query.
type queryResponse struct {
	SessionID string `json:"session_id"`
	Answer    string `json:"answer"`
	Active    bool   `json:"active"`
}

// turnJSON is a serializable view of one conversation turn.
type turnJSON struct {
	Role        string         `json:"role"`
	Content     string         `json:"content"`
	ToolName    string         `json:"tool_name,omitempty"`
	ToolInput   map[string]any `json:"tool_input,omitempty"`
	ToolOutput  string         `json:"tool_output,omitempty"`
	FinalAnswer string         `json:"final_answer,omitempty"`
}

func turnsJSON(turns []session.Turn) []turnJSON {
	out := make([]turnJSON, 0, len(turns))
	for _, t := range turns {
		out = append(out, turnJSON{
			Role:        string(t.Role),
			Content:     t.Content,
			ToolName:    t.ToolName,
			ToolInput:   t.ToolInput,
			ToolOutput:  t.ToolOutput,
			FinalAnswer: t.FinalAnswer,
		})
	}
	return out
}

// handleQuery runs one conversation turn.
func (g *Gateway) handleQuery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Query == "" {
			http.Error(w, "missing query", http.StatusBadRequest)
			return
		}
		if req.SessionID == "" {
			req.SessionID = uuid.NewString()
		}

		ls := g.getOrCreate(req.SessionID)
		answer := g.turn(r.Context(), ls, req.Query)

		writeJSON(w, http.StatusOK, queryResponse{
			SessionID: req.SessionID,
			Answer:    answer,
			Active:    ls.orch.Active(),
		})
	}
}

// sessionResponse is the reply to GET /session/{id}.
type sessionResponse struct {
	SessionID string     `json:"session_id"`
	Active    bool       `json:"active"`
	History   []turnJSON `json:"history"`
}

// handleGetSession returns a session's status and chat history. Live
// sessions are served from memory, archived ones from the store.
func (g *Gateway) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if ls, ok := g.lookup(id); ok {
			writeJSON(w, http.StatusOK, sessionResponse{
				SessionID: id,
				Active:    ls.orch.Active(),
				History:   turnsJSON(ls.orch.Memory().History(0)),
			})
			return
		}

		if g.opts.Archive != nil {
			turns, err := g.opts.Archive.Turns(r.Context(), id)
			if err != nil {
				g.logger.Error("gateway: reading archived session", "session", id, "error", err)
				http.Error(w, "archive unavailable", http.StatusInternalServerError)
				return
			}
			if len(turns) > 0 {
				writeJSON(w, http.StatusOK, sessionResponse{
					SessionID: id,
					History:   turnsJSON(turns),
				})
				return
			}
		}

		http.Error(w, "session not found", http.StatusNotFound)
	}
}

// sessionSummary is one entry of GET /sessions.
type sessionSummary struct {
	SessionID  string `json:"session_id"`
	Live       bool   `json:"live"`
	Active     bool   `json:"active"`
	TurnCount  int    `json:"turn_count"`
	LastActive string `json:"last_active,omitempty"`
}

// handleListSessions merges the live registry with the archive index.
// A session known to both is reported once, as live.
func (g *Gateway) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries := []sessionSummary{}
		seen := map[string]bool{}

		g.mu.Lock()
		for id, ls := range g.live {
			ls.mu.Lock()
			last := ls.lastActive
			ls.mu.Unlock()
			summaries = append(summaries, sessionSummary{
				SessionID:  id,
				Live:       true,
				Active:     ls.orch.Active(),
				TurnCount:  ls.orch.Memory().Len(),
				LastActive: last.UTC().Format(time.RFC3339),
			})
			seen[id] = true
		}
		g.mu.Unlock()

		if g.opts.Archive != nil {
			infos, err := g.opts.Archive.Sessions(r.Context())
			if err != nil {
				g.logger.Error("gateway: reading session index", "error", err)
				http.Error(w, "archive unavailable", http.StatusInternalServerError)
				return
			}
			for _, info := range infos {
				if seen[info.ID] {
					continue
				}
				summaries = append(summaries, sessionSummary{
					SessionID:  info.ID,
					TurnCount:  info.TurnCount,
					LastActive: info.LastActive.UTC().Format(time.RFC3339),
				})
			}
		}

		writeJSON(w, http.StatusOK, summaries)
	}
}

// handleDeleteSession ends a live session and removes its transcript.
func (g *Gateway) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		ls, found := g.remove(id)
		if found && ls.orch.Active() {
			ls.orch.EndSession()
		}

		if g.opts.Archive != nil {
			turns, err := g.opts.Archive.Turns(r.Context(), id)
			if err == nil && len(turns) > 0 {
				found = true
			}
			if err := g.opts.Archive.DeleteSession(r.Context(), id); err != nil {
				g.logger.Error("gateway: deleting archived session", "session", id, "error", err)
				http.Error(w, "archive unavailable", http.StatusInternalServerError)
				return
			}
		}

		if !found {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// healthResponse is the JSON response for GET /health.
type healthResponse struct {
	Status   string `json:"status"` // "ok" or "degraded"
	Sessions int    `json:"sessions"`
	Worker   string `json:"worker,omitempty"`
}

// handleHealth reports 200 when the tool worker (if configured) is
// alive, 503 otherwise.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := healthResponse{
			Status:   "ok",
			Sessions: g.Len(),
		}
		if g.opts.Worker != nil {
			if g.opts.Worker.Running() {
				resp.Worker = "running"
			} else {
				resp.Worker = "down"
				resp.Status = "degraded"
			}
		}

		code := http.StatusOK
		if resp.Status == "degraded" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	}
}

// statusResponse is the JSON response for GET /status.
type statusResponse struct {
	Uptime   float64         `json:"uptime_seconds"`
	Sessions int             `json:"sessions"`
	Metrics  MetricsSnapshot `json:"metrics"`
}

// handleStatus reports uptime and the metrics snapshot.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{
			Uptime:   time.Since(g.startedAt).Truncate(time.Second).Seconds(),
			Sessions: g.Len(),
			Metrics:  g.metrics.Snapshot(),
		})
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
