package gateway

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// chatInbound is one client frame of the /ws/chat protocol.
type chatInbound struct {
	Text string `json:"text"`
}

// chatOutbound is one server frame of the /ws/chat protocol. Type is
// "session" for the opening frame, "answer" for turn replies, and
// "error" for rejected frames.
type chatOutbound struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text"`
	Active    bool   `json:"active"`
}

// handleChat runs a live chat loop over a WebSocket. Each text frame is
// one query; the connection closes normally when the session ends.
func (g *Gateway) handleChat() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			g.logger.Warn("gateway: websocket accept failed", "error", err)
			return
		}
		defer func() {
			_ = conn.Close(websocket.StatusInternalError, "unexpected close")
		}()

		id := r.URL.Query().Get("session_id")
		if id == "" {
			id = uuid.NewString()
		}
		ls := g.getOrCreate(id)

		ctx := r.Context()

		var opening string
		if !ls.orch.Active() {
			opening = ls.orch.StartSession()
			g.flush(ctx, ls)
		}
		if err := writeFrame(ctx, conn, chatOutbound{
			Type:      "session",
			SessionID: id,
			Text:      opening,
			Active:    true,
		}); err != nil {
			return
		}

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				g.logger.Debug("gateway: websocket closed", "session", id, "error", err)
				return
			}

			var in chatInbound
			if err := json.Unmarshal(data, &in); err != nil || in.Text == "" {
				if err := writeFrame(ctx, conn, chatOutbound{Type: "error", Text: "expected {\"text\": ...}", Active: true}); err != nil {
					return
				}
				continue
			}

			answer := g.turn(ctx, ls, in.Text)
			active := ls.orch.Active()
			if err := writeFrame(ctx, conn, chatOutbound{
				Type:      "answer",
				SessionID: id,
				Text:      answer,
				Active:    active,
			}); err != nil {
				return
			}
			if !active {
				_ = conn.Close(websocket.StatusNormalClosure, "session ended")
				return
			}
		}
	}
}

func writeFrame(ctx context.Context, conn *websocket.Conn, msg chatOutbound) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
