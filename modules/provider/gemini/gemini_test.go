package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/buildsense/schemer/modules/provider/gemini"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *gemini.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c, err := gemini.New(gemini.Config{
		APIKey:  "test-key",
		Model:   "gemini-2.0-flash",
		BaseURL: server.URL,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_MissingAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := gemini.New(gemini.Config{}, nil); !errors.Is(err, gemini.ErrMissingAPIKey) {
		t.Fatalf("New err = %v, want ErrMissingAPIKey", err)
	}
}

func TestComplete_Success(t *testing.T) {
	t.Parallel()

	var gotPath, gotPrompt string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && len(req.Contents) > 0 {
			gotPrompt = req.Contents[0].Parts[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"tool_name\":"},{"text":"\"final_answer\"}"}]}}]}`))
	})

	got, err := c.Complete(context.Background(), "plan this")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `{"tool_name":"final_answer"}` {
		t.Errorf("Complete() = %q, want concatenated parts", got)
	}
	if !strings.Contains(gotPath, "gemini-2.0-flash:generateContent") {
		t.Errorf("request path = %q", gotPath)
	}
	if gotPrompt != "plan this" {
		t.Errorf("prompt sent = %q", gotPrompt)
	}
}

func TestComplete_StatusMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"unauthorized", http.StatusUnauthorized, gemini.ErrUnauthorized},
		{"forbidden", http.StatusForbidden, gemini.ErrUnauthorized},
		{"rate limited", http.StatusTooManyRequests, gemini.ErrRateLimited},
		{"server error", http.StatusInternalServerError, gemini.ErrUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
			})
			if _, err := c.Complete(context.Background(), "x"); !errors.Is(err, tc.wantErr) {
				t.Errorf("Complete err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestComplete_EmptyCandidates(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})
	if _, err := c.Complete(context.Background(), "x"); !errors.Is(err, gemini.ErrEmptyResponse) {
		t.Errorf("Complete err = %v, want ErrEmptyResponse", err)
	}
}
