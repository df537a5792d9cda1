// Package archive persists completed conversation turns to SQLite so
// transcripts survive the process and the gateway can list and inspect
// past sessions. In-session working memory stays in internal/session;
// the archive is an append-only side record, never read back into a
// live turn.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/buildsense/schemer/internal/session"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const busyTimeoutMillis = 5000

// SessionInfo is one row of the session index.
type SessionInfo struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
	TurnCount  int       `json:"turn_count"`
}

// Store is a SQLite-backed transcript archive.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the archive database at path. The
// database uses WAL mode, a 5 s busy timeout, and a single connection
// (SQLite serialises writes). The schema is migrated automatically.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("archive: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.TODO()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMillis)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("archive: set busy_timeout: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: logger.With("component", "archive")}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// AppendTurn records one turn at the end of a session's transcript and
// bumps the session's last-active timestamp.
func (s *Store) AppendTurn(ctx context.Context, sessionID string, t session.Turn) error {
	inputJSON := []byte("{}")
	if len(t.ToolInput) > 0 {
		var err error
		inputJSON, err = json.Marshal(t.ToolInput)
		if err != nil {
			return fmt.Errorf("archive: marshal tool_input: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin append tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id) VALUES (?)
		ON CONFLICT(id) DO UPDATE SET last_active = strftime('%Y-%m-%dT%H:%M:%fZ','now')`,
		sessionID,
	); err != nil {
		return fmt.Errorf("archive: upsert session: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO turns (session_id, seq, role, content, tool_name, tool_input, tool_output, final_answer)
		VALUES (?, COALESCE((SELECT MAX(seq) FROM turns WHERE session_id = ?), 0) + 1,
		        ?, ?, ?, ?, ?, ?)`,
		sessionID, sessionID,
		string(t.Role), t.Content, t.ToolName, string(inputJSON), t.ToolOutput, t.FinalAnswer,
	); err != nil {
		return fmt.Errorf("archive: append turn: %w", err)
	}

	return tx.Commit()
}

// Turns returns a session's transcript in chronological order.
func (s *Store) Turns(ctx context.Context, sessionID string) ([]session.Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, tool_name, tool_input, tool_output, final_answer
		FROM turns
		WHERE session_id = ?
		ORDER BY seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("archive: query turns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var turns []session.Turn
	for rows.Next() {
		var (
			t         session.Turn
			role      string
			inputJSON string
		)
		if err := rows.Scan(&role, &t.Content, &t.ToolName, &inputJSON, &t.ToolOutput, &t.FinalAnswer); err != nil {
			return nil, fmt.Errorf("archive: scan turn: %w", err)
		}
		t.Role = session.Role(role)
		if inputJSON != "" && inputJSON != "{}" {
			if err := json.Unmarshal([]byte(inputJSON), &t.ToolInput); err != nil {
				return nil, fmt.Errorf("archive: unmarshal tool_input: %w", err)
			}
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: turns rows: %w", err)
	}
	return turns, nil
}

// Sessions returns the session index ordered by most recent activity.
func (s *Store) Sessions(ctx context.Context) ([]SessionInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.created_at, s.last_active,
		       (SELECT COUNT(*) FROM turns t WHERE t.session_id = s.id)
		FROM sessions s
		ORDER BY s.last_active DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("archive: query sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []SessionInfo
	for rows.Next() {
		var (
			info       SessionInfo
			createdAt  string
			lastActive string
		)
		if err := rows.Scan(&info.ID, &createdAt, &lastActive, &info.TurnCount); err != nil {
			return nil, fmt.Errorf("archive: scan session: %w", err)
		}
		info.CreatedAt = parseTimestamp(createdAt)
		info.LastActive = parseTimestamp(lastActive)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: sessions rows: %w", err)
	}
	return infos, nil
}

// DeleteSession removes a session and its transcript.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("archive: begin delete tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM turns WHERE session_id = ?", sessionID); err != nil {
		return fmt.Errorf("archive: delete turns: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
		return fmt.Errorf("archive: delete session: %w", err)
	}
	return tx.Commit()
}

// IdleSessions returns the IDs of sessions whose last activity is
// strictly before the cutoff.
func (s *Store) IdleSessions(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id FROM sessions WHERE last_active < ?",
		cutoff.UTC().Format("2006-01-02T15:04:05.000Z"),
	)
	if err != nil {
		return nil, fmt.Errorf("archive: query idle sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("archive: scan idle session: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: idle sessions rows: %w", err)
	}
	return ids, nil
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse("2006-01-02T15:04:05.000Z", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
