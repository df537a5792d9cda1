package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// testPruner implements SessionPruner for job tests.
type testPruner struct {
	pruneCalls atomic.Int32
	pruneFunc  func(maxIdle time.Duration) int
}

func (p *testPruner) PruneIdle(maxIdle time.Duration) int {
	p.pruneCalls.Add(1)
	if p.pruneFunc != nil {
		return p.pruneFunc(maxIdle)
	}
	return 0
}

// testArchive implements ArchivePruner for job tests.
type testArchive struct {
	idle      []string
	idleErr   error
	deleteErr map[string]error
	deleted   []string
}

func (a *testArchive) IdleSessions(_ context.Context, _ time.Time) ([]string, error) {
	return a.idle, a.idleErr
}

func (a *testArchive) DeleteSession(_ context.Context, sessionID string) error {
	if err := a.deleteErr[sessionID]; err != nil {
		return err
	}
	a.deleted = append(a.deleted, sessionID)
	return nil
}

func TestSessionReaperJob_Name(t *testing.T) {
	t.Parallel()
	j := &SessionReaperJob{Logger: slog.Default()}
	if j.Name() != "session_reaper" {
		t.Errorf("name = %q, want %q", j.Name(), "session_reaper")
	}
}

func TestSessionReaperJob_Schedule(t *testing.T) {
	t.Parallel()

	j := &SessionReaperJob{Logger: slog.Default()}
	if j.Schedule() != "*/5 * * * *" {
		t.Errorf("schedule = %q, want default", j.Schedule())
	}

	j.ScheduleExpr = "*/1 * * * *"
	if j.Schedule() != "*/1 * * * *" {
		t.Errorf("schedule = %q, want override", j.Schedule())
	}
}

func TestSessionReaperJob_PrunesLiveSessions(t *testing.T) {
	t.Parallel()

	pruner := &testPruner{
		pruneFunc: func(maxIdle time.Duration) int {
			if maxIdle != 30*time.Minute {
				t.Errorf("maxIdle = %v, want 30m", maxIdle)
			}
			return 3
		},
	}
	j := &SessionReaperJob{
		Sessions: pruner,
		MaxIdle:  30 * time.Minute,
		Logger:   slog.Default(),
	}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if pruner.pruneCalls.Load() != 1 {
		t.Errorf("prune calls = %d, want 1", pruner.pruneCalls.Load())
	}
}

func TestSessionReaperJob_NoArchive(t *testing.T) {
	t.Parallel()

	j := &SessionReaperJob{
		Sessions:       &testPruner{},
		RetainArchived: time.Hour,
		Logger:         slog.Default(),
	}
	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run without archive: %v", err)
	}
}

func TestSessionReaperJob_DeletesExpiredTranscripts(t *testing.T) {
	t.Parallel()

	arch := &testArchive{
		idle:      []string{"old1", "broken", "old2"},
		deleteErr: map[string]error{"broken": errors.New("locked")},
	}
	j := &SessionReaperJob{
		Sessions:       &testPruner{},
		Archive:        arch,
		RetainArchived: 24 * time.Hour,
		Logger:         slog.Default(),
	}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// A failed delete is logged and skipped, not fatal.
	if len(arch.deleted) != 2 || arch.deleted[0] != "old1" || arch.deleted[1] != "old2" {
		t.Errorf("deleted = %v, want [old1 old2]", arch.deleted)
	}
}

func TestSessionReaperJob_RetentionDisabled(t *testing.T) {
	t.Parallel()

	arch := &testArchive{idle: []string{"old1"}}
	j := &SessionReaperJob{
		Sessions: &testPruner{},
		Archive:  arch,
		Logger:   slog.Default(),
	}

	if err := j.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(arch.deleted) != 0 {
		t.Errorf("deleted = %v, want none with retention disabled", arch.deleted)
	}
}

func TestSessionReaperJob_ListError(t *testing.T) {
	t.Parallel()

	j := &SessionReaperJob{
		Sessions:       &testPruner{},
		Archive:        &testArchive{idleErr: errors.New("db closed")},
		RetainArchived: time.Hour,
		Logger:         slog.Default(),
	}
	if err := j.Run(context.Background()); err == nil {
		t.Fatal("Run = nil, want error when listing fails")
	}
}
