package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SessionPruner is the subset of the gateway session registry needed by
// the reaper. Defined here to avoid a circular dependency on gateway.
type SessionPruner interface {
	PruneIdle(maxIdle time.Duration) int
}

// ArchivePruner is the subset of the transcript archive needed by the
// reaper. A nil ArchivePruner disables archive cleanup.
type ArchivePruner interface {
	IdleSessions(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

// SessionReaperJob closes live sessions that have been idle longer than
// MaxIdle and, when RetainArchived is positive, deletes archived
// transcripts whose last activity is older than RetainArchived.
type SessionReaperJob struct {
	Sessions       SessionPruner
	Archive        ArchivePruner
	MaxIdle        time.Duration
	RetainArchived time.Duration
	Logger         *slog.Logger
	ScheduleExpr   string // empty = default "*/5 * * * *"
}

// Compile-time interface check.
var _ Job = (*SessionReaperJob)(nil)

// Name implements Job.
func (j *SessionReaperJob) Name() string { return "session_reaper" }

// Schedule implements Job.
func (j *SessionReaperJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/5 * * * *"
}

// Run prunes idle live sessions, then expired archived transcripts.
func (j *SessionReaperJob) Run(ctx context.Context) error {
	if pruned := j.Sessions.PruneIdle(j.MaxIdle); pruned > 0 {
		j.Logger.Info("cron: reaped idle sessions", "count", pruned)
	}

	if j.Archive == nil || j.RetainArchived <= 0 {
		return nil
	}

	cutoff := time.Now().Add(-j.RetainArchived)
	ids, err := j.Archive.IdleSessions(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cron: listing expired transcripts: %w", err)
	}
	for _, id := range ids {
		if ctx.Err() != nil {
			return fmt.Errorf("cron: reaper cancelled: %w", ctx.Err())
		}
		if err := j.Archive.DeleteSession(ctx, id); err != nil {
			j.Logger.Error("cron: deleting expired transcript", "session", id, "error", err)
			continue
		}
		j.Logger.Info("cron: deleted expired transcript", "session", id)
	}
	return nil
}
