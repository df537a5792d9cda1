package gateway

import (
	"context"
	"time"

	"github.com/buildsense/schemer/internal/cron"
)

var _ cron.SessionPruner = (*Gateway)(nil)

// getOrCreate returns the live session for id, creating it on first use.
func (g *Gateway) getOrCreate(id string) *liveSession {
	g.mu.Lock()
	defer g.mu.Unlock()

	if ls, ok := g.live[id]; ok {
		return ls
	}
	ls := &liveSession{
		id:         id,
		orch:       g.opts.NewOrchestrator(id),
		lastActive: time.Now(),
	}
	g.live[id] = ls
	g.logger.Info("gateway: session created", "session", id)
	return ls
}

// lookup returns the live session for id without creating one.
func (g *Gateway) lookup(id string) (*liveSession, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ls, ok := g.live[id]
	return ls, ok
}

// remove drops a live session from the registry.
func (g *Gateway) remove(id string) (*liveSession, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ls, ok := g.live[id]
	if ok {
		delete(g.live, id)
	}
	return ls, ok
}

// Len returns the number of live sessions.
func (g *Gateway) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.live)
}

// PruneIdle ends and removes live sessions idle longer than maxIdle,
// flushing their remaining turns to the archive. It returns the number
// of sessions pruned.
func (g *Gateway) PruneIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	g.mu.Lock()
	var expired []*liveSession
	for id, ls := range g.live {
		ls.mu.Lock()
		idle := ls.lastActive.Before(cutoff)
		ls.mu.Unlock()
		if idle {
			expired = append(expired, ls)
			delete(g.live, id)
		}
	}
	g.mu.Unlock()

	for _, ls := range expired {
		if ls.orch.Active() {
			ls.orch.EndSession()
		}
		g.flush(context.Background(), ls)
		g.metrics.SessionReaped()
		g.logger.Info("gateway: reaped idle session", "session", ls.id)
	}
	return len(expired)
}

// turn runs one query on a live session and flushes the new turns.
func (g *Gateway) turn(ctx context.Context, ls *liveSession, query string) string {
	answer := ls.orch.ProcessQuery(ctx, query)
	ls.mu.Lock()
	ls.lastActive = time.Now()
	ls.mu.Unlock()
	g.flush(ctx, ls)
	return answer
}

// flush appends memory turns not yet archived. Archive failures are
// logged and retried on the next flush, never surfaced to the user.
func (g *Gateway) flush(ctx context.Context, ls *liveSession) {
	if g.opts.Archive == nil {
		return
	}

	ls.mu.Lock()
	defer ls.mu.Unlock()

	turns := ls.orch.Memory().History(0)
	if ls.archived > len(turns) {
		// Memory was cleared by a session restart; the archive keeps the
		// old turns and starts appending the new ones.
		ls.archived = 0
	}
	for ; ls.archived < len(turns); ls.archived++ {
		if err := g.opts.Archive.AppendTurn(ctx, ls.id, turns[ls.archived]); err != nil {
			g.logger.Error("gateway: archiving turn failed", "session", ls.id, "error", err)
			return
		}
	}
}
