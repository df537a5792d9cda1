// Package gateway exposes the orchestrator over HTTP: a query endpoint,
// session inspection and deletion, a WebSocket chat loop, health, and
// metrics. One orchestrator runs per session; the sessions map is the
// only shared state and is guarded by a mutex.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/buildsense/schemer/internal/agent"
	"github.com/buildsense/schemer/internal/archive"
	"github.com/buildsense/schemer/internal/session"
)

// Archiver persists completed turns and serves the transcript index.
// *archive.Store is the production implementation; nil disables
// archiving.
type Archiver interface {
	AppendTurn(ctx context.Context, sessionID string, t session.Turn) error
	Turns(ctx context.Context, sessionID string) ([]session.Turn, error)
	Sessions(ctx context.Context) ([]archive.SessionInfo, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

var _ Archiver = (*archive.Store)(nil)

// WorkerStatus reports whether the tool worker subprocess is alive.
type WorkerStatus interface {
	Running() bool
}

// Options wires a Gateway's collaborators.
type Options struct {
	// Listen is the bind address, e.g. ":8080".
	Listen string

	// AuthToken, when set, protects the admin endpoints (status and
	// session deletion) with a bearer token.
	AuthToken string

	// NewOrchestrator builds the per-session agent. Required.
	NewOrchestrator func(sessionID string) *agent.Orchestrator

	// Archive persists turns; nil disables archiving.
	Archive Archiver

	// Worker feeds the health endpoint; nil means no worker configured.
	Worker WorkerStatus

	// Metrics collects turn counters; nil means a fresh collector.
	Metrics *Metrics

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Listen == "" {
		o.Listen = ":8080"
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 10 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 60 * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	if o.Metrics == nil {
		o.Metrics = NewMetrics()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Gateway is the HTTP front end. Construct with New, then Start.
type Gateway struct {
	opts      Options
	logger    *slog.Logger
	metrics   *Metrics
	server    *http.Server
	startedAt time.Time

	mu   sync.Mutex
	live map[string]*liveSession
}

// liveSession pairs an orchestrator with its archive bookkeeping.
// archived counts memory turns already flushed to the archive.
type liveSession struct {
	mu         sync.Mutex
	id         string
	orch       *agent.Orchestrator
	lastActive time.Time
	archived   int
}

// New builds a Gateway. Options.NewOrchestrator must be set.
func New(opts Options) *Gateway {
	opts.defaults()
	return &Gateway{
		opts:    opts,
		logger:  opts.Logger.With("component", "gateway"),
		metrics: opts.Metrics,
		live:    make(map[string]*liveSession),
	}
}

// Metrics returns the gateway's metrics collector, for wiring into the
// orchestrator factory as an agent.Observer.
func (g *Gateway) Metrics() *Metrics { return g.metrics }

// Start binds the listener and serves in the background.
func (g *Gateway) Start() error {
	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.opts.Listen,
		Handler:      g.Handler(),
		ReadTimeout:  g.opts.ReadTimeout,
		WriteTimeout: g.opts.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.opts.Listen)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.opts.Listen)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop shuts the server down gracefully, then ends and flushes every
// live session.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, g.opts.ShutdownTimeout)
		defer cancel()
		g.logger.Info("gateway shutting down")
		if err := g.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
	}

	g.mu.Lock()
	sessions := make([]*liveSession, 0, len(g.live))
	for _, ls := range g.live {
		sessions = append(sessions, ls)
	}
	g.live = make(map[string]*liveSession)
	g.mu.Unlock()

	for _, ls := range sessions {
		if ls.orch.Active() {
			ls.orch.EndSession()
		}
		g.flush(ctx, ls)
	}
	return nil
}
