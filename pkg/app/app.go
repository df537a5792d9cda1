// Package app assembles the schemer components from configuration and
// drives their lifecycle: worker subprocess, decision engine, transcript
// archive, HTTP gateway, and the reaper scheduler.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/buildsense/schemer/internal/agent"
	"github.com/buildsense/schemer/internal/archive"
	"github.com/buildsense/schemer/internal/config"
	"github.com/buildsense/schemer/internal/cron"
	"github.com/buildsense/schemer/internal/decision"
	"github.com/buildsense/schemer/internal/gateway"
	"github.com/buildsense/schemer/internal/tool"
	"github.com/buildsense/schemer/internal/worker"
	"github.com/buildsense/schemer/modules/provider/gemini"
	"github.com/buildsense/schemer/modules/tools"
)

// Params configures application assembly.
type Params struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version is injected at build time via ldflags.
	Version string
}

// App holds the assembled components. Construct with Build.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Worker  *worker.Client
	Engine  *decision.Engine
	Archive *archive.Store
	Gateway *gateway.Gateway

	scheduler *cron.Scheduler
}

// Build loads configuration and wires every component without starting
// anything. A missing provider API key degrades the engine instead of
// failing the build; the worker subprocess is only configured, not
// spawned.
func Build(params Params) (*App, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil {
			return nil, err
		}
		cfgPath = resolved
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.Log.Level),
	}))

	app := &App{Config: cfg, Logger: logger}

	if len(cfg.Worker.Command) > 0 {
		app.Worker = worker.New(worker.Config{
			Command:   cfg.Worker.Command,
			StopGrace: cfg.Worker.ParsedStopGrace(),
			Logger:    logger,
		})
	} else {
		logger.Warn("app: no worker command configured, tools will report unavailable")
	}

	var completer decision.Completer
	provider, err := gemini.New(gemini.Config{
		APIKey:  cfg.Provider.APIKey,
		Model:   cfg.Provider.Model,
		BaseURL: cfg.Provider.BaseURL,
		Timeout: cfg.Provider.ParsedTimeout(),
	}, logger)
	switch {
	case errors.Is(err, gemini.ErrMissingAPIKey):
		logger.Warn("app: no provider API key, decision engine degraded")
	case err != nil:
		return nil, fmt.Errorf("app: building provider: %w", err)
	default:
		completer = provider
	}

	app.Engine = decision.New(completer, toolCatalog(app.toolCaller(), logger), logger)

	if cfg.Archive.Path != "" {
		store, err := archive.Open(cfg.Archive.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("app: opening archive: %w", err)
		}
		app.Archive = store
	}

	metrics := gateway.NewMetrics()
	app.Gateway = gateway.New(gateway.Options{
		Listen:          cfg.Gateway.Listen,
		AuthToken:       cfg.Gateway.AuthToken,
		NewOrchestrator: app.newOrchestrator(metrics),
		Archive:         archiverOrNil(app.Archive),
		Worker:          workerOrNil(app.Worker),
		Metrics:         metrics,
		Logger:          logger,
	})

	if cfg.Gateway.ReaperSchedule != "" {
		scheduler := cron.NewScheduler(logger)
		job := &cron.SessionReaperJob{
			Sessions:       app.Gateway,
			MaxIdle:        cfg.Gateway.ParsedSessionTTL(),
			RetainArchived: cfg.Archive.ParsedRetention(),
			Logger:         logger,
			ScheduleExpr:   cfg.Gateway.ReaperSchedule,
		}
		if app.Archive != nil {
			job.Archive = app.Archive
		}
		if err := scheduler.RegisterJob(job); err != nil {
			return nil, fmt.Errorf("app: registering reaper: %w", err)
		}
		app.scheduler = scheduler
	}

	return app, nil
}

// NewSession builds a standalone orchestrator outside the gateway, for
// the interactive chat command.
func (a *App) NewSession() *agent.Orchestrator {
	return a.newOrchestrator(a.Gateway.Metrics())("")
}

// newOrchestrator returns the per-session agent factory. Each session
// gets fresh tool instances so session-aware tools bind to their own
// memory.
func (a *App) newOrchestrator(observer agent.Observer) func(sessionID string) *agent.Orchestrator {
	return func(sessionID string) *agent.Orchestrator {
		return agent.New(agent.Config{
			Planner:       a.Engine,
			Tools:         tools.All(a.toolCaller(), a.Logger),
			Observer:      observer,
			SessionID:     sessionID,
			ContextBudget: a.Config.Memory.ContextBudget,
			Logger:        a.Logger,
		})
	}
}

// toolCaller adapts the optional worker client to the tools.Caller
// interface. A typed nil inside a non-nil interface would defeat the
// nil checks downstream, hence the explicit branch.
func (a *App) toolCaller() tools.Caller {
	if a.Worker == nil {
		return nil
	}
	return a.Worker
}

func archiverOrNil(store *archive.Store) gateway.Archiver {
	if store == nil {
		return nil
	}
	return store
}

func workerOrNil(client *worker.Client) gateway.WorkerStatus {
	if client == nil {
		return nil
	}
	return client
}

// Run builds the application, starts it, and blocks until SIGINT or
// SIGTERM, then stops everything in reverse order.
func Run(params Params) error {
	app, err := Build(params)
	if err != nil {
		return err
	}
	if err := app.Start(); err != nil {
		return err
	}
	app.Logger.Info("schemer started", "version", params.Version, "listen", app.Config.Gateway.Listen)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	sig := <-sigCh
	app.Logger.Info("shutdown signal received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	app.Stop(ctx)
	app.Logger.Info("shutdown complete")
	return nil
}

// Start spawns the worker, binds the gateway, and starts the scheduler.
// A worker that fails to spawn degrades tools but does not abort
// startup.
func (a *App) Start() error {
	if a.Worker != nil {
		if err := a.Worker.Start(); err != nil {
			a.Logger.Error("app: worker failed to start, tools degraded", "error", err)
		}
	}
	if err := a.Gateway.Start(); err != nil {
		a.stopBackground()
		return err
	}
	if a.scheduler != nil {
		if err := a.scheduler.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Stop tears components down in reverse start order.
func (a *App) Stop(ctx context.Context) {
	if a.scheduler != nil {
		_ = a.scheduler.Stop(ctx)
	}
	if err := a.Gateway.Stop(ctx); err != nil {
		a.Logger.Error("app: gateway shutdown", "error", err)
	}
	a.stopBackground()
}

func (a *App) stopBackground() {
	if a.Worker != nil {
		if err := a.Worker.Stop(); err != nil {
			a.Logger.Error("app: worker shutdown", "error", err)
		}
	}
	if a.Archive != nil {
		if err := a.Archive.Close(); err != nil {
			a.Logger.Error("app: archive close", "error", err)
		}
	}
}

// toolCatalog renders the tool listing embedded in every decision
// prompt. Catalog content only depends on static tool metadata, so a
// throwaway registry is enough.
func toolCatalog(caller tools.Caller, logger *slog.Logger) string {
	registry := tool.NewRegistry()
	for _, t := range tools.All(caller, logger) {
		if err := registry.Register(t); err != nil {
			logger.Warn("app: catalog registration", "tool", t.Name(), "error", err)
		}
	}
	return registry.Catalog()
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/schemer/schemer.yaml →
// ~/.config/schemer/schemer.yaml → ./schemer.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "schemer", "schemer.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "schemer", "schemer.yaml"))
	}

	candidates = append(candidates, "schemer.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}
