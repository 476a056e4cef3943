package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ericvicenti/botical-sub000/internal/actions"
	"github.com/ericvicenti/botical-sub000/internal/approval"
	"github.com/ericvicenti/botical-sub000/internal/engine"
	"github.com/ericvicenti/botical-sub000/internal/scheduler"
	"github.com/ericvicenti/botical-sub000/internal/session"
	"github.com/ericvicenti/botical-sub000/internal/store"
	"github.com/ericvicenti/botical-sub000/internal/streaming"
	"github.com/ericvicenti/botical-sub000/pkg/mcp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "botical:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := loadConfig()

	// Stdout carries the MCP stdio transport; logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	hub := streaming.NewMemoryHub()

	registry := actions.NewRegistry()
	httpCfg := actions.HTTPConfig{MaxResponseBody: cfg.HTTPBodyMax}
	if cfg.HTTPTimeout > 0 {
		httpCfg.DefaultTimeout = time.Duration(cfg.HTTPTimeout) * time.Second
	}
	if err := actions.RegisterBuiltins(registry, httpCfg); err != nil {
		return fmt.Errorf("register builtin actions: %w", err)
	}

	// No LLM provider is wired here; session steps fail until a runner is
	// configured. See session.AgentRunner.
	sessions := session.NewService(st, nil, logger)
	approvals := approval.NewService(st, hub, logger)

	eng := engine.NewEngine(st, hub, registry, sessions, approvals, logger, engine.EngineConfig{
		PoolSize: cfg.PoolSize,
	})
	defer eng.Shutdown()

	if cfg.Scheduler {
		sched := scheduler.NewScheduler(st, &engineRunner{store: st, engine: eng}, logger)
		if err := sched.RecoverMissed(ctx); err != nil {
			logger.Warn("scheduled run recovery failed", slog.String("error", err.Error()))
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	srv := mcp.NewBoticalServer(mcp.BoticalServerDeps{
		Engine:    eng,
		Store:     st,
		Approvals: approvals,
		Hub:       hub,
		Logger:    logger,
	})

	notifier := mcp.NewStreamNotifier(srv.MCPServer(), srv.Sessions(), hub, logger)
	go func() {
		if err := notifier.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("notifier stopped", slog.String("error", err.Error()))
		}
	}()

	logger.Info("botical serving MCP on stdio",
		slog.String("db", cfg.DBPath),
		slog.Int("pool_size", cfg.PoolSize),
	)
	if err := srv.Serve(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// engineRunner adapts the engine to the scheduler's runner interface.
type engineRunner struct {
	store  store.Store
	engine *engine.Engine
}

func (r *engineRunner) Execute(ctx context.Context, workflowID string, input map[string]any) (string, error) {
	rec, err := r.store.GetWorkflowDefinition(ctx, workflowID)
	if err != nil {
		return "", err
	}
	return r.engine.ExecuteWorkflow(ctx, rec, input, engine.ExecOptions{})
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
