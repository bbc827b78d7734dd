package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/waigayahq/waigaya/internal/bus"
	"github.com/waigayahq/waigaya/internal/config"
	"github.com/waigayahq/waigaya/internal/gateway"
	"github.com/waigayahq/waigaya/internal/slack"
	"github.com/waigayahq/waigaya/internal/store"
)

func runDaemon() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	st, err := store.New(cfg.DataDir)
	if err != nil {
		slog.Error("failed to open data dir", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}

	eventBus := bus.New()
	sc := slack.NewClient(st, eventBus)

	restoreState(st, sc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := st.Watch(ctx, eventBus, sc); err != nil && ctx.Err() == nil {
			slog.Warn("snapshot watcher stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		sc.Disconnect()
		cancel()
	}()

	server := gateway.NewServer(cfg, eventBus, sc, st)
	if err := server.Start(ctx); err != nil {
		slog.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

// restoreState pushes persisted snapshots into the in-memory caches so the
// daemon resumes where the last run left off. All of it is best-effort; the
// UI can re-trigger any of these loads.
func restoreState(st *store.Store, sc *slack.Client) {
	if cfg, err := st.LoadConfig(); err != nil {
		slog.Warn("restore config", "error", err)
	} else if cfg != nil {
		sc.UpdateConfig(*cfg)
	}

	if users, err := st.LoadUsers(); err != nil {
		slog.Warn("restore users snapshot", "error", err)
	} else if len(users) > 0 {
		sc.SetLocalUsers(users)
		slog.Info("restored users snapshot", "count", len(users))
	}

	if emojis, err := st.LoadEmojis(); err != nil {
		slog.Warn("restore emojis snapshot", "error", err)
	} else if len(emojis) > 0 {
		sc.SetLocalEmojis(emojis)
		slog.Info("restored emojis snapshot", "count", len(emojis))
	}
}
