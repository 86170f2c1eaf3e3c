package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/martegra/divrecon/internal/api"
	"github.com/martegra/divrecon/internal/config"
	"github.com/martegra/divrecon/internal/engine"
	"github.com/martegra/divrecon/internal/store"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	cfgPath := flag.String("config", "configs/reconcile.yaml", "Path to reconciliation YAML config")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	// ── Audit store ───────────────────────────────────────────────────────────
	var st *store.Store
	if cfg.Store.Path != "" {
		st, err = store.Open(cfg.Store.Path)
		if err != nil {
			slog.Error("failed to open audit store", "err", err)
			os.Exit(1)
		}
		defer st.Close()
		slog.Info("audit store ready", "path", cfg.Store.Path)
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eng, err := engine.New(ctx, cfg, st)
	if err != nil {
		slog.Error("failed to start engine", "err", err)
		os.Exit(1)
	}
	slog.Info("engine ready",
		"rules", cfg.Safeguards.Rules,
		"workers", cfg.Engine.SafeguardWorkers,
	)

	// ── Hot-reload watcher ────────────────────────────────────────────────────
	// The loader only delivers configs that already passed validation.
	loader.OnChange(func(newCfg *config.Config) {
		if err := eng.SwapConfig(newCfg); err != nil {
			slog.Warn("hot-reload skipped: compile failed", "err", err)
			return
		}
		slog.Info("config hot-reloaded", "rules", newCfg.Safeguards.Rules)
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	listen := cfg.Server.Addr
	if *addr != "" {
		listen = *addr
	}
	handler := api.New(eng, loader, st)
	srv := &http.Server{
		Addr:         listen,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", listen)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("shutting down…")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)
	eng.Shutdown()
	cancel()
	slog.Info("goodbye")
}
