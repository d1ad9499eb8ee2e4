// Package main is the entry point for the llmbridge diagnostics server.
// It builds backend instances from configuration and serves observability
// endpoints; completion traffic goes through the library API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"llmbridge/config"
	"llmbridge/internal/backends"
	"llmbridge/internal/cache"
	"llmbridge/internal/diag"
	"llmbridge/internal/logging"
	"llmbridge/internal/storage"
	"llmbridge/internal/usage"
	"llmbridge/internal/version"

	// Import adapter packages to trigger their init() registration
	_ "llmbridge/internal/backends/anthropic"
	_ "llmbridge/internal/backends/azure"
	_ "llmbridge/internal/backends/bedrock"
	_ "llmbridge/internal/backends/gemini"
	_ "llmbridge/internal/backends/ollama"
	_ "llmbridge/internal/backends/ondevice"
	_ "llmbridge/internal/backends/openai"
)

// catalogRefreshInterval is how often discovered model lists are re-fetched
// and the cache snapshot rewritten.
const catalogRefreshInterval = 1 * time.Hour

func main() {
	versionFlag := flag.Bool("version", false, "Print version information")
	flag.Parse()

	if *versionFlag {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logging.Setup(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	slog.Info("starting llmbridge",
		"version", version.Version,
		"commit", version.Commit,
		"build_date", version.Date,
	)

	if len(cfg.Backends) == 0 {
		slog.Error("at least one backend must be configured")
		os.Exit(1)
	}

	ctx := context.Background()

	// Usage journal
	journal, err := usage.New(ctx, usage.Config{
		Enabled:       cfg.Usage.Enabled,
		BufferSize:    cfg.Usage.BufferSize,
		FlushInterval: time.Duration(cfg.Usage.FlushInterval) * time.Second,
		RetentionDays: cfg.Usage.RetentionDays,
	}, storage.Config{
		Type:   cfg.Storage.Type,
		SQLite: storage.SQLiteConfig{Path: cfg.Storage.SQLite.Path},
		PostgreSQL: storage.PostgreSQLConfig{
			URL:      cfg.Storage.PostgreSQL.URL,
			MaxConns: cfg.Storage.PostgreSQL.MaxConns,
		},
	})
	if err != nil {
		slog.Error("failed to initialize usage journal", "error", err)
		os.Exit(1)
	}
	defer journal.Close()

	if cfg.Usage.Enabled {
		slog.Info("usage journal enabled",
			"storage_type", cfg.Storage.Type,
			"retention_days", cfg.Usage.RetentionDays,
		)
	}

	// Backend registry
	registry := backends.NewRegistry()
	registry.SetJournal(journal.Logger)

	registered := 0
	for _, bc := range cfg.Backends {
		if _, err := registry.Upsert(ctx, bc); err != nil {
			slog.Error("failed to register backend", "backend", bc.ID, "error", err)
			continue
		}
		if bc.Enabled {
			registered++
		}
	}
	if registered == 0 {
		slog.Error("no backend could be registered")
		os.Exit(1)
	}

	// Model-catalog cache: seed instances whose live discovery failed, then
	// keep the snapshot fresh in the background.
	catalogStore := newCatalogStore(cfg.Cache)
	defer catalogStore.Close()

	if snap, err := catalogStore.Get(ctx); err != nil {
		slog.Warn("failed to read catalog cache", "error", err)
	} else if snap != nil {
		registry.SeedCatalogs(snap.Catalogs)
	}
	saveCatalogs(ctx, catalogStore, registry)

	refreshCtx, stopRefresh := context.WithCancel(ctx)
	defer stopRefresh()
	go refreshLoop(refreshCtx, catalogStore, registry)

	// Diagnostics server
	srv := diag.New(registry, journal.Reader)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	addr := ":" + cfg.Server.Port
	slog.Info("diagnostics server listening", "address", addr)

	if err := srv.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
		} else {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}
}

// newCatalogStore picks Redis when configured, local file otherwise. An
// unreachable Redis degrades to the local store rather than aborting startup.
func newCatalogStore(cfg config.CacheConfig) cache.Store {
	if cfg.RedisURL != "" {
		store, err := cache.NewRedisStore(cache.RedisConfig{URL: cfg.RedisURL})
		if err == nil {
			return store
		}
		slog.Warn("redis catalog cache unavailable, falling back to local file", "error", err)
	}
	path := cfg.Path
	if path == "" {
		path = ".cache/catalogs.json"
	}
	return cache.NewLocalStore(path)
}

func saveCatalogs(ctx context.Context, store cache.Store, registry *backends.Registry) {
	catalogs := registry.Catalogs()
	if len(catalogs) == 0 {
		return
	}
	snap := &cache.Snapshot{
		Version:   cache.SnapshotVersion,
		UpdatedAt: time.Now().UTC(),
		Catalogs:  catalogs,
	}
	if err := store.Set(ctx, snap); err != nil {
		slog.Warn("failed to write catalog cache", "error", err)
	}
}

func refreshLoop(ctx context.Context, store cache.Store, registry *backends.Registry) {
	ticker := time.NewTicker(catalogRefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			registry.RefreshCatalogs(ctx)
			saveCatalogs(ctx, store, registry)
		case <-ctx.Done():
			return
		}
	}
}
