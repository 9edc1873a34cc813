// blackboardd is the BlackBoard daemon: it owns the durable store, runs the
// monitoring, scaling, and workflow loops, and serves the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mercatus/blackboard/internal/board"
	"github.com/mercatus/blackboard/internal/config"
	"github.com/mercatus/blackboard/internal/daemon"
	"github.com/mercatus/blackboard/internal/monitor"
	"github.com/mercatus/blackboard/internal/scaler"
	"github.com/mercatus/blackboard/internal/store"
	"github.com/mercatus/blackboard/internal/store/cache"
	"github.com/mercatus/blackboard/internal/store/sqlite"
	"github.com/mercatus/blackboard/internal/team"
	"github.com/mercatus/blackboard/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	durable, err := sqlite.Open(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer durable.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := durable.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	mirror, err := cache.New(&redis.Options{
		Addr:     cfg.Storage.RedisAddr,
		Password: cfg.Storage.RedisPassword,
		DB:       cfg.Storage.RedisDB,
	}, cfg.Storage.Instance, cfg.Storage.CacheTTL())
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}
	defer mirror.Close()

	// The cache is a mirror; an outage degrades reads but the daemon still
	// serves from the durable store.
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := mirror.Ping(pingCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Redis not accessible, running degraded: %v\n", err)
	}
	cancel()

	repo := store.NewHybrid(durable, mirror)
	b := board.New(repo, mirror)
	mgr := team.NewManager(repo, b, scaler.New(repo))
	mon := monitor.New(repo, b,
		monitor.WithTaskTimeout(cfg.Monitor.TaskTimeout()),
		monitor.WithDedupeWindow(cfg.Monitor.DedupeWindow()),
	)

	fmt.Printf("blackboardd starting: instance %q, store %s, listening on %s\n",
		cfg.Storage.Instance, cfg.Storage.SQLitePath, cfg.Daemon.ListenAddr)

	d := daemon.New(cfg, repo, mirror, b, mgr, mon, workflow.NewEngine(b))
	return d.Run(ctx)
}

// loadConfig reads the path from BLACKBOARD_CONFIG, falling back to
// ./blackboard.yml, falling back to built-in defaults.
func loadConfig() (*config.Config, error) {
	path := os.Getenv("BLACKBOARD_CONFIG")
	if path != "" {
		return config.Load(path)
	}
	if _, err := os.Stat("blackboard.yml"); err == nil {
		return config.Load("blackboard.yml")
	}
	return config.Default(), nil
}
