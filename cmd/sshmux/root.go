package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ykondo/sshmux/internal/background"
	"github.com/ykondo/sshmux/internal/config"
	"github.com/ykondo/sshmux/internal/devcache"
	"github.com/ykondo/sshmux/internal/model"
	"github.com/ykondo/sshmux/internal/mux"
	"github.com/ykondo/sshmux/internal/pool"
	"github.com/ykondo/sshmux/internal/registry"
	"github.com/ykondo/sshmux/internal/target"
)

var (
	version = "dev"

	verbose bool

	// shutdownGrace bounds how long process exit waits for background
	// sweep/warm jobs. They are best-effort; cutting them short is fine.
	shutdownGrace = 2 * time.Second
)

type app struct {
	cfg      config.Config
	log      *slog.Logger
	store    *registry.Store
	sockets  *mux.SocketStore
	cache    *devcache.Cache
	manager  *mux.Manager
	sweeper  *pool.Sweeper
	enforcer *pool.Enforcer
	bg       *background.Runner
}

var a *app

var rootCmd = &cobra.Command{
	Use:   "sshmux",
	Short: "Shared multiplexed SSH sessions with a durable connection pool",
	Long: `sshmux keeps one persistent multiplexed SSH session per target host so
that many short-lived invocations can share it. Connections are tracked in
a durable registry with a hard pool cap, and per-host device-type
classifications are cached with a TTL.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initApp(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(reconnectCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(lastCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(cacheCmd)
}

func initApp(ctx context.Context) error {
	if a != nil {
		return nil
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store, err := registry.Open(ctx, cfg.DBPath)
	if err != nil {
		return err
	}
	if err := registry.ApplyMigrations(ctx, store.DB()); err != nil {
		store.Close() //nolint:errcheck
		return err
	}

	sockets, err := mux.NewSocketStore(cfg.SocketDir)
	if err != nil {
		store.Close() //nolint:errcheck
		return err
	}
	cache, err := devcache.New(cfg, log)
	if err != nil {
		store.Close() //nolint:errcheck
		return err
	}

	bg := background.New(log)
	manager := mux.NewManager(cfg, store, sockets, log)
	sweeper := pool.NewSweeper(store, sockets, manager.Checker(), log)
	enforcer := pool.NewEnforcer(store, sockets, sweeper, bg, log)
	manager.SetCapacityEnforcer(enforcer)
	manager.SetDeviceTypes(cache)

	a = &app{
		cfg:      cfg,
		log:      log,
		store:    store,
		sockets:  sockets,
		cache:    cache,
		manager:  manager,
		sweeper:  sweeper,
		enforcer: enforcer,
		bg:       bg,
	}

	// Startup housekeeping: hard cap first, then best-effort cleanup and
	// cache warming off the foreground path.
	enforcer.EnforceCapacity(ctx, cfg.MaxConnections)
	bg.Spawn("sweep", sweeper.Sweep)
	bg.Spawn("warm", cache.Warm)
	return nil
}

func shutdown() {
	if a == nil {
		return
	}
	waitBackground(shutdownGrace)
	a.store.Close() //nolint:errcheck
}

func waitBackground(grace time.Duration) {
	done := make(chan struct{})
	go func() {
		a.bg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
	}
}

// resolveTarget parses the explicit argument or falls back to the last
// connected target.
func resolveTarget(ctx context.Context, args []string) (model.Target, error) {
	if len(args) > 0 {
		return target.Parse(args[0])
	}
	raw, err := a.store.LastTarget(ctx)
	if err != nil {
		return model.Target{}, fmt.Errorf("no target given and none remembered: %w", err)
	}
	return target.Parse(raw)
}
