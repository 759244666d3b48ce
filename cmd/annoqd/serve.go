package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/annoq/annoq/api"
	"github.com/annoq/annoq/config"
	"github.com/annoq/annoq/events"
	"github.com/annoq/annoq/logging"
	"github.com/annoq/annoq/queue"
	"github.com/annoq/annoq/ratelimit"
	"github.com/annoq/annoq/roles"
	"github.com/annoq/annoq/shutdown"
	"github.com/annoq/annoq/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the annotation queue server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log := logging.New()
	log.SetLevel(logging.ParseLevel(cfg.Logging.Level))

	taskStore, annStore, closeStores, err := openStores(cfg, log)
	if err != nil {
		return err
	}

	guard, err := openGuard(cfg)
	if err != nil {
		closeStores(context.Background())
		return err
	}

	bus, err := openBus(cfg)
	if err != nil {
		closeStores(context.Background())
		return err
	}

	svc := queue.NewService(taskStore, annStore, cfg.StageResolver(),
		queue.WithBus(bus),
		queue.WithLogger(log),
	)

	var limiter ratelimit.Limiter
	if cfg.RateLimit.ClaimCapacity > 0 && cfg.RateLimit.ClaimWindow.Duration > 0 {
		limiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.ClaimCapacity, cfg.RateLimit.ClaimWindow.Duration)
	}

	serverOpts := []api.ServerOption{api.WithLogger(log)}
	if limiter != nil {
		serverOpts = append(serverOpts, api.WithLimiter(limiter))
	}
	server := api.NewServer(svc, guard, serverOpts...)

	coord := shutdown.NewCoordinator(
		shutdown.WithTimeout(cfg.Server.ShutdownTimeout.Duration),
		shutdown.WithProgress(func(r shutdown.Result) {
			fields := map[string]interface{}{"component": r.Name, "took": r.Duration}
			if r.Err != nil {
				fields["error"] = r.Err.Error()
				log.Error("shutdown handler failed", fields)
				return
			}
			log.Info("shutdown handler done", fields)
		}),
	)
	coord.RegisterFunc("http", server.Shutdown, shutdown.PhaseServer)
	coord.RegisterFunc("bus", func(context.Context) error { return bus.Close() }, shutdown.PhaseBus)
	if limiter != nil {
		coord.RegisterFunc("ratelimit", func(context.Context) error { return limiter.Close() }, shutdown.PhaseBus)
	}
	coord.RegisterFunc("stores", closeStores, shutdown.PhaseStores)
	coord.HandleSignals()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe(cfg.Server.Listen,
			cfg.Server.ReadTimeout.Duration, cfg.Server.WriteTimeout.Duration)
	}()

	select {
	case err := <-errCh:
		// Listener failed before any signal; tear everything down.
		_ = coord.ShutdownWithTimeout(0)
		return err
	case <-coord.Done():
		if err := <-errCh; err != nil {
			return err
		}
		return coord.Err()
	}
}

// openStores builds the configured persistence backend. The returned
// close function shuts down every opened handle.
func openStores(cfg *config.Config, log *logging.Logger) (store.TaskStore, store.AnnotationStore, func(context.Context) error, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		mem := store.NewMemoryStore()
		log.Info("using in-memory store (contents are lost on restart)")
		return mem, mem, func(context.Context) error { return mem.Close() }, nil

	case config.StoreBolt:
		b, err := store.OpenBolt(cfg.Store.Path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening bolt store: %w", err)
		}
		log.Info("using bolt store", map[string]interface{}{"path": cfg.Store.Path})
		return b, b, func(context.Context) error { return b.Close() }, nil

	case config.StorePostgres:
		pg, err := store.OpenPostgres(context.Background(), cfg.Store.DSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening postgres store: %w", err)
		}
		log.Info("using postgres store")
		return pg, pg, func(context.Context) error { return pg.Close() }, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}

func openGuard(cfg *config.Config) (roles.Guard, error) {
	if cfg.Roles.File == "" {
		return nil, fmt.Errorf("roles file is required (set [roles] file in config)")
	}
	guard, err := roles.LoadFile(cfg.Roles.File)
	if err != nil {
		return nil, fmt.Errorf("loading roles: %w", err)
	}
	return guard, nil
}

func openBus(cfg *config.Config) (events.Bus, error) {
	switch cfg.Bus.Backend {
	case config.BusMemory:
		return events.NewMemoryBus(events.DefaultConfig()), nil

	case config.BusNATS:
		natsCfg := events.DefaultNATSConfig()
		natsCfg.URL = cfg.Bus.URL
		natsCfg.Name = cfg.Bus.Name
		bus, err := events.NewNATSBus(natsCfg)
		if err != nil {
			return nil, fmt.Errorf("connecting to nats: %w", err)
		}
		return bus, nil
	}
	return nil, fmt.Errorf("unknown bus backend %q", cfg.Bus.Backend)
}
