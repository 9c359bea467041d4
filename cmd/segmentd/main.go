package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/veesix-networks/segmentd/internal/api"
	_ "github.com/veesix-networks/segmentd/internal/exporter"
	"github.com/veesix-networks/segmentd/pkg/allocator"
	"github.com/veesix-networks/segmentd/pkg/component"
	"github.com/veesix-networks/segmentd/pkg/config"
	"github.com/veesix-networks/segmentd/pkg/events/local"
	"github.com/veesix-networks/segmentd/pkg/logger"
	"github.com/veesix-networks/segmentd/pkg/metrics"
	"github.com/veesix-networks/segmentd/pkg/pool"
	"github.com/veesix-networks/segmentd/pkg/provision"
	"github.com/veesix-networks/segmentd/pkg/scope"
	"github.com/veesix-networks/segmentd/pkg/store"
	"github.com/veesix-networks/segmentd/pkg/store/memdb"
	"github.com/veesix-networks/segmentd/pkg/store/sqlite"
	"github.com/veesix-networks/segmentd/pkg/version"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (built-in defaults when empty)")
	checkOnly := flag.Bool("check", false, "Validate the configuration and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("segmentd", version.Full())
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *checkOnly {
		fmt.Println("configuration ok")
		return
	}

	components := make(map[string]logger.LogLevel, len(cfg.Logging.Components))
	for name, level := range cfg.Logging.Components {
		components[name] = logger.LogLevel(level)
	}
	logger.Configure(cfg.Logging.Format, logger.LogLevel(cfg.Logging.Level), components)

	mainLog := logger.Get(logger.Main)
	mainLog.Info("Starting segmentd", "version", version.Version, "store_driver", cfg.Store.Driver)

	st, err := openStore(cfg.Store)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	ctx := context.Background()
	res, err := provision.Apply(ctx, st, cfg.Provisioning)
	if err != nil {
		log.Fatalf("Failed to provision store: %v", err)
	}
	if !res.Skipped {
		mainLog.Info("Store provisioned",
			"segments", res.Segments,
			"pod_mappings", res.PodMappings,
			"account_mappings", res.AccountMappings)
	}

	bus := local.NewBus()
	metrics.Subscribe(bus)
	if len(cfg.Logging.DebugEvents) > 0 {
		bus.SetDebugTopics(cfg.Logging.DebugEvents)
	}

	deps := component.Dependencies{
		Config:    cfg,
		Store:     st,
		EventBus:  bus,
		Allocator: allocator.New(st, bus),
		Scope:     scope.New(st, bus),
		Pool:      pool.New(st),
	}

	comps, err := component.LoadAll(deps)
	if err != nil {
		log.Fatalf("Failed to load components: %v", err)
	}

	orch := component.NewOrchestrator()
	for _, comp := range comps {
		mainLog.Info("Loaded component", "name", comp.Name())
		orch.Register(comp)
	}

	if err := orch.Start(ctx); err != nil {
		log.Fatalf("Failed to start components: %v", err)
	}

	mainLog.Info("segmentd started successfully")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	mainLog.Info("Shutting down segmentd...")

	if err := orch.Stop(ctx); err != nil {
		mainLog.Error("Error stopping components", "error", err)
	}
	if err := bus.Close(); err != nil {
		mainLog.Error("Error closing event bus", "error", err)
	}
	if err := st.Close(); err != nil {
		mainLog.Error("Error closing store", "error", err)
	}

	mainLog.Info("segmentd stopped")
}

func openStore(cfg config.Store) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memdb.New(), nil
	case config.DriverSQLite:
		return sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
