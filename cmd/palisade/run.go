package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"palisade-hq/palisade/pkg/authz"
	"palisade-hq/palisade/pkg/cli"
	"palisade-hq/palisade/pkg/config"
	"palisade-hq/palisade/pkg/engine"
	"palisade-hq/palisade/pkg/executor"
	"palisade-hq/palisade/pkg/ledger"
	"palisade-hq/palisade/pkg/policy"
	"palisade-hq/palisade/pkg/policy/source"
	"palisade-hq/palisade/pkg/server"
	"palisade-hq/palisade/pkg/telemetry/logging"
	"palisade-hq/palisade/pkg/telemetry/metrics"
	"palisade-hq/palisade/pkg/winsys"
)

var runFlags struct {
	logLevel string
	dryRun   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Palisade daemon",
	Long: `Start the privileged Palisade daemon.

The daemon loads the policy catalog, opens the change ledger, and serves the
local control endpoint (a named pipe on Windows, a unix socket elsewhere).
All host mutation happens inside this process; client subcommands only send
commands to it.

Examples:
  # Start with default config
  palisade run

  # Start with custom config
  palisade run --config /etc/palisade/config.yaml

  # Validate config and catalog without serving
  palisade run --dry-run`,
	RunE: runDaemon,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config and catalog without starting the daemon")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	// Load configuration
	if err := config.Initialize(cfgFile); err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	// Apply flag overrides
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	// Initialize logging based on config
	logger, err := logging.InitDefault(logging.FromConfig(&cfg.Telemetry.Logging))
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	defer logger.Close()

	fmt.Printf("Palisade v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	// Load the policy catalog
	loader := source.NewLoader(&source.LoaderConfig{
		MaxFileSize: cfg.Policy.MaxFileBytes,
		Extensions:  []string{".yaml", ".yml"},
	})
	defs, err := loader.Load(cfg.Policy.Path)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("loading policy catalog: %w", err))
	}

	catalog := policy.NewCatalog()
	if err := catalog.Replace(defs); err != nil {
		return cli.NewCommandError("run", fmt.Errorf("validating policy catalog: %w", err))
	}
	fmt.Printf("✓ Policy catalog loaded (%d policies)\n", catalog.Count())

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	// Metrics
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	// Change ledger
	store, err := openLedger(&cfg.Ledger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer store.Close()
	fmt.Printf("✓ Change ledger opened (%s)\n", cfg.Ledger.Backend)

	// OS facilities and executors
	shell := winsys.NewShell()
	signature := winsys.NewShellSignature(shell)

	executors, err := buildExecutors(cfg, shell, signature)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	var checkpoint winsys.CheckpointCreator
	if !cfg.Engine.Checkpoint.Disabled {
		checkpoint = winsys.NewShellCheckpoint(shell)
	}

	// Engine
	eng, err := engine.New(engine.Config{
		Catalog:               catalog,
		Resolver:              policy.NewResolver(catalog),
		Executors:             executors,
		Store:                 store,
		Prober:                winsys.NewShellProber(shell),
		Checkpoint:            checkpoint,
		CheckpointDescription: cfg.Engine.Checkpoint.Description,
		Metrics:               collector,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	// Authorization
	authorizer := authz.NewAuthorizer(authz.Config{
		RequireSignature: !cfg.Authz.AllowUnsignedClients,
	}, signature)

	// Control endpoint
	srv, err := server.New(&cfg.Server, server.Options{
		Engine:        eng,
		Catalog:       catalog,
		Store:         store,
		Authorizer:    authorizer,
		Inspector:     authz.NewPlatformInspector(),
		Metrics:       collector,
		Version:       Version,
		LedgerBackend: cfg.Ledger.Backend,
	})
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Drift monitor
	if cfg.Engine.Drift.Enabled {
		monitor := engine.NewMonitor(eng, cfg.Engine.Drift.Schedule)
		if err := monitor.Start(ctx); err != nil {
			return cli.NewCommandError("run", fmt.Errorf("starting drift monitor: %w", err))
		}
		defer monitor.Stop()
		if next := monitor.NextRun(); next != nil {
			logger.Debug("drift monitor started", "next_scan", next)
		}
		fmt.Printf("✓ Drift monitor scheduled (%s)\n", cfg.Engine.Drift.Schedule)
	}

	// Catalog hot reload
	if cfg.Policy.Watch {
		watcher, err := source.NewWatcher(&source.WatcherConfig{
			Path:             cfg.Policy.Path,
			DebounceInterval: cfg.Policy.WatchDebounce,
		})
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("creating policy watcher: %w", err))
		}
		go func() {
			err := watcher.Watch(ctx, func() error {
				return reloadCatalog(loader, catalog, collector, cfg.Policy.Path)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("policy watcher stopped", "error", err)
			}
		}()
		defer watcher.Stop()
		fmt.Println("✓ Policy hot-reload watching", cfg.Policy.Path)
	}

	// Metrics endpoint
	var metricsSrv *http.Server
	if collector != nil {
		mux := http.NewServeMux()
		mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.Telemetry.Metrics.ListenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics endpoint failed", "error", err)
			}
		}()
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n",
			cfg.Telemetry.Metrics.ListenAddress, cfg.Telemetry.Metrics.Path)
	}

	// Start the control endpoint in the background
	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	fmt.Println()
	fmt.Printf("✓ Control endpoint: %s\n", endpointName(&cfg.Server))
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for shutdown signal or server error
	sigChan := cli.WaitForShutdown()

	select {
	case err := <-errChan:
		return cli.NewCommandError("run", err)
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if metricsSrv != nil {
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics endpoint shutdown failed", "error", err)
			}
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
			return cli.NewCommandError("run", err)
		}

		fmt.Println("✓ Daemon stopped")
		return nil
	}
}

// openLedger builds the configured ledger backend.
func openLedger(cfg *config.LedgerConfig) (ledger.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLite.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("creating ledger directory: %w", err)
			}
		}
		return ledger.NewSQLiteStore(&ledger.SQLiteConfig{
			Path:         cfg.SQLite.Path,
			MaxOpenConns: cfg.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.SQLite.MaxIdleConns,
			WALMode:      !cfg.SQLite.DisableWAL,
			BusyTimeout:  cfg.SQLite.BusyTimeout,
		})
	case "memory":
		return ledger.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported ledger backend: %s (supported: sqlite, memory)", cfg.Backend)
	}
}

// buildExecutors registers one executor per mechanism.
func buildExecutors(cfg *config.Config, shell *winsys.Shell, signature winsys.SignatureVerifier) (*executor.Registry, error) {
	registry := executor.NewRegistry()

	executors := []executor.Executor{
		executor.NewRegistryExecutor(winsys.NewShellRegistry(shell)),
		executor.NewServiceExecutor(winsys.NewShellServices(shell)),
		executor.NewTaskExecutor(winsys.NewShellTasks(shell)),
		executor.NewFirewallExecutor(
			winsys.NewShellFirewall(shell),
			winsys.NetResolver{},
			cfg.Engine.Firewall.AuditCacheTTL,
		),
		executor.NewScriptExecutor(winsys.NewExecRunner(), signature, executor.ScriptExecutorConfig{
			ScriptRoot:       cfg.Engine.Scripts.Root,
			RequireSignature: !cfg.Engine.Scripts.AllowUnsigned,
			DefaultTimeout:   cfg.Engine.Scripts.DefaultTimeout,
		}),
	}
	for _, e := range executors {
		if err := registry.Register(e); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// reloadCatalog swaps the catalog contents after a policy file change. A
// failed load or validation keeps the previous catalog serving.
func reloadCatalog(loader *source.Loader, catalog *policy.Catalog, collector *metrics.Collector, path string) error {
	defs, err := loader.Load(path)
	if err != nil {
		if collector != nil {
			collector.RecordCatalogReload(false, catalog.Count())
		}
		return err
	}
	if err := catalog.Replace(defs); err != nil {
		if collector != nil {
			collector.RecordCatalogReload(false, catalog.Count())
		}
		return err
	}
	if collector != nil {
		collector.RecordCatalogReload(true, catalog.Count())
	}
	return nil
}

// endpointName renders the platform control endpoint for the startup banner.
func endpointName(cfg *config.ServerConfig) string {
	if name := server.EndpointName(cfg); name != "" {
		return name
	}
	return "local control endpoint"
}
