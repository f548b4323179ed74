// Command aodv2 is the anomaly-on-demand collection daemon.
//
// Startup sequence (serve):
//  1. Root check — abort if not running as root.
//  2. Load and validate config.
//  3. Initialise structured logger (zap).
//  4. Open bbolt storage, prune stale ledger entries.
//  5. Start Prometheus metrics server (loopback by default).
//  6. Start the Supervisor: pipeline stages plus tool subprocesses.
//  7. Block on SIGINT/SIGTERM for graceful shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM):
//  1. Cancel the root context.
//  2. Supervisor drains the pipeline front-to-back and stops subprocesses.
//  3. Close bbolt.
//  4. Flush logger.
//  5. Exit 0.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aodv2/aodv2/internal/config"
	"github.com/aodv2/aodv2/internal/observability"
	"github.com/aodv2/aodv2/internal/storage"
	"github.com/aodv2/aodv2/internal/supervisor"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "aodv2",
		Short: "Anomaly-on-demand SMB diagnostic collection daemon",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "/etc/aodv2/config.yaml", "path to config.yaml")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("aodv2 %s (commit=%s built=%s)\n", config.Version, config.GitCommit, config.BuildTime)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configPath)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(configPath string) error {
	if os.Getuid() != 0 {
		return fmt.Errorf("aodv2 must run as root (UID 0)")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	log, err := observability.BuildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("aodv2 starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("node_id", cfg.NodeID),
		zap.String("config", configPath),
	)

	db, err := storage.Open(cfg.Storage.DBPath, cfg.Storage.RetentionDays)
	if err != nil {
		return fmt.Errorf("storage open failed: %w", err)
	}
	defer db.Close() //nolint:errcheck
	log.Info("storage opened", zap.String("path", cfg.Storage.DBPath))

	pruned, err := db.PruneOldLedgerEntries()
	if err != nil {
		log.Warn("ledger pruning failed", zap.Error(err))
	} else {
		log.Info("ledger pruned", zap.Int("deleted", pruned))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics()
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	sv := supervisor.New(cfg, metrics, log, db)
	done := make(chan error, 1)
	go func() { done <- sv.Run(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Error("supervisor exited with error", zap.Error(err))
		}
	}

	log.Info("aodv2 shutdown complete")
	return nil
}
