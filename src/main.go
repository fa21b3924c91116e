package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"ghostdb/src/engine"
	"ghostdb/src/persistence"
	"ghostdb/src/settings"
)

// printUsage prints helpful usage information
func printUsage() {
	log.Println("GhostDB - an embeddable in-process document store")
	log.Println("\nUsage:")
	log.Println("  ghostdb [options]")
	log.Println("\nOptions:")
	flag.PrintDefaults()

	log.Println("\nExamples:")
	log.Println("  ghostdb --datadir=/data")
	log.Println("  ghostdb --snapshotinterval=30 --snapshotkeep=10")
}

func main() {
	// Get the global settings instance
	args := settings.GetSettings()

	// Define command line flags that map to the Arguments struct
	flag.StringVar(&args.DataDir, "datadir", "./datafiles", "Directory to store snapshot files")
	flag.StringVar(&args.ConfigFile, "config", "", "Path to YAML config file")
	flag.IntVar(&args.SnapshotInterval, "snapshotinterval", 60, "Seconds between snapshots (0 disables)")
	flag.IntVar(&args.SnapshotKeep, "snapshotkeep", 5, "Number of rotated snapshots to keep")
	flag.StringVar(&args.SnapshotPassphrase, "passphrase", "", "Passphrase for snapshot encryption (empty: plaintext)")
	flag.Int64Var(&args.MaxMemoryBytes, "maxmemory", 0, "Memory ceiling for document bodies in bytes (0: unlimited)")
	flag.IntVar(&args.DefaultShardCount, "shards", 16, "Default shard count for hash indexes")
	flag.IntVar(&args.BTreeOrder, "btreeorder", 32, "Branching factor of ordered indexes")
	flag.BoolVar(&args.Verbose, "verbose", false, "Verbose setting (stored only; the logger choice follows --debug)")
	flag.BoolVar(&args.Debug, "debug", false, "Enable debug mode")
	flag.StringVar(&args.Version, "version", "0.1.0", "Version string reported in the startup log")

	// Parse the command line
	flag.Parse()

	if args.ConfigFile != "" {
		if err := settings.LoadConfigFile(args, args.ConfigFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n\n", err)
			printUsage()
			os.Exit(1)
		}
	}

	// Ensure data directory exists
	if err := os.MkdirAll(args.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	var zlog *zap.Logger
	var err error
	if args.Debug {
		zlog, err = zap.NewDevelopment()
	} else {
		zlog, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zlog.Sync()
	logger := zlog.Sugar()

	db := engine.NewDB(args, logger)

	// Restore the most recent snapshot, if one exists
	latest, err := persistence.LatestFile(args.DataDir)
	if err != nil {
		logger.Fatalf("Failed to look for snapshots: %v", err)
	}
	if latest != "" {
		snap, err := persistence.ReadFile(latest, args.SnapshotPassphrase)
		if err != nil {
			logger.Fatalf("Failed to load snapshot %s: %v", latest, err)
		}
		if err := db.RestoreSnapshot(snap); err != nil {
			logger.Fatalf("Failed to restore snapshot %s: %v", latest, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var saver *persistence.Saver
	if args.SnapshotInterval > 0 {
		saver = persistence.NewSaver(
			args.DataDir,
			time.Duration(args.SnapshotInterval)*time.Second,
			args.SnapshotKeep,
			args.SnapshotPassphrase,
			db.Snapshot,
			logger,
		)
		go saver.Run(ctx)
	}

	logger.Infof("GhostDB %s started (datadir=%s)", args.Version, args.DataDir)

	// Handle graceful shutdown
	shutdownSignal := make(chan os.Signal, 1)
	signal.Notify(shutdownSignal, syscall.SIGINT, syscall.SIGTERM)
	<-shutdownSignal
	fmt.Println("\nShutting down...")

	cancel()
	if saver != nil {
		if err := saver.SaveNow(); err != nil {
			logger.Errorf("Final snapshot failed: %v", err)
		}
	}
	fmt.Println("Shutdown complete")
}
