package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	corecfg "github.com/aevon-lab/asof/internal/core/config"
	"github.com/aevon-lab/asof/internal/core/storage"
	"github.com/aevon-lab/asof/internal/core/storage/dynamodb"
	"github.com/aevon-lab/asof/internal/core/storage/memory"
	"github.com/aevon-lab/asof/internal/core/storage/postgres"
	"github.com/aevon-lab/asof/internal/engine"
	"github.com/aevon-lab/asof/internal/migrations"
	"github.com/aevon-lab/asof/internal/projection"
	"github.com/aevon-lab/asof/internal/refresh"
	"github.com/aevon-lab/asof/internal/server"
	"github.com/aevon-lab/asof/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "asof.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(*configPath); err != nil {
		slog.Error("asofd stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("Shutdown complete")
}

func run(configPath string) error {
	// 1. Load Configuration
	cfg, err := corecfg.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("Loaded config",
		"database", cfg.Database.Type,
		"snapshot_store", cfg.Snapshots.Store,
		"rules", len(cfg.RuleLoading.Rules),
		"refresh_enabled", cfg.Refresh.Enabled,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Initialize Telemetry
	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	// 3. Initialize Storage
	var (
		events storage.EventSource
		db     *sql.DB
		checks []server.HealthCheck
	)
	switch cfg.Database.Type {
	case "postgres":
		db, err = postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		// 3.1. Run Database Migrations
		if err := migrations.RunMigrations(db, cfg.Database.AutoMigrate); err != nil {
			return fmt.Errorf("run database migrations: %w", err)
		}

		adapter, err := postgres.NewAdapter(db)
		if err != nil {
			return fmt.Errorf("initialize event store: %w", err)
		}
		events = adapter
		checks = append(checks, server.HealthCheck{Name: "database", Checker: adapter})
	case "memory":
		slog.Warn("Using in-memory event store; events are not durable")
		events = memory.NewEventStore()
	}

	store, storeCheck, err := openSnapshotStore(ctx, cfg, db)
	if err != nil {
		return err
	}
	if storeCheck != nil {
		checks = append(checks, server.HealthCheck{Name: "snapshots", Checker: storeCheck})
	}

	// 4. Initialize Projection
	opts := []engine.Option{
		engine.WithPageSize(cfg.Engine.PageSize),
		engine.WithMaxPages(cfg.Engine.MaxPages),
		engine.WithJoinConcurrency(cfg.Engine.JoinConcurrency),
	}
	if cfg.Engine.LaneLocking {
		opts = append(opts, engine.WithLaneLocking(cfg.Engine.LockStripes))
	}
	router := projection.NewRouter(events, store, cfg.RuleLoading.Rules, opts...)
	projectionSvc := projection.NewService(router, store, cfg.Engine.JoinConcurrency)

	// 5. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), cfg.Server.Mode, checks...)
	projectionSvc.RegisterRoutes(srv.Engine)

	// 6. Start Services
	schedulerDone := make(chan struct{})
	if cfg.Refresh.Enabled {
		scheduler, err := newScheduler(cfg, router, store)
		if err != nil {
			return err
		}
		go func() {
			defer close(schedulerDone)
			if err := scheduler.Start(ctx); err != nil {
				slog.Error("Scheduler stopped with error", "error", err)
			}
		}()
	} else {
		close(schedulerDone)
		slog.Info("Checkpoint refresh scheduler disabled by config")
	}

	// Signal handler → triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
		cancel()
	}

	// Let the scheduler finish its final pass before storage is closed.
	<-schedulerDone
	return nil
}

// openSnapshotStore builds the configured snapshot store and, when it can
// report its health, the checker for /health.
func openSnapshotStore(ctx context.Context, cfg *corecfg.Config, db *sql.DB) (storage.SnapshotStore, server.HealthChecker, error) {
	switch cfg.Snapshots.Store {
	case "postgres":
		return postgres.NewSnapshotAdapter(db, cfg.Snapshots.KeepHistory), nil, nil
	case "dynamodb":
		client, err := dynamodb.NewClient(ctx, dynamodb.ClientConfig{
			Region:          cfg.DynamoDB.Region,
			Endpoint:        cfg.DynamoDB.Endpoint,
			AccessKeyID:     cfg.DynamoDB.AccessKeyID,
			SecretAccessKey: cfg.DynamoDB.SecretAccessKey,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("initialize dynamodb client: %w", err)
		}
		store := dynamodb.NewSnapshotStore(client, cfg.DynamoDB.Table, cfg.Snapshots.KeepHistory)
		if cfg.DynamoDB.CreateTable {
			if err := store.EnsureTable(ctx); err != nil {
				return nil, nil, fmt.Errorf("ensure dynamodb table: %w", err)
			}
		}
		return store, store, nil
	default:
		slog.Warn("Using in-memory snapshot store; checkpoints are lost on restart")
		return memory.NewSnapshotStore(cfg.Snapshots.KeepHistory), nil, nil
	}
}

func newScheduler(cfg *corecfg.Config, router *projection.Router, store storage.SnapshotStore) (*refresh.Scheduler, error) {
	interval, err := cfg.Refresh.IntervalDuration()
	if err != nil {
		return nil, fmt.Errorf("invalid refresh interval: %w", err)
	}
	lanes, err := cfg.Refresh.ParsedLanes()
	if err != nil {
		return nil, err
	}

	lister, _ := store.(storage.LaneLister)
	return refresh.NewScheduler(router, lister, refresh.Options{
		Interval:    interval,
		WorkerCount: cfg.Refresh.WorkerCount,
		Lanes:       lanes,
	}), nil
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
