// Package main contains the entrypoint for the webhookd service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/edgard/webhookd/internal/config"
	"github.com/edgard/webhookd/internal/database"
	"github.com/edgard/webhookd/internal/ingest"
	"github.com/edgard/webhookd/internal/logger"
	"github.com/edgard/webhookd/internal/metrics"
	"github.com/edgard/webhookd/internal/scheduler"
	"github.com/edgard/webhookd/internal/server"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// store, coordinator, scheduler, http server), handles graceful shutdown,
// and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	// Optional .env file for local development.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.Format == "json")
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log, cfg.Database.OpTimeout)

	collector := metrics.NewCollector()
	coordinator := ingest.NewCoordinator(cfg.Webhook.Secret, store, collector, log)

	sched, err := scheduler.NewScheduler()
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Error("Error stopping scheduler", "error", err)
		}
	}()

	if cfg.Maintenance.Enabled {
		err := sched.AddJob("db_maintenance", cfg.Maintenance.Schedule, func() {
			if err := store.RunMaintenance(context.Background()); err != nil {
				log.Error("Scheduled maintenance failed", "error", err)
			}
		})
		if err != nil {
			log.Error("Failed to schedule maintenance job",
				"schedule", cfg.Maintenance.Schedule, "error", err)
			return 1
		}
		log.Info("Scheduled database maintenance", "schedule", cfg.Maintenance.Schedule)
	}

	srv := server.New(cfg, store, coordinator, collector, log)

	log.Info("Starting webhookd...", "addr", cfg.Server.ListenAddr)
	runErr := srv.Run(ctx)

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Service stopped due to error", "error", runErr)
		return 1
	}

	log.Info("Service stopped gracefully.")
	return 0
}
