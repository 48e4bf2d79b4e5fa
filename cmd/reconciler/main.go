package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"gpurental-backend/internal/config"
	"gpurental-backend/internal/external"
	"gpurental-backend/internal/jobs"
	"gpurental-backend/internal/logger"
	"gpurental-backend/internal/reconcile"
	"gpurental-backend/internal/repository/postgres"
	"gpurental-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'reconcile-open-rentals', 'republish-canonical', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting GPU Rental Reconciler...", "log_level", cfg.Log.Level)

	// Initialize Database
	logger.Info("Connecting to database...", "host", cfg.Database.Host, "port", cfg.Database.Port)
	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Test database connection
	if err := db.Ping(); err != nil {
		logger.Error("Failed to ping database", "error", err)
		log.Fatalf("Failed to ping database: %v", err)
	}
	logger.Info("Database connection established")

	// Initialize Repositories and reconciliation store
	pgStore := postgres.NewStore(db)
	contentClient := external.NewPinningClient(cfg.Content.APIURL, cfg.Content.GatewayURL, cfg.Content.APIKey, cfg.Content.APISecret, cfg.LedgerTimeout())
	store := reconcile.NewStore(pgStore, contentClient)

	// Initialize Job Runner
	jobRunner := jobs.NewJobRunner(store, pgStore, cfg)

	// Check if running a single job
	if *runOnce != "" {
		logger.Info("Running job once", "job", *runOnce)
		runJobOnce(jobRunner, *runOnce)
		logger.Info("Job execution completed", "job", *runOnce)
		return
	}

	// Initialize Scheduler
	cronScheduler := scheduler.NewScheduler(jobRunner)

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Reconciler scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down reconciler scheduler...")
	cronScheduler.Stop()
	logger.Info("Reconciler scheduler stopped. Goodbye!")
}

// runJobOnce runs a specific job once and exits
func runJobOnce(jobRunner *jobs.JobRunner, jobName string) {
	switch jobName {
	case "reconcile-open-rentals":
		jobRunner.ReconcileOpenRentals()
	case "republish-canonical":
		jobRunner.RepublishCanonical()
	case "all":
		jobRunner.RunAllJobs()
	default:
		logger.Error("Unknown job name", "job", jobName)
		fmt.Printf("Available jobs:\n")
		fmt.Printf("  - reconcile-open-rentals\n")
		fmt.Printf("  - republish-canonical\n")
		fmt.Printf("  - all\n")
		os.Exit(1)
	}
}
