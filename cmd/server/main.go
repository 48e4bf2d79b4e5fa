package main

import (
	"database/sql"
	"flag"
	"log"
	"net/http"

	_ "github.com/lib/pq"

	httpapi "gpurental-backend/internal/api/http"
	"gpurental-backend/internal/config"
	"gpurental-backend/internal/external"
	"gpurental-backend/internal/lifecycle"
	"gpurental-backend/internal/logger"
	"gpurental-backend/internal/reconcile"
	"gpurental-backend/internal/repository/postgres"
	"gpurental-backend/internal/security"
	"gpurental-backend/internal/service"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting GPU Rental Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress())
	logger.Info("Database configuration", "host", cfg.Database.Host, "port", cfg.Database.Port, "database", cfg.Database.Database, "user", cfg.Database.User)
	logger.Info("Ledger configuration", "base_url", cfg.Ledger.BaseURL, "contract_ref", cfg.Ledger.ContractRef)

	// Initialize Database
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

	// Initialize Repositories
	pgStore := postgres.NewStore(db)

	// Initialize external collaborators
	ledgerClient := external.NewLedgerClient(cfg.Ledger.BaseURL, cfg.Ledger.ContractRef, cfg.LedgerTimeout())
	contentClient := external.NewPinningClient(cfg.Content.APIURL, cfg.Content.GatewayURL, cfg.Content.APIKey, cfg.Content.APISecret, cfg.LedgerTimeout())
	walletClient := external.NewWalletClient(cfg.Wallet.BaseURL, cfg.LedgerTimeout())

	// Initialize reconciliation store and lifecycle machine
	store := reconcile.NewStore(pgStore, contentClient)
	machine := lifecycle.NewMachine(store, pgStore, ledgerClient, walletClient, lifecycle.Config{
		VerifyCooldown:  cfg.VerifyCooldown(),
		ResolveCooldown: cfg.ResolveCooldown(),
		ContractRef:     cfg.Ledger.ContractRef,
	})

	// Initialize Security
	tokenManager := security.NewTokenManager(cfg.JWT.Secret, cfg.SessionExpiry())

	// Initialize Services
	catalogSvc, err := service.NewCatalogService(cfg.Catalog.Path)
	if err != nil {
		logger.Error("Failed to load GPU catalog", "error", err)
		log.Fatalf("Failed to load GPU catalog: %v", err)
	}
	emailSvc := service.NewEmailService(cfg.Email.APIKey, cfg.Email.FromName, cfg.Email.FromEmail, cfg.Email.Enabled)
	rentalSvc := service.NewRentalService(machine, store, catalogSvc, emailSvc)

	// Set up HTTP server
	router := httpapi.NewRouter(httpapi.RouterConfig{
		Rentals:           rentalSvc,
		Catalog:           catalogSvc,
		Wallet:            walletClient,
		Tokens:            tokenManager,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})

	logger.Info("HTTP server listening", "address", cfg.GetServerAddress())
	if err := http.ListenAndServe(cfg.GetServerAddress(), router); err != nil {
		logger.Error("HTTP server error", "error", err)
		log.Fatalf("Failed to serve: %v", err)
	}
}
