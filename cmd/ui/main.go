package main

import (
	"fmt"
	"net/http"
	"os"

	"vwap-options-bot/internal/config"
	"vwap-options-bot/internal/database"
	"vwap-options-bot/internal/logger"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Create a handler that has access to the logger and db
	apiHandler := NewAPIHandler(log, db)

	// Read-only reporting endpoints for downstream consumers
	r := mux.NewRouter()
	r.HandleFunc("/api/positions", apiHandler.PositionsHandler).Methods("GET")
	r.HandleFunc("/api/trades", apiHandler.TradesHandler).Methods("GET")
	r.HandleFunc("/api/signals", apiHandler.SignalsHandler).Methods("GET")
	r.HandleFunc("/api/pnl/{date}", apiHandler.DailyPnLHandler).Methods("GET")
	r.HandleFunc("/api/status", apiHandler.StatusHandler).Methods("GET")
	r.HandleFunc("/health", apiHandler.HealthHandler).Methods("GET")

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting reporting server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatal("Reporting server failed", zap.Error(err))
	}
}
