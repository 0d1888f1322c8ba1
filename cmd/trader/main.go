package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vwap-options-bot/internal/broker"
	"vwap-options-bot/internal/config"
	"vwap-options-bot/internal/database"
	"vwap-options-bot/internal/logger"
	"vwap-options-bot/internal/marketdata"
	"vwap-options-bot/internal/metrics"
	"vwap-options-bot/internal/trader"

	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded", zap.String("symbol", cfg.Trading.Symbol))

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Initialize the order gateway client
	gateway := broker.NewRestClient(&cfg.Broker, log.Named("broker"))

	// Initialize the market data source
	cycleInterval := time.Duration(cfg.Trading.CycleInterval) * time.Second
	source, err := marketdata.NewSource(
		cfg.Feed.Provider,
		cfg.Trading.Symbol,
		cfg.Feed.WsURL,
		cfg.Trading.MAWindow,
		cycleInterval,
		log.Named("feed"),
	)
	if err != nil {
		log.Fatal("Failed to build market data source", zap.Error(err))
	}

	// Expose Prometheus metrics
	if cfg.Metrics.Addr != "" {
		metrics.Serve(cfg.Metrics.Addr)
		log.Info("Metrics endpoint started", zap.String("addr", cfg.Metrics.Addr))
	}

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Initialize and run the trading engine
	engine, err := trader.NewEngine(log, &cfg, gateway, source, db)
	if err != nil {
		log.Fatal("Failed to initialize trading engine", zap.Error(err))
	}
	if err := engine.Run(ctx); err != nil {
		log.Error("Trading engine halted", zap.Error(err))
		os.Exit(1)
	}

	log.Info("Bot has been shut down.")
}
