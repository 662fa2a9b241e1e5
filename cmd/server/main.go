// VitalStream server generates synthetic patient vitals, streams them to
// websocket subscribers, and answers historical trend queries over a bounded
// reading history.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/1broseidon/vitalstream/internal/api"
	"github.com/1broseidon/vitalstream/internal/config"
	"github.com/1broseidon/vitalstream/internal/logging"
	"github.com/1broseidon/vitalstream/internal/store"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config.yml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Initialize logger
	logger, err := logging.InitLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		Fields: cfg.Logging.Fields,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Create Prometheus registry
	registry := prometheus.NewRegistry()

	// Create the history store for the configured backend
	historyStore, err := store.New(&cfg.Storage, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize history store")
	}

	logger.WithFields(map[string]interface{}{
		"backend":    cfg.Storage.Backend,
		"maxRecords": cfg.Storage.MaxRecords,
		"maxBytes":   cfg.Storage.MaxBytes,
	}).Info("History store ready")

	server := api.NewServer(cfg, logger, registry, historyStore)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	logger.Info("VitalStream started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down VitalStream...")

	// Stop the server first; it closes all live sessions before shutting down
	if err := server.Stop(); err != nil {
		logger.WithError(err).Error("Failed to shutdown server gracefully")
	}

	// Close the history store last so in-flight appends can finish
	if err := historyStore.Close(); err != nil {
		logger.WithError(err).Error("Failed to close history store gracefully")
	}

	logger.Info("VitalStream stopped")
}
