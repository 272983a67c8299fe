package main

import (
	"os"

	"marketlink/internal/devserver"
	"marketlink/pkg/config"
	"marketlink/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	store := devserver.NewStore()
	if cfg.Environment == "development" {
		devserver.Seed(store)
		logger.Info("Seeded demo data (users buyer-1 / supplier-1)")
	}

	server := devserver.New(store)
	logger.Info("Dev backend listening on :%s", cfg.ServerPort)
	if err := server.Start(cfg.ServerPort); err != nil {
		logger.Error("Server stopped: %v", err)
		os.Exit(1)
	}
}
