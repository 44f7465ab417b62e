package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/config"
	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/server"
)

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override environment
	flag.StringVar(&cfg.Server.Port, "port", cfg.Server.Port, "Server port")
	flag.StringVar(&cfg.Server.Host, "host", cfg.Server.Host, "Server host")
	flag.StringVar(&cfg.Gateway.DefaultRelay, "relay", cfg.Gateway.DefaultRelay, "Default relay id")
	flag.StringVar(&cfg.Gateway.RelayCatalog, "relays", cfg.Gateway.RelayCatalog, "Relay catalog file (yaml, toml or json)")
	flag.StringVar(&cfg.Storage.SettingsPath, "settings", cfg.Storage.SettingsPath, "Settings store file")
	flag.BoolVar(&cfg.Logging.Development, "dev", cfg.Logging.Development, "Development logging")
	flag.Parse()

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
