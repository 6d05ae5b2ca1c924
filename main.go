package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sparks/cmd"
	"sparks/config"
	"sparks/database"

	log "github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Configuration error")
	}
	cfg.ConfigureLogging()

	// Check for migration subcommands
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := handleMigrationCommand(cfg); err != nil {
			log.WithError(err).Fatal("Migration error")
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("Application error")
	}
}

func handleMigrationCommand(cfg *config.Config) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: sparks migrate [up|down|status] [args...]")
	}

	databaseURL := cfg.GetDatabaseURL()
	command := os.Args[2]
	switch command {
	case "up":
		return database.MigrateUp(databaseURL)
	case "down":
		steps := "1"
		if len(os.Args) > 3 {
			steps = os.Args[3]
		}
		return database.MigrateDown(databaseURL, steps)
	case "status":
		return database.MigrateStatus(databaseURL)
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}
