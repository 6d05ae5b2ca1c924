package cmd

import (
	"context"
	"fmt"
	"time"

	"sparks/application"
	"sparks/config"
	"sparks/database"
	"sparks/events"
	"sparks/infrastructure"
	"sparks/infrastructure/observability"
	"sparks/repository"
	"sparks/service"

	log "github.com/sirupsen/logrus"
)

// Run initializes the engine and its background sweeper and blocks until
// ctx is cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	log.WithField("environment", cfg.Environment).Info("Starting sparks escrow engine...")

	log.Info("Running database migrations...")
	if err := database.MigrateUp(cfg.GetDatabaseURL()); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	log.Info("Database connection established successfully")

	metrics := observability.NewMetricsProvider(cfg)
	if err := metrics.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	eventBus := events.NewBus()

	var natsClient *infrastructure.NATSClient
	if cfg.NATSEnabled() {
		natsClient = infrastructure.NewNATSClient(cfg.NATSServers)
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := natsClient.Connect(connectCtx)
		cancel()
		if err != nil {
			return err
		}

		mapper := infrastructure.NewEventSubjectMapper()
		if err := natsClient.EnsureStream(infrastructure.StreamName, mapper.GetAllSubjects()); err != nil {
			log.WithError(err).Warn("Failed to ensure event stream, publishes may be dropped")
		}
		infrastructure.NewNATSEventPublisher(natsClient, mapper, metrics).Attach(eventBus)
	} else {
		log.Info("NATS_SERVERS not set, domain events stay in process")
	}

	uowFactory := repository.NewUnitOfWorkFactory(db, eventBus)
	engine := service.NewEscrowService(uowFactory, service.SystemClock{}, nil, metrics)

	sweeper := application.NewExpirationSweeper(engine, cfg.SweepInterval, cfg.SweepBatchSize, nil, metrics)
	stopSweeper := sweeper.Start(ctx)

	log.Info("Sparks escrow engine is running")
	<-ctx.Done()

	log.Info("Shutting down...")
	stopSweeper()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if natsClient != nil {
		if err := natsClient.Close(); err != nil {
			log.WithError(err).Error("Error closing NATS connection")
		}
	}
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Error shutting down metrics provider")
	}

	log.Info("Shutdown completed")
	return nil
}
