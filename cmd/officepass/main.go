package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/officepass/officepass/internal/config"
	"github.com/officepass/officepass/internal/database"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Str("service", "officepass").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.Primary.LogLevel); err == nil && cfg.Primary.LogLevel != "" {
		log = log.Level(level)
	}

	factory := database.NewFactory(log)
	svc := database.NewService(factory, cfg.AdapterConfig(), cfg.ServiceOptions(), log)
	timeouts := database.NewTimeoutManager(cfg.TimeoutOptions(), log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("database initialization failed")
	}
	log.Info().Interface("status", svc.Status()).Msg("database ready")

	<-ctx.Done()
	log.Info().Msg("shutting down")

	timeouts.CancelAllActiveOperations()
	if err := svc.Disconnect(context.Background()); err != nil {
		log.Error().Err(err).Msg("error during disconnect")
	}
}
