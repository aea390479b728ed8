package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lifelog-dev/beacon/internal/config"
	"github.com/lifelog-dev/beacon/internal/engine"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		configFile = flag.String("config", "", "Path to YAML configuration file")
		dataDir    = flag.String("data-dir", "", "Data directory for persisted collections")
		serverAddr = flag.String("addr", "", "HTTP server address")
		logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile, *dataDir, *serverAddr, *logLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	e, err := engine.CreateEngine(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create engine")
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("Caught signal, initiating shutdown")
		cancel()
	}()

	if err := e.Start(ctx); err != nil {
		log.Error().Err(err).Msg("Engine exited with error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown failed")
		os.Exit(1)
	}
}
