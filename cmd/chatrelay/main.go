package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"chatrelay/internal/app"
	"chatrelay/internal/config"
	"chatrelay/internal/logging"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	envFile := flag.String("env-file", "", "optional .env file to load before reading the environment")
	flag.Parse()

	if *showVersion {
		fmt.Printf("chatrelay %s\n", version)
		return
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
			os.Exit(1)
		}
	} else {
		// Best-effort load of a local .env; absence is normal.
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)
	log.Info().Str("version", version).Msg("chatrelay starting")

	application, err := app.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialization failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}

	<-ctx.Done()
	log.Info().Msg("signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
		os.Exit(1)
	}
}
