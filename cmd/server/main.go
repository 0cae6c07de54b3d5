package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/lunir/lunir/internal/adapters/http"
	"github.com/lunir/lunir/internal/auth"
	"github.com/lunir/lunir/internal/config"
	"github.com/lunir/lunir/internal/core"
	"github.com/lunir/lunir/internal/store"
	"github.com/lunir/lunir/internal/store/memory"
	"github.com/lunir/lunir/internal/store/postgres"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	var stores store.Stores
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pg.Close()
		stores = pg.Stores()
		log.Info().Msg("using postgres store")
	} else {
		stores = memory.New().Stores()
		log.Warn().Msg("no database_url configured, using in-memory store")
	}

	verifier := auth.NewTokenManager(cfg.Secret, cfg.TokenTTL)

	registry := core.NewRegistry()
	index := core.NewSubscriptionIndex()
	broadcaster := core.NewBroadcaster(registry, index)
	lifecycle := core.NewLifecycle(registry, index, broadcaster)

	r := router.SetupRouter(ctx, cfg, verifier, lifecycle, stores)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Lunir server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
