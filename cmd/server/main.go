package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/peervoice/peervoice/internal/adapters/http"
	"github.com/peervoice/peervoice/internal/app"
	"github.com/peervoice/peervoice/internal/auth"
	"github.com/peervoice/peervoice/internal/config"
	"github.com/peervoice/peervoice/internal/core"
	"github.com/peervoice/peervoice/internal/geo"
	"github.com/peervoice/peervoice/internal/storage"
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
		log.Error().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	store, err := storage.New(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open history store")
	}
	defer store.Close()

	var geoLookup core.GeoLookup
	if cfg.GeoEndpoint != "" {
		g, err := geo.New(cfg.GeoEndpoint, cfg.GeoCache)
		if err != nil {
			log.Error().Err(err).Msg("geo lookup disabled")
		} else {
			geoLookup = g
		}
	}

	clk := clock.New()
	validator := auth.NewTokenValidator(cfg.Secret, clk)

	registry := app.NewConnectionRegistry(validator, clk)
	notify := &app.Notifier{Registry: registry}
	presence := app.NewPresenceTracker(notify)
	recorder := app.NewSessionHistoryRecorder(store, 5*time.Second)
	rooms := app.NewRoomManager(clk, registry, presence, notify, recorder)
	queue := app.NewMatchmakingQueue(clk)
	calls := app.NewDirectCallDispatcher(clk, cfg.InviteTTL, rooms, presence, notify)
	reconnect := app.NewReconnectCoordinator(clk, cfg.GraceWindow, rooms, notify)

	orch := &app.Orchestrator{
		Registry:  registry,
		Presence:  presence,
		Queue:     queue,
		Rooms:     rooms,
		Calls:     calls,
		Reconnect: reconnect,
		Notify:    notify,
		Geo:       geoLookup,
	}

	r := router.SetupRouter(ctx, cfg, orch, store)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Peervoice server started")
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
	recorder.Drain()
	log.Info().Msg("Server exited gracefully")
}
