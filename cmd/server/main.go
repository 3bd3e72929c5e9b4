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

	"github.com/inkboard/inkboard/internal/adapters/fabric"
	router "github.com/inkboard/inkboard/internal/adapters/http"
	signalws "github.com/inkboard/inkboard/internal/adapters/signal"
	"github.com/inkboard/inkboard/internal/adapters/storage"
	"github.com/inkboard/inkboard/internal/app"
	"github.com/inkboard/inkboard/internal/config"
	"github.com/inkboard/inkboard/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.JWTSecret == "" {
		log.Fatal().Msg("jwt_secret is required")
	}

	var fab core.Fabric
	if cfg.RedisAddr == "" {
		log.Warn().Msg("no redis configured, using in-process fabric (single instance only)")
		fab = fabric.NewMemory()
	} else {
		rf, err := fabric.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer rf.Close()
		fab = rf
	}

	db, err := storage.Open(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open postgres")
	}

	registry := app.NewRegistry()
	presence := app.NewPresence(fab)
	group := app.NewGroup(fab, registry)
	rooms := storage.NewRoomDirectory(db)
	limiter := app.NewJoinRateLimiter(cfg.JoinRateLimit, cfg.JoinRateInterval)
	admission := app.NewAdmission(fab, presence, group, rooms, limiter)

	persister := app.NewPersister(cfg.PersistQueue, cfg.PersistRetries, cfg.PersistBackoff)
	shapes := app.NewShapes(group, storage.NewShapeStore(db), storage.NewChatStore(db), persister)

	go persister.Run(ctx)
	go func() {
		if err := group.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("broadcast group stopped")
			cancel()
		}
	}()

	ctl := &signalws.Controller{
		Admission:  admission,
		Shapes:     shapes,
		Group:      group,
		Presence:   presence,
		Registry:   registry,
		Rooms:      rooms,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
	}

	r := router.SetupRouter(ctx, cfg, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("inkboard coordinator started")
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
