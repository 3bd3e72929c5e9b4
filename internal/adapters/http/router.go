package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/inkboard/inkboard/internal/adapters/signal"
	"github.com/inkboard/inkboard/internal/auth"
	"github.com/inkboard/inkboard/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, ctl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.Status(200)
	})

	r.GET("/ws", auth.Middleware(cfg.JWTSecret), func(c *gin.Context) {
		ctl.HandleWS(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
