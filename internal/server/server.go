// Package server exposes the HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/smallbiznis/perkway/internal/config"
	loyaltydomain "github.com/smallbiznis/perkway/internal/loyalty/domain"
	ruledomain "github.com/smallbiznis/perkway/internal/pointsrule/domain"
	subdomain "github.com/smallbiznis/perkway/internal/subscription/domain"
	tierdomain "github.com/smallbiznis/perkway/internal/tier/domain"
)

type Param struct {
	fx.In

	Logger        *zap.Logger
	Config        config.Config
	Settings      *config.LoyaltySettingsHolder
	Loyalty       loyaltydomain.Service
	Tiers         tierdomain.Service
	Rules         ruledomain.Service
	Subscriptions subdomain.Service
}

type Server struct {
	logger        *zap.Logger
	cfg           config.Config
	settings      *config.LoyaltySettingsHolder
	loyalty       loyaltydomain.Service
	tiers         tierdomain.Service
	rules         ruledomain.Service
	subscriptions subdomain.Service
}

func New(p Param) *Server {
	return &Server{
		logger:        p.Logger.Named("http"),
		cfg:           p.Config,
		settings:      p.Settings,
		loyalty:       p.Loyalty,
		tiers:         p.Tiers,
		rules:         p.Rules,
		subscriptions: p.Subscriptions,
	}
}

func (s *Server) Engine() *gin.Engine {
	if s.cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger(), errorHandler())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "version": s.cfg.AppVersion})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	s.registerLoyaltyRoutes(v1)
	s.registerTierRoutes(v1)
	s.registerRuleRoutes(v1)
	s.registerSettingsRoutes(v1)
	s.registerSubscriptionRoutes(v1)
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(started)),
		)
	}
}

func register(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.Engine(),
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.logger.Fatal("http server failed", zap.Error(err))
				}
			}()
			s.logger.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(New),
	fx.Invoke(register),
)
