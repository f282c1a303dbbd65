// Package server exposes the HTTP surface: the webhook endpoint plus health
// and metrics probes.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/buildacademy/paycore/internal/config"
	"github.com/buildacademy/paycore/internal/ratelimit"
	webhookservice "github.com/buildacademy/paycore/internal/webhook/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	log        *zap.Logger
	webhookSvc *webhookservice.Service
	limiter    *ratelimit.TokenBucket
}

type Params struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	WebhookSvc *webhookservice.Service
	Limiter    *ratelimit.TokenBucket `optional:"true"`
}

func NewServer(p Params) *Server {
	return &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		log:        p.Log.Named("server"),
		webhookSvc: p.WebhookSvc,
		limiter:    p.Limiter,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func registerRoutes(s *Server) {
	s.RegisterRoutes()
}

func (s *Server) RegisterRoutes() {
	api := s.engine.Group("/api")

	// Providers probe webhook endpoints with GET and OPTIONS before and
	// during delivery; both must answer success or the provider disables
	// the subscription.
	webhooks := api.Group("/payments/webhooks")
	webhooks.POST("/paypal", s.WebhookRateLimit(), s.HandlePayPalWebhook)
	webhooks.GET("/paypal", s.AcknowledgeProbe)
	webhooks.OPTIONS("/paypal", s.AcknowledgeProbe)
}

func run(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.HTTPAddr,
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.log.Info("http server listening", zap.String("addr", s.cfg.HTTPAddr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					s.log.Fatal("http server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}
