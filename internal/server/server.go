package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	authdomain "github.com/smallbiznis/kelas/internal/auth/domain"
	"github.com/smallbiznis/kelas/internal/config"
	"github.com/smallbiznis/kelas/internal/observability"
	obsmiddleware "github.com/smallbiznis/kelas/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/kelas/internal/observability/metrics"
	obstracing "github.com/smallbiznis/kelas/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/kelas/internal/payment/domain"
	portaldomain "github.com/smallbiznis/kelas/internal/portal/domain"
	"github.com/smallbiznis/kelas/internal/ratelimit"
	registrationdomain "github.com/smallbiznis/kelas/internal/registration/domain"
	subscriptiondomain "github.com/smallbiznis/kelas/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

// actionLimiter is satisfied by *ratelimit.BillingActionLimiter.
type actionLimiter interface {
	Enabled() bool
	Allow(ctx context.Context, action, subject string) (*ratelimit.RateLimitResult, error)
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	authsvc       authdomain.Service
	webhookSvc    paymentdomain.Service
	users         subscriptiondomain.Service
	registrations registrationdomain.Service
	portalSvc     portaldomain.Service
	limiter       actionLimiter
	obsMetrics    *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Authsvc       authdomain.Service
	WebhookSvc    paymentdomain.Service
	Users         subscriptiondomain.Service
	Registrations registrationdomain.Service
	PortalSvc     portaldomain.Service
	Limiter       *ratelimit.BillingActionLimiter `optional:"true"`
	ObsMetrics    *obsmetrics.Metrics             `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	var limiter actionLimiter = &ratelimit.BillingActionLimiter{}
	if p.Limiter != nil {
		limiter = p.Limiter
	}

	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		authsvc:       p.Authsvc,
		webhookSvc:    p.WebhookSvc,
		users:         p.Users,
		registrations: p.Registrations,
		portalSvc:     p.PortalSvc,
		limiter:       limiter,
		obsMetrics:    p.ObsMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Payment Webhooks --------
	api.POST("/webhooks/:provider", s.HandlePaymentWebhook)

	// -------- Billing --------
	billing := api.Group("/billing", s.AuthRequired())
	billing.POST("/portal", s.BillingActionRateLimit(actionPortalSession), s.CreatePortalSession)
	billing.POST("/cancel", s.BillingActionRateLimit(actionCancelSubscription), s.CancelSubscription)

	// -------- Registrations --------
	api.GET("/registrations", s.AuthRequired(), s.ListRegistrations)

	// -------- Subscription --------
	api.GET("/subscription", s.AuthRequired(), s.GetSubscription)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
