package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fabriko/fabriko/internal/billing"
	billingdomain "github.com/fabriko/fabriko/internal/billing/domain"
	"github.com/fabriko/fabriko/internal/clock"
	"github.com/fabriko/fabriko/internal/company"
	"github.com/fabriko/fabriko/internal/config"
	"github.com/fabriko/fabriko/internal/observability"
	obsmiddleware "github.com/fabriko/fabriko/internal/observability/logger"
	obstracing "github.com/fabriko/fabriko/internal/observability/tracing"
	"github.com/fabriko/fabriko/internal/payment"
	paymentdomain "github.com/fabriko/fabriko/internal/payment/domain"
	"github.com/fabriko/fabriko/internal/plan"
	plandomain "github.com/fabriko/fabriko/internal/plan/domain"
	"github.com/fabriko/fabriko/internal/subscription"
	subscriptiondomain "github.com/fabriko/fabriko/internal/subscription/domain"
	pkgdb "github.com/fabriko/fabriko/pkg/db"
)

var Module = fx.Module("http.server",
	config.Module,
	clock.Module,
	observability.Module,
	pkgdb.Module,
	fx.Provide(registerGin),
	company.Module,
	plan.Module,
	subscription.Module,
	payment.Module,
	billing.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
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

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	planSvc    plandomain.Service
	billingSvc billingdomain.Service
	subSvc     subscriptiondomain.Service
	webhookSvc paymentdomain.WebhookService
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	PlanSvc    plandomain.Service
	BillingSvc billingdomain.Service
	SubSvc     subscriptiondomain.Service
	WebhookSvc paymentdomain.WebhookService
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("server"),
		genID:      p.GenID,
		planSvc:    p.PlanSvc,
		billingSvc: p.BillingSvc,
		subSvc:     p.SubSvc,
		webhookSvc: p.WebhookSvc,
	}

	svc.registerBillingRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerBillingRoutes() {
	api := s.engine.Group("/api/billing")

	// The plan catalog is readable by any authenticated tenant member; the
	// auth layer fronting this service has already vetted the session.
	api.GET("/plans", s.ListPlans)

	admin := api.Group("", TenantContext(), BillingAdminRequired())
	{
		admin.GET("/subscription", s.GetSubscription)
		admin.POST("/checkout", s.Checkout)
		admin.POST("/change-plan", s.ChangePlan)
		admin.POST("/cancel", s.CancelSubscription)
		admin.POST("/reactivate", s.ReactivateSubscription)
	}
}

func (s *Server) registerWebhookRoutes() {
	s.engine.POST("/api/billing/webhooks/provider", s.HandleProviderWebhook)
}
