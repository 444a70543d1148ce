package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/docuflow/billing/internal/audit"
	auditdomain "github.com/docuflow/billing/internal/audit/domain"
	"github.com/docuflow/billing/internal/config"
	"github.com/docuflow/billing/internal/events"
	"github.com/docuflow/billing/internal/idempotency"
	"github.com/docuflow/billing/internal/ledger"
	ledgerdomain "github.com/docuflow/billing/internal/ledger/domain"
	obslogger "github.com/docuflow/billing/internal/observability/logger"
	obsmetrics "github.com/docuflow/billing/internal/observability/metrics"
	obstracing "github.com/docuflow/billing/internal/observability/tracing"
	"github.com/docuflow/billing/internal/payment"
	paymentdomain "github.com/docuflow/billing/internal/payment/domain"
	paymentservice "github.com/docuflow/billing/internal/payment/service"
	"github.com/docuflow/billing/internal/plan"
	plandomain "github.com/docuflow/billing/internal/plan/domain"
	"github.com/docuflow/billing/internal/providers/email"
	"github.com/docuflow/billing/internal/subscription"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	audit.Module,
	events.Module,
	email.Module,
	idempotency.Module,
	ledger.Module,
	plan.Module,
	subscription.Module,
	payment.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(httpMetrics.Registry(), promhttp.HandlerOpts{})))

	return r
}

func registerGin(log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(log, httpMetrics)
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
	log        *zap.Logger
	webhookSvc paymentdomain.WebhookService
	paymentSvc *paymentservice.Service
	ledger     ledgerdomain.Service
	plans      plandomain.Service
	audit      auditdomain.Service
	dispatcher *events.Dispatcher
}

type ServerParams struct {
	fx.In

	Engine     *gin.Engine
	Cfg        config.Config
	Log        *zap.Logger
	WebhookSvc paymentdomain.WebhookService
	PaymentSvc *paymentservice.Service
	Ledger     ledgerdomain.Service
	Plans      plandomain.Service
	Audit      auditdomain.Service
	Dispatcher *events.Dispatcher `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:     p.Engine,
		cfg:        p.Cfg,
		log:        p.Log.Named("http.server"),
		webhookSvc: p.WebhookSvc,
		paymentSvc: p.PaymentSvc,
		ledger:     p.Ledger,
		plans:      p.Plans,
		audit:      p.Audit,
		dispatcher: p.Dispatcher,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.engine.POST("/webhooks/:gateway", s.HandlePaymentWebhook)

	v1 := s.engine.Group("/v1")
	{
		v1.GET("/plans", s.HandleListPlans)

		users := v1.Group("/users/:user_id")
		{
			users.GET("/credits", s.HandleGetCredits)
			users.GET("/credits/transactions", s.HandleListTransactions)
			users.POST("/credits/consume", s.HandleConsumeCredit)
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/audit-events", s.HandleListAuditEvents)
			admin.GET("/payments/:gateway/:payment_id", s.HandleGetPaymentRecord)
			admin.GET("/users/:user_id/ledger/reconcile", s.HandleReconcileLedger)
		}
	}
}
