package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/cableledger/internal/audit"
	auditdomain "github.com/smallbiznis/cableledger/internal/audit/domain"
	"github.com/smallbiznis/cableledger/internal/authorization"
	"github.com/smallbiznis/cableledger/internal/bill"
	billdomain "github.com/smallbiznis/cableledger/internal/bill/domain"
	"github.com/smallbiznis/cableledger/internal/config"
	"github.com/smallbiznis/cableledger/internal/observability"
	obslogger "github.com/smallbiznis/cableledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/cableledger/internal/observability/metrics"
	obstracing "github.com/smallbiznis/cableledger/internal/observability/tracing"
	"github.com/smallbiznis/cableledger/internal/payment"
	paymentdomain "github.com/smallbiznis/cableledger/internal/payment/domain"
	"github.com/smallbiznis/cableledger/internal/ratelimit"
	"github.com/smallbiznis/cableledger/internal/receipt"
	"github.com/smallbiznis/cableledger/internal/subscriber"
	subscriberdomain "github.com/smallbiznis/cableledger/internal/subscriber/domain"
	"github.com/smallbiznis/cableledger/internal/tenant"
	tenantdomain "github.com/smallbiznis/cableledger/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	tenant.Module,
	subscriber.Module,
	bill.Module,
	receipt.Module,
	payment.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(classifyErrorForLog))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
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
	engine         *gin.Engine
	cfg            config.Config
	log            *zap.Logger
	tenantSvc      tenantdomain.Service
	subscriberSvc  subscriberdomain.Service
	billSvc        billdomain.Service
	paymentSvc     paymentdomain.Service
	auditSvc       auditdomain.Service
	authzSvc       authorization.Service
	paymentLimiter *ratelimit.PaymentLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	Log            *zap.Logger
	TenantSvc      tenantdomain.Service
	SubscriberSvc  subscriberdomain.Service
	BillSvc        billdomain.Service
	PaymentSvc     paymentdomain.Service
	AuditSvc       auditdomain.Service
	AuthzSvc       authorization.Service
	PaymentLimiter *ratelimit.PaymentLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		log:            p.Log.Named("http.server"),
		tenantSvc:      p.TenantSvc,
		subscriberSvc:  p.SubscriberSvc,
		billSvc:        p.BillSvc,
		paymentSvc:     p.PaymentSvc,
		auditSvc:       p.AuditSvc,
		authzSvc:       p.AuthzSvc,
		paymentLimiter: p.PaymentLimiter,
	}

	svc.registerAuthRoutes()
	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAuthRoutes() {
	auth := s.engine.Group("/v1/auth")
	auth.POST("/token", s.IssueToken)
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/v1")
	api.Use(s.AuthRequired())

	// -------- Tenants --------
	api.POST("/tenants", s.authorize(authorization.ActionTenantCreate), s.CreateTenant)

	// -------- Subscribers --------
	api.GET("/subscribers", s.authorize(authorization.ActionSubscriberView), s.ListSubscribers)
	api.POST("/subscribers", s.authorize(authorization.ActionSubscriberCreate), s.CreateSubscriber)
	api.GET("/subscribers/:id", s.authorize(authorization.ActionSubscriberView), s.GetSubscriberByID)
	api.PATCH("/subscribers/:id", s.authorize(authorization.ActionSubscriberUpdate), s.UpdateSubscriber)
	api.DELETE("/subscribers/:id", s.authorize(authorization.ActionSubscriberDelete), s.DeleteSubscriber)
	api.POST("/subscribers/:id/deactivate", s.authorize(authorization.ActionSubscriberDeactivate), s.DeactivateSubscriber)
	api.POST("/subscribers/:id/activate", s.authorize(authorization.ActionSubscriberActivate), s.ActivateSubscriber)
	api.GET("/subscribers/:id/bills", s.authorize(authorization.ActionBillView), s.ListSubscriberBills)

	// -------- Bills --------
	api.POST("/bills/generate", s.authorize(authorization.ActionBillGenerate), s.GenerateBills)
	api.GET("/bills/:id", s.authorize(authorization.ActionBillView), s.GetBillByID)

	// -------- Payments --------
	api.GET("/payments", s.authorize(authorization.ActionPaymentView), s.ListPayments)
	api.POST("/payments", s.authorize(authorization.ActionPaymentRecord), s.PaymentRateLimit(), s.RecordPayment)
	api.GET("/payments/:id", s.authorize(authorization.ActionPaymentView), s.GetPaymentByID)
	api.GET("/payments/:id/receipt", s.authorize(authorization.ActionPaymentView), s.GetPaymentReceipt)
	api.PATCH("/payments/:id/delivery", s.authorize(authorization.ActionPaymentDelivery), s.UpdatePaymentDelivery)

	// -------- Audit --------
	api.GET("/audit-logs", s.authorize(authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
