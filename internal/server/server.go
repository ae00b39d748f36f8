package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/repartia/treasury/internal/audit/domain"
	"github.com/repartia/treasury/internal/config"
	directorydomain "github.com/repartia/treasury/internal/directory/domain"
	expensedomain "github.com/repartia/treasury/internal/expense/domain"
	historydomain "github.com/repartia/treasury/internal/history/domain"
	invoicedomain "github.com/repartia/treasury/internal/invoice/domain"
	paymentdomain "github.com/repartia/treasury/internal/payment/domain"
	ratingdomain "github.com/repartia/treasury/internal/rating/domain"
	taxvaultdomain "github.com/repartia/treasury/internal/taxvault/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(registry *prometheus.Registry) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return r
}

func registerGin(registry *prometheus.Registry) *gin.Engine {
	return NewEngine(registry)
}

func run(lc fx.Lifecycle, shutdowner fx.Shutdowner, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					// Stop through fx so OnStop hooks still run.
					log.Error("http server stopped", zap.Error(err))
					if err := shutdowner.Shutdown(); err != nil {
						log.Error("shutdown request failed", zap.Error(err))
					}
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
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	directorySvc directorydomain.Service
	invoiceSvc   invoicedomain.Service
	paymentSvc   paymentdomain.Service
	taxVaultSvc  taxvaultdomain.Service
	expenseSvc   expensedomain.Service
	ratingSvc    ratingdomain.Service
	historySvc   historydomain.Service
	auditSvc     auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	GenID *snowflake.Node

	DirectorySvc directorydomain.Service
	InvoiceSvc   invoicedomain.Service
	PaymentSvc   paymentdomain.Service
	TaxVaultSvc  taxvaultdomain.Service
	ExpenseSvc   expensedomain.Service
	RatingSvc    ratingdomain.Service
	HistorySvc   historydomain.Service
	AuditSvc     auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		db:     p.DB,
		genID:  p.GenID,

		directorySvc: p.DirectorySvc,
		invoiceSvc:   p.InvoiceSvc,
		paymentSvc:   p.PaymentSvc,
		taxVaultSvc:  p.TaxVaultSvc,
		expenseSvc:   p.ExpenseSvc,
		ratingSvc:    p.RatingSvc,
		historySvc:   p.HistorySvc,
		auditSvc:     p.AuditSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Directory --------
	api.POST("/issuers", s.CreateIssuer)
	api.GET("/issuers/:ref", s.GetIssuer)
	api.POST("/customers", s.CreateCustomer)
	api.GET("/customers/:id", s.GetCustomer)

	// -------- Invoices --------
	api.POST("/invoices", s.CreateDraftInvoice)
	api.GET("/invoices", s.ListInvoices)
	api.GET("/invoices/:id", s.GetInvoice)
	api.PUT("/invoices/:id", s.UpdateDraftInvoice)
	api.DELETE("/invoices/:id", s.DeleteDraftInvoice)
	api.POST("/invoices/:id/issue", s.IssueInvoice)
	api.POST("/invoices/:id/rectify", s.RectifyInvoice)
	api.GET("/invoices/:id/reconciliation", s.ReconcileInvoice)

	// -------- Payments --------
	api.POST("/invoices/:id/payments", s.AddPayment)
	api.GET("/invoices/:id/payments", s.ListPayments)
	api.GET("/issuers/:ref/debt", s.GetDebtDashboard)

	// -------- Customer projections --------
	api.GET("/customers/:id/invoices", s.ListCustomerInvoices)
	api.GET("/customers/:id/stats", s.GetCustomerStats)

	// -------- Tax vault --------
	api.GET("/issuers/:ref/vault/:period", s.GetVaultEntry)
	api.POST("/issuers/:ref/vault/:period/close", s.ExecuteMonthlyClose)
	api.POST("/issuers/:ref/vault/:period/recalculate", s.RecalculateMonth)
	api.POST("/issuers/:ref/vault/:period/unlock-request", s.RequestUnlock)

	// -------- Expenses --------
	api.POST("/expenses", s.CreateExpense)
	api.GET("/issuers/:ref/expenses", s.ListExpenses)

	// -------- Rating --------
	api.POST("/rating/logistics", s.CalculateLogistics)
	api.POST("/rating/mixed", s.CalculateMixedBilling)
	api.GET("/rating/ranges", s.ListRatingRanges)
	api.POST("/rating/ranges", s.CreateRatingRange)
	api.PUT("/rating/ranges/:id", s.UpdateRatingRange)
	api.DELETE("/rating/ranges/:id", s.DeleteRatingRange)

	// -------- Delivery history --------
	api.POST("/deliveries", s.AddDeliveryRecord)

	// -------- Audit --------
	api.GET("/issuers/:ref/audit-logs", s.ListAuditLogs)
}

// actorFrom identifies the caller for provenance fields. Authentication is
// handled upstream; the gateway forwards the identity in a header.
func actorFrom(c *gin.Context) string {
	actor := strings.TrimSpace(c.GetHeader("X-Actor"))
	if actor == "" {
		return "system"
	}
	return actor
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, invoicedomain.NewValidationError("id", "invalid identifier")
	}
	return id, nil
}
