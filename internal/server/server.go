package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	businessdomain "github.com/notazul/notazul/internal/business/domain"
	"github.com/notazul/notazul/internal/config"
	invoicedomain "github.com/notazul/notazul/internal/invoice/domain"
	"github.com/notazul/notazul/internal/nfe/certmanager"
	"github.com/notazul/notazul/internal/nfe/transmitter"
	obsmiddleware "github.com/notazul/notazul/internal/observability/logger"
	obsmetrics "github.com/notazul/notazul/internal/observability/metrics"
	orderdomain "github.com/notazul/notazul/internal/order/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, m *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           cfg.Environment != "production",
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{})))

	return r
}

func registerGin(cfg config.Config, m *obsmetrics.Metrics) *gin.Engine {
	return NewEngine(cfg, m)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
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
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	genID  *snowflake.Node

	orderSvc     orderdomain.Service
	generator    invoicedomain.Generator
	transmitter  *transmitter.Transmitter
	certs        *certmanager.Manager
	businessRepo businessdomain.Repository
	invoiceRepo  invoicedomain.Repository
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	DB    *gorm.DB
	GenID *snowflake.Node

	OrderSvc     orderdomain.Service
	Generator    invoicedomain.Generator
	Transmitter  *transmitter.Transmitter
	Certs        *certmanager.Manager
	BusinessRepo businessdomain.Repository
	InvoiceRepo  invoicedomain.Repository
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		db:     p.DB,
		genID:  p.GenID,

		orderSvc:     p.OrderSvc,
		generator:    p.Generator,
		transmitter:  p.Transmitter,
		certs:        p.Certs,
		businessRepo: p.BusinessRepo,
		invoiceRepo:  p.InvoiceRepo,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Orders --------
	api.GET("/orders/:id", s.GetOrderByID)
	api.POST("/orders/:id/transition", s.TransitionOrder)
	api.POST("/orders/:id/bill", s.BillOrder)
	api.POST("/orders/:id/invoices", s.GenerateInvoice)

	// -------- Invoices --------
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.GET("/invoices/:id/xml", s.GetInvoiceXML)
	api.POST("/invoices/:id/recalculate", s.RecalculateInvoice)
	api.POST("/invoices/:id/transmit", s.TransmitInvoice)
	api.POST("/invoices/:id/query", s.QueryInvoice)
	api.POST("/invoices/:id/cancel", s.CancelInvoice)

	// -------- Businesses --------
	api.GET("/businesses/:id/certificate", s.DiagnoseCertificate)
	api.POST("/businesses/certificates/encrypt-passwords", s.EncryptCertificatePasswords)
}

func parseID(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		return 0, invalidRequestError()
	}
	return id, nil
}
