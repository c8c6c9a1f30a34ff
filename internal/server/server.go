package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	auditdomain "github.com/rangefront/armory/internal/audit/domain"
	checkoutdomain "github.com/rangefront/armory/internal/checkout/domain"
	compliancedomain "github.com/rangefront/armory/internal/compliance/domain"
	"github.com/rangefront/armory/internal/config"
	ffldomain "github.com/rangefront/armory/internal/ffl/domain"
	holdsdomain "github.com/rangefront/armory/internal/holds/domain"
	"github.com/rangefront/armory/internal/observability/logger"
	obsmetrics "github.com/rangefront/armory/internal/observability/metrics"
	obstracing "github.com/rangefront/armory/internal/observability/tracing"
	orderdomain "github.com/rangefront/armory/internal/order/domain"
	snapshotdomain "github.com/rangefront/armory/internal/snapshot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(log))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(cfg, log, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine        *gin.Engine
	cfg           config.Config
	db            *gorm.DB
	log           *zap.Logger
	genID         *snowflake.Node
	checkoutSvc   checkoutdomain.Service
	snapshotSvc   snapshotdomain.Service
	holdsSvc      holdsdomain.Service
	complianceSvc compliancedomain.Service
	orderRepo     orderdomain.Repository
	fflRepo       ffldomain.Repository
	auditSvc      auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	DB            *gorm.DB
	Log           *zap.Logger
	GenID         *snowflake.Node
	CheckoutSvc   checkoutdomain.Service
	SnapshotSvc   snapshotdomain.Service
	HoldsSvc      holdsdomain.Service
	ComplianceSvc compliancedomain.Service
	OrderRepo     orderdomain.Repository
	FFLRepo       ffldomain.Repository
	AuditSvc      auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		db:            p.DB,
		log:           p.Log.Named("server"),
		genID:         p.GenID,
		checkoutSvc:   p.CheckoutSvc,
		snapshotSvc:   p.SnapshotSvc,
		holdsSvc:      p.HoldsSvc,
		complianceSvc: p.ComplianceSvc,
		orderRepo:     p.OrderRepo,
		fflRepo:       p.FFLRepo,
		auditSvc:      p.AuditSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Checkout --------
	api.POST("/checkout", s.Checkout)

	// -------- Orders --------
	api.GET("/orders", s.ListOrders)
	api.GET("/orders/:id", s.GetOrderByID)
	api.POST("/orders/:id/snapshot", s.WriteOrderSnapshot)
	api.GET("/orders/:id/summary", s.GetOrderSummary)

	// -------- Hold resolution --------
	api.POST("/orders/:id/attach-ffl", s.AttachFFL)
	api.POST("/orders/:id/override-hold", s.OverrideHold)

	// -------- Compliance --------
	api.GET("/compliance/config", s.GetComplianceConfig)
	api.PUT("/compliance/config", s.UpdateComplianceConfig)

	// -------- FFL records --------
	api.POST("/ffl-records", s.CreateFFLRecord)
}
