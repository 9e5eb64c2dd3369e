package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	bookingdomain "github.com/mentorlane/mentorlane/internal/booking/domain"
	"github.com/mentorlane/mentorlane/internal/clock"
	"github.com/mentorlane/mentorlane/internal/config"
	"github.com/mentorlane/mentorlane/internal/identity"
	obsmiddleware "github.com/mentorlane/mentorlane/internal/observability/logger"
	obsmetrics "github.com/mentorlane/mentorlane/internal/observability/metrics"
	paymentdomain "github.com/mentorlane/mentorlane/internal/payment/domain"
	"github.com/mentorlane/mentorlane/internal/ratelimit"
	"github.com/mentorlane/mentorlane/internal/scheduler"
	slotdomain "github.com/mentorlane/mentorlane/internal/slot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger, registry *prometheus.Registry, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		Debug:           cfg.Environment != "production",
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	return r
}

func registerGin(cfg config.Config, log *zap.Logger, registry *prometheus.Registry, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(cfg, log, registry, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server failed", zap.Error(err))
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
	clock      clock.Clock
	verifier   *identity.Verifier
	bookingSvc bookingdomain.Service
	slotRepo   slotdomain.Repository
	paymentSvc paymentdomain.Service
	sweeper    *scheduler.Sweeper
	limiter    *ratelimit.BookingCreateLimiter
}

type ServerParams struct {
	fx.In

	Gin        *gin.Engine
	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Verifier   *identity.Verifier
	BookingSvc bookingdomain.Service
	SlotRepo   slotdomain.Repository
	PaymentSvc paymentdomain.Service
	Sweeper    *scheduler.Sweeper
	Limiter    *ratelimit.BookingCreateLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:     p.Gin,
		cfg:        p.Cfg,
		db:         p.DB,
		log:        p.Log.Named("server"),
		clock:      p.Clock,
		verifier:   p.Verifier,
		bookingSvc: p.BookingSvc,
		slotRepo:   p.SlotRepo,
		paymentSvc: p.PaymentSvc,
		sweeper:    p.Sweeper,
		limiter:    p.Limiter,
	}

	svc.registerAPIRoutes()
	svc.registerCronRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Bookings --------
	api.POST("/bookings", s.AuthRequired(), s.BookingCreateRateLimit(), s.CreateBooking)
	api.GET("/bookings", s.AuthRequired(), s.ListBookings)
	api.GET("/bookings/:id", s.AuthRequired(), s.GetBooking)
	api.POST("/bookings/:id/approve", s.AuthRequired(), s.ApproveBooking)
	api.POST("/bookings/:id/decline", s.AuthRequired(), s.DeclineBooking)
	api.POST("/bookings/:id/cancel", s.AuthRequired(), s.CancelBooking)
	api.POST("/bookings/:id/complete", s.AuthRequired(), s.CompleteBooking)
	api.GET("/bookings/:id/cancellation-policy", s.AuthRequired(), s.GetCancellationPolicy)

	// -------- Offerings --------
	api.GET("/offerings/:id/slots", s.ListOfferingSlots)

	// -------- Payment Webhooks --------
	api.POST("/payments/webhooks/stripe", s.HandleStripeWebhook)
}

func (s *Server) registerCronRoutes() {
	cron := s.engine.Group("/cron", s.CronAuthRequired())

	cron.POST("/cleanup-bookings", s.CleanupBookings)
}
