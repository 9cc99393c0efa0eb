package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/keepalive/internal/domain/app"
	"github.com/GriffinCanCode/keepalive/internal/infrastructure/config"
	"github.com/GriffinCanCode/keepalive/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/keepalive/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/keepalive/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/keepalive/internal/shared/types"
)

// Engine is the part of the engine the admin server drives
type Engine interface {
	OnProcessCreated(ctx context.Context, info types.ProcessInfo) error
	OnProcessRemoved(ctx context.Context, pid int) error
	OnVisibilityChanged(ev types.VisibilityEvent) bool
	OnScoreProposed(ctx context.Context, pid, uid, score int) types.Verdict
	OnPackageMetadataInvalidated(userID int, pkg string)
	OnDisplayInteractiveChanged(interactive bool)
	Interactive() bool
	Stats() types.Stats
	Snapshot() []app.View
	Application(id types.Identity) (app.View, bool)
	Breaker() *resilience.Breaker
}

// Options configures the admin server
type Options struct {
	Config      config.ServerConfig
	Development bool
	Metrics     *monitoring.Metrics
	Tracer      trace.Tracer
	Logger      *zap.Logger
	Levels      LevelController // Optional; enables /v1/log-level
}

// Server is the admin HTTP server of the daemon
type Server struct {
	router *gin.Engine
	http   *http.Server
	logger *zap.Logger
	addr   string
}

// New creates the admin server over eng
func New(eng Engine, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("server")
	if opts.Tracer == nil {
		opts.Tracer = tracing.Noop()
	}

	if !opts.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(opts.Tracer))
	if opts.Metrics != nil {
		router.Use(monitoring.Middleware(opts.Metrics))
	}
	if opts.Config.RateLimit > 0 {
		logger.Info("Rate limiting enabled",
			zap.Float64("rps", opts.Config.RateLimit),
			zap.Int("burst", opts.Config.Burst),
		)
		router.Use(RateLimit(RateLimitConfig{
			RequestsPerSecond: opts.Config.RateLimit,
			Burst:             opts.Config.Burst,
		}))
	}

	h := NewHandlers(eng, logger)

	router.GET("/health", h.Health)
	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}

	v1 := router.Group("/v1")
	v1.GET("/apps", h.ListApps)
	v1.GET("/apps/:key", h.GetApp)
	v1.GET("/stats", h.Stats)
	if opts.Levels != nil {
		lh := &logLevelHandlers{levels: opts.Levels, logger: logger}
		v1.GET("/log-level", lh.Get)
		v1.PUT("/log-level", lh.Set)
	}

	events := v1.Group("/events")
	events.POST("/process", h.ProcessCreated)
	events.POST("/process-removed", h.ProcessRemoved)
	events.POST("/visibility", h.Visibility)
	events.POST("/score", h.Score)
	events.POST("/package", h.PackageInvalidated)
	events.POST("/display", h.Display)

	addr := net.JoinHostPort(opts.Config.Host, opts.Config.Port)
	return &Server{
		router: router,
		logger: logger,
		addr:   addr,
		http: &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.addr
}

// Run serves until Shutdown is called
func (s *Server) Run() error {
	s.logger.Info("Starting admin server", zap.String("addr", s.addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down admin server")
	return s.http.Shutdown(ctx)
}
