package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/AuroraGateway/internal/api/http"
	"github.com/GriffinCanCode/AuroraGateway/internal/api/middleware"
	"github.com/GriffinCanCode/AuroraGateway/internal/api/ws"
	"github.com/GriffinCanCode/AuroraGateway/internal/app"
	"github.com/GriffinCanCode/AuroraGateway/internal/domain/session"
	"github.com/GriffinCanCode/AuroraGateway/internal/domain/settings"
	"github.com/GriffinCanCode/AuroraGateway/internal/domain/tabs"
	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/config"
	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AuroraGateway/internal/infrastructure/tracing"
)

// blobSweepInterval is how often expired stylesheets are dropped
const blobSweepInterval = time.Minute

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	stack   *app.Stack
	tabs    *tabs.Manager
	session *session.Session
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger := logging.FromConfig(cfg.Logging.Level, cfg.Logging.Development, cfg.Logging.File)

	logger.Info("Initializing Aurora Gateway",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("default_relay", cfg.Gateway.DefaultRelay),
		zap.String("relay_catalog", cfg.Gateway.RelayCatalog),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()

	stack, err := app.Build(cfg.Gateway, cfg.Storage, logger.Logger, metrics)
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway: %w", err)
	}
	logger.Info("Relay catalog loaded",
		zap.Int("relays", len(stack.Catalog.List())),
		zap.String("primary", stack.Catalog.PrimaryID()),
	)

	store, err := settings.Open(cfg.Storage.SettingsPath, logger.Named("settings"))
	if err != nil {
		// a broken settings file should not keep the gateway down
		logger.Warn("Failed to open settings store, using memory", zap.Error(err))
		store = settings.NewMemoryStore()
	}

	tabMgr := tabs.NewManager(stack.Pipeline,
		tabs.WithLogger(logger.Named("tabs")),
		tabs.WithMetrics(metrics),
	)
	sess := session.New(tabMgr, stack.Catalog, store, stack.Prober,
		session.WithSearchTemplate(cfg.Gateway.SearchTemplate),
		session.WithLogger(logger.Named("session")),
	)

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	var tracer *tracing.Tracer
	if cfg.Server.TraceRequests {
		tracer = tracing.New("aurora-gateway", logger.Named("trace"))
		router.Use(tracing.HTTPMiddleware(tracer))
	}
	router.Use(middleware.CORS(middleware.DefaultCORSConfig().WithOrigins(cfg.Server.CORSOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(sess, stack.Blobs, metrics, logger.Named("http"))
	wsHandler := ws.NewHandler(sess, logger.Named("ws"), metrics)
	metricsAggregator := apihttp.NewMetricsAggregator(metrics, tabMgr, stack.Client)

	// Register routes
	apihttp.RegisterRoutes(router, handlers)

	// WebSocket
	router.GET("/stream", wsHandler.HandleConnection)

	// Metrics endpoints
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/metrics/json", metricsAggregator.GetAggregatedMetrics)
	router.GET("/metrics/dashboard", metricsAggregator.GetMetricsDashboard)

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		stack:   stack,
		tabs:    tabMgr,
		session: sess,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		tracer:  tracer,
	}, nil
}

// Router exposes the gin engine
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Session exposes the gateway session
func (s *Server) Session() *session.Session {
	return s.session
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests
// and tab loads
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go s.stack.Blobs.Run(sweepCtx, blobSweepInterval)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return s.Close(shutdownCtx)
}

// Close cancels tab loads and flushes the logger
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if err := s.tabs.Shutdown(ctx); err != nil {
		s.logger.Error("Tab loads did not finish", zap.Error(err))
		return fmt.Errorf("failed to stop tabs: %w", err)
	}

	if s.tracer != nil {
		s.tracer.Close()
	}

	// Sync logger before exit
	_ = s.logger.Sync()
	return nil
}
