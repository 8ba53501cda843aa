package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/OldStager01/farm-bi/api/handlers"
	"github.com/OldStager01/farm-bi/api/middleware"
	"github.com/OldStager01/farm-bi/api/websocket"
	"github.com/OldStager01/farm-bi/internal/auth"
	"github.com/OldStager01/farm-bi/internal/metrics"
	"github.com/OldStager01/farm-bi/pkg/config"
	"github.com/OldStager01/farm-bi/pkg/models"
)

// Deps are the services behind the HTTP surface. Events feeds the websocket
// bridge and may be nil.
type Deps struct {
	Auth      *auth.Service
	Closer    handlers.Closer
	Snapshots handlers.SnapshotReader
	Alerts    handlers.AlertService
	Anomalies handlers.AnomalyDetector
	Patterns  handlers.PatternDetector
	Cache     handlers.CacheAdmin
	Health    map[string]handlers.Pinger
	Events    <-chan *models.Event
	Now       func() time.Time
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     config.APIConfig
	prometheus config.PrometheusConfig
	deps       Deps
	wsHub      *websocket.Hub
	wsBridge   *websocket.EventBridge
}

func NewServer(cfg config.APIConfig, wsCfg config.WebSocketConfig, promCfg config.PrometheusConfig, deps Deps) *Server {
	if cfg.JWTSecret == "" || cfg.JWTSecret == "change-me-in-production" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:     gin.New(),
		config:     cfg,
		prometheus: promCfg,
		deps:       deps,
		wsHub:      websocket.NewHub(&wsCfg),
	}

	s.setupMiddleware()
	s.setupRoutes()

	go s.wsHub.Run()

	if deps.Events != nil {
		s.wsBridge = websocket.NewEventBridge(s.wsHub, deps.Events)
		s.wsBridge.Start()
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(middleware.CORS(middleware.DefaultCORSConfig(s.config.CORSOrigins...)))
	s.router.Use(middleware.TraceID())
	s.router.Use(middleware.RequestLogger())
	s.router.Use(middleware.SecurityHeaders())
	s.router.Use(middleware.RequestSizeLimit(s.config.MaxBodyBytes))
}

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.deps.Health)
	periodHandler := handlers.NewPeriodHandler(s.deps.Closer)
	snapshotHandler := handlers.NewSnapshotHandler(s.deps.Snapshots)
	alertHandler := handlers.NewAlertHandler(s.deps.Alerts, s.deps.Now)
	analyticsHandler := handlers.NewAnalyticsHandler(s.deps.Anomalies, s.deps.Patterns, s.deps.Now)
	cacheHandler := handlers.NewCacheHandler(s.deps.Cache)

	// Public routes
	s.router.GET("/health", healthHandler.Health)
	s.router.GET("/health/ready", healthHandler.Ready)
	s.router.GET("/health/live", healthHandler.Live)

	if s.prometheus.Enabled && s.prometheus.Port == 0 {
		path := s.prometheus.Path
		if path == "" {
			path = "/metrics"
		}
		s.router.GET(path, gin.WrapH(metrics.Handler()))
	}

	s.router.GET("/ws", websocket.ServeWebSocket(s.wsHub))

	protected := s.router.Group("/")
	protected.Use(middleware.JWTAuth(s.deps.Auth))
	operator := protected.Group("/")
	operator.Use(middleware.RequireOperator())
	{
		// Periods
		protected.GET("/periods", periodHandler.List)
		protected.GET("/periods/compare", periodHandler.Compare)
		operator.POST("/periods/:year/:month/close", periodHandler.Close)
		operator.POST("/periods/:year/:month/snapshot", periodHandler.Regenerate)

		// Snapshots
		protected.GET("/snapshots", snapshotHandler.Range)
		protected.GET("/snapshots/:year/:month", snapshotHandler.Get)

		// Alerts
		protected.GET("/alerts", alertHandler.Active)
		operator.POST("/alerts/evaluate", alertHandler.Evaluate)

		// Analytics
		protected.GET("/analytics/anomalies", analyticsHandler.Anomalies)
		protected.GET("/analytics/patterns", analyticsHandler.Patterns)

		// Cache
		protected.GET("/cache/stats", cacheHandler.Stats)
		operator.DELETE("/cache", cacheHandler.Invalidate)
		operator.POST("/cache/sweep", cacheHandler.Sweep)
	}
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.wsBridge != nil {
		s.wsBridge.Stop()
	}
	s.wsHub.Stop()

	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) WebSocketHub() *websocket.Hub {
	return s.wsHub
}
