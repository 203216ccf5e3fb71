package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pageza/platecoach/backend/config"
	"github.com/pageza/platecoach/backend/internal/api"
	"github.com/pageza/platecoach/backend/internal/database"
	"github.com/pageza/platecoach/backend/internal/logger"
	"github.com/pageza/platecoach/backend/internal/metrics"
	"github.com/pageza/platecoach/backend/internal/middleware"
	"github.com/pageza/platecoach/backend/internal/service"
)

// Deps are the collaborators the HTTP surface is built from.
type Deps struct {
	DB    *gorm.DB
	Plans service.IPlanService
	Auth  middleware.TokenValidator

	// SubmitLimit throttles plan submissions. Nil disables throttling.
	SubmitLimit gin.HandlerFunc
}

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	http   *http.Server
	db     *gorm.DB
	log    *zap.Logger
}

// New builds the router and HTTP server for cfg.
func New(cfg *config.Config, deps Deps, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Environment.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		logger.RequestLogger(),
		middleware.Recovery(),
		metrics.NewHTTPMetrics("platecoach-api").Middleware(),
		middleware.CORS(cfg.CORSOrigins),
	)

	s := &Server{
		router: router,
		db:     deps.DB,
		log:    log.Named("server"),
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.ServerHost, cfg.ServerPort),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
		},
	}

	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	api.NewPlanHandler(deps.Plans).RegisterRoutes(v1, middleware.AuthMiddleware(deps.Auth), deps.SubmitLimit)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := database.HealthCheck(ctx, s.db); err != nil {
		s.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": "unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "ok"})
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("starting server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
