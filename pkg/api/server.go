// Package api assembles the HTTP surface every service exposes: the
// service-prefixed health and metrics routes plus whatever routes the
// service registers on top.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ravedigest/ravedigest/pkg/health"
	"github.com/ravedigest/ravedigest/pkg/metrics"
)

// Server wraps the gin engine and the http.Server running it.
type Server struct {
	engine  *gin.Engine
	httpSrv *http.Server
	checker *health.Checker
}

// NewServer builds the engine with the standard routes for the checker's
// service name: /<name>/health, /<name>/health/live, /<name>/health/ready
// and /<name>/metrics.
func NewServer(checker *health.Checker, m *metrics.Metrics) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{engine: engine, checker: checker}

	grp := engine.Group("/" + checker.Service())
	grp.GET("/health", s.healthHandler)
	grp.GET("/health/live", s.livenessHandler)
	grp.GET("/health/ready", s.readinessHandler)
	grp.GET("/metrics", gin.WrapH(m.Handler()))

	return s
}

// Engine exposes the router so services can register their own routes.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// requestLogger writes one line per request into the shared slog stream.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP())
	}
}

// Start listens on addr and serves until Shutdown. Blocks; returns
// http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// healthHandler handles GET /<name>/health.
func (s *Server) healthHandler(c *gin.Context) {
	report := s.checker.Run(c.Request.Context())

	httpStatus := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	c.JSON(httpStatus, report)
}

// livenessHandler handles GET /<name>/health/live. It makes no dependency
// calls so an overloaded backend never fails liveness.
func (s *Server) livenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive", "service": s.checker.Service()})
}

// readinessHandler handles GET /<name>/health/ready.
func (s *Server) readinessHandler(c *gin.Context) {
	failing := s.checker.Ready(c.Request.Context())
	if len(failing) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "failing": failing})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
