package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/deskglyph/internal/daemon"
	"github.com/GriffinCanCode/deskglyph/internal/desktop"
	"github.com/GriffinCanCode/deskglyph/internal/host"
	"github.com/GriffinCanCode/deskglyph/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/deskglyph/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/deskglyph/internal/protocol"
)

// Inspector exposes live session state.
type Inspector interface {
	Sessions() []host.Info
	Breakers() []resilience.Snapshot
}

// Desktop reports the icons currently on the desktop and routes input
// events to them. *daemon.Daemon implements it.
type Desktop interface {
	Icons() []desktop.Icon
	Dispatch(ctx context.Context, path string, ev protocol.Event) (protocol.EventResult, error)
}

// EventRequest is the body of POST /events.
type EventRequest struct {
	Path  string         `json:"path" binding:"required"`
	Event protocol.Event `json:"event"`
}

// Config contains server configuration
type Config struct {
	Addr        string
	Development bool
	Version     string
}

// Server is the diagnostics and event input endpoint.
type Server struct {
	router   *gin.Engine
	http     *http.Server
	sessions Inspector
	desktop  Desktop
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	config   Config
	started  time.Time
}

// New builds the router. gatherer backs /metrics; desk may be nil.
func New(cfg Config, sessions Inspector, desk Desktop, gatherer prometheus.Gatherer, metrics *monitoring.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))

	s := &Server{
		router:   router,
		sessions: sessions,
		desktop:  desk,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
		started:  time.Now(),
	}

	router.GET("/healthz", s.health)
	router.GET("/sessions", s.listSessions)
	router.GET("/icons", s.listIcons)
	router.POST("/events", s.dispatchEvent)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(c *gin.Context) {
	sessions := s.sessions.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"version":  s.config.Version,
		"uptime":   time.Since(s.started).Seconds(),
		"sessions": len(sessions),
		"metrics":  s.metrics.Snapshot(),
	})
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions": s.sessions.Sessions(),
		"breakers": s.sessions.Breakers(),
	})
}

func (s *Server) listIcons(c *gin.Context) {
	if s.desktop == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no desktop attached"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"icons": s.desktop.Icons()})
}

func (s *Server) dispatchEvent(c *gin.Context) {
	if s.desktop == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no desktop attached"})
		return
	}

	var req EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := req.Event.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.desktop.Dispatch(c.Request.Context(), req.Path, req.Event)
	switch {
	case errors.Is(err, daemon.ErrUnknownIcon):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		s.logger.Warn("Event dispatch failed",
			zap.String("icon", req.Path),
			zap.String("kind", string(req.Event.Kind)),
			zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("Starting diagnostics server", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.http.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.logger.Info("Shutting down diagnostics server...")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
