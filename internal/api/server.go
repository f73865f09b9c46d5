package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"solana-pulse-backend/config"
	"solana-pulse-backend/internal/cache"
	"solana-pulse-backend/internal/hub"
	"solana-pulse-backend/internal/logging"
	"solana-pulse-backend/internal/upstream"
)

// HealthChecker is the database ping used by /health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StreamStatus reports the live ingest state for /health
type StreamStatus interface {
	State() upstream.StreamState
	TrackedCount() int
}

// Server hosts the HTTP read surface and the WebSocket endpoint
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	svc        *Service
	hub        *hub.Hub
	health     HealthChecker
	kv         cache.KV
	stream     StreamStatus
	cfg        *config.ServerConfig
	log        *logging.Logger
}

// NewServer builds the gin router and routes
func NewServer(cfg *config.ServerConfig, svc *Service, fanout *hub.Hub, health HealthChecker, kv cache.KV, stream StreamStatus) *Server {
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router: gin.New(),
		svc:    svc,
		hub:    fanout,
		health: health,
		kv:     kv,
		stream: stream,
		cfg:    cfg,
		log:    logging.WithComponent("server"),
	}

	s.router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if cfg.AllowedOrigins == "" || cfg.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = splitOrigins(cfg.AllowedOrigins)
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	s.router.Use(cors.New(corsConfig))

	s.setupRoutes()
	return s
}

func splitOrigins(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api")
	{
		api.GET("/tokens", s.handleListTokens)
		api.GET("/tokens/:address", s.handleGetToken)
		api.GET("/tokens/:address/ohlcv", s.handleDashboardOHLCV)
		api.GET("/tokens/:address/trades", s.handleGetTrades)
		api.GET("/tokens/:address/holders", s.handleGetHolders)
		api.GET("/tokens/:address/stats", s.handleGetStats)

		api.GET("/pulse", s.handlePulseList)
		api.GET("/pulse/:address/ohlcv", s.handlePulseOHLCV)

		api.GET("/trending", s.handleTrending)
		api.GET("/supply", s.handleSupply)
	}
}

// handleHealth reports component health. The process is "degraded" rather
// than down when redis or the push stream is unhealthy; only a failed
// database ping returns 503.
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	dbStatus := "ok"
	if err := s.health.HealthCheck(ctx); err != nil {
		dbStatus = "down"
		status = http.StatusServiceUnavailable
	}

	cacheStatus := "ok"
	if s.kv != nil && !s.kv.IsHealthy() {
		cacheStatus = "degraded"
	}

	out := gin.H{
		"status":      "ok",
		"database":    dbStatus,
		"cache":       cacheStatus,
		"subscribers": s.hub.SubscriberCount(),
	}
	if s.stream != nil {
		out["stream"] = s.stream.State().String()
		out["tracked_tokens"] = s.stream.TrackedCount()
	}
	if status != http.StatusOK {
		out["status"] = "down"
	}
	c.JSON(status, out)
}

// Start runs the HTTP server until it fails or Shutdown is called
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeout) * time.Second,
	}
	s.log.Info("http server listening", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the fan-out hub
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.hub.Close()
	return err
}
