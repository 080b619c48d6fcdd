package api

import (
	"net/http"
	"time"

	"dca-core/internal/engine"
	"dca-core/internal/events"
	"dca-core/internal/monitor"
	"dca-core/pkg/db"

	"github.com/gin-gonic/gin"
)

// Server wires HTTP endpoints around the bot engine and the event bus.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Engine    engine.Service
	Metrics   *monitor.SystemMetrics
	JWTSecret string
}

func NewServer(bus *events.Bus, database *db.Database, svc engine.Service, metrics *monitor.SystemMetrics, jwtSecret string) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())              // Panic recovery (first)
	r.Use(RequestIDMiddleware())       // Request ID tracking
	r.Use(RequestLogger(metrics))      // Request logging (after ID is set)
	r.Use(RateLimitMiddleware())       // Rate limiting
	r.Use(TimeoutMiddleware(30 * time.Second)) // Request timeout (30s)
	r.Use(CORSMiddleware())            // CORS (last before routes)

	s := &Server{
		Router:    r,
		Bus:       bus,
		DB:        database,
		Engine:    svc,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)

		// Auth endpoints (no auth required)
		auth := api.Group("/auth")
		{
			auth.POST("/register", s.registerUser)
			auth.POST("/login", s.loginUser)
		}

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/state", s.getState)
			protected.GET("/plan/:side", s.getPlan)
			protected.GET("/orders", s.getOrders)
			protected.GET("/orders/open", s.getOpenOrders)
			protected.GET("/fills", s.getFills)
			protected.GET("/balances", s.getBalances)
			protected.GET("/recon/reports", s.getReconReports)

			// Side commands
			protected.POST("/strategy/:side/start", s.startSide)
			protected.POST("/strategy/:side/stop", s.stopSide)
			protected.POST("/strategy/:side/reset", s.resetCycle)
			protected.PUT("/strategy/:side/config", s.updateSideConfig)

			// Sub-strategy commands
			protected.POST("/ai/toggle", s.toggleAI)
			protected.PUT("/ai/config", s.updateAIConfig)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
