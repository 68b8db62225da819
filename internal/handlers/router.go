package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mossy-p/webrtc-matchmaker/config"
	"github.com/mossy-p/webrtc-matchmaker/internal/matchmaking"
	"github.com/mossy-p/webrtc-matchmaker/internal/metrics"
	"github.com/mossy-p/webrtc-matchmaker/internal/middleware"
)

// NewRouter wires every HTTP route. cluster may be nil when Redis is disabled.
func NewRouter(cfg *config.Config, mm *matchmaking.Matchmaker, m *metrics.Metrics, cluster ClusterSource, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(log))

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(cfg.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/session", CreateSession(cfg.JWTSecret, cfg.TicketTTL, log))
		apiGroup.GET("/stats", Stats(mm, cluster, log))
		apiGroup.GET("/ice-servers", ICEServers(cfg.ICE))
	}

	// WebSocket signaling endpoint
	signaling := NewSignaling(mm, cfg.AllowedOrigins, cfg.SendBuffer, m, log)
	wsGroup := router.Group("/ws")
	{
		wsGroup.GET("/signal", middleware.SessionTicket(cfg.JWTSecret, cfg.RequireTicket), signaling.HandleSignaling)
	}

	return router
}
