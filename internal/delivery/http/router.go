package http

import (
	"net/http"
	"time"

	sharedMiddleware "ronpa-server/shared/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// RouterConfig - параметры сборки gin.Engine.
type RouterConfig struct {
	AllowedOrigins []string
	Release        bool
}

// NewRouter собирает gin.Engine: CORS, логирование, /health, /metrics, /ws и /api.
func NewRouter(cfg RouterConfig, h *Handler, wsHandler gin.HandlerFunc, logger *zap.Logger) *gin.Engine {
	if cfg.Release {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(sharedMiddleware.ZapLoggingMiddlewareForGin(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", sharedMiddleware.RequestIDHeader},
		ExposeHeaders:    []string{sharedMiddleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	router.Use(cors.New(corsCfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	if wsHandler != nil {
		router.GET("/ws", wsHandler)
	}

	h.RegisterRoutes(router)
	return router
}
