package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"personalbank/middleware"
	"personalbank/utils"
)

// Pinger проверка доступности хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewOpsRouter служебный сервер со статусом и метриками
func NewOpsRouter(store Pinger, logger *zap.Logger, limiter *utils.RateLimiter) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.Recovery(logger),
		middleware.Logger(logger),
		middleware.CORSMiddleware(),
		middleware.RateLimit(limiter),
	)

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := store.Ping(ctx); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", func(c *gin.Context) {
		c.JSON(http.StatusOK, utils.GetMetrics().GetMetricsSnapshot())
	})

	return router
}
