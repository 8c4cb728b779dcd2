package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// registerRoutes sets up all API routes on the gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/stats", h.stats)

	user := api.Group("", requireActor(h.opts.JWTSecret))
	user.GET("/queue", h.pendingQueue)
	user.POST("/reviews/claim", h.claim)
	user.POST("/reviews/:id/heartbeat", h.heartbeat)
	user.POST("/reviews/:id/skip", h.skip)
	user.POST("/reviews/:id/submit", h.submit)
	user.POST("/reviews/:id/rate", h.rate)
	user.POST("/tracks/:id/request-reviews", h.requestReviews)
	user.POST("/tracks/:id/dequeue", h.dequeue)
	user.POST("/tracks/:id/cancel", h.cancel)

	system := api.Group("", requireSystem(h.opts.CronSecret))
	system.POST("/cron/reap", h.reap)
	system.GET("/cron/reap", h.reap)
	system.POST("/webhooks/payment-completed", h.paymentCompleted)
}
