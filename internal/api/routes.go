// Package api wires the HTTP surface described for the core: two
// API-key-authenticated endpoints for client-initiated receipt sync and
// subscriber lookup/erasure, and five unauthenticated-but-signature-verified
// notification endpoints, one per billing provider.
package api

import (
	"paycat.dev/gateway/internal/config"
	"paycat.dev/gateway/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers every inbound route this core exposes.
func SetupRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"status": "ok"}) })

	if config.AppConfig != nil && config.AppConfig.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := r.Group("/v1")

	authed := v1.Group("")
	authed.Use(middleware.AppAuthMiddleware())
	authed.POST("/receipts", handleReceipt)
	authed.GET("/subscribers/:app_user_id", handleGetSubscriber)
	authed.DELETE("/subscribers/:app_user_id", handleDeleteSubscriber)

	notifications := v1.Group("/notifications")
	notifications.POST("/apple", handleAppleNotification)
	notifications.POST("/google", handleGoogleNotification)
	notifications.POST("/stripe", handleStripeNotification)
	notifications.POST("/paddle", handlePaddleNotification)
	notifications.POST("/amazon", handleAmazonNotification)
}
