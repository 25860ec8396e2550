package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"s2s-tracker/internal/logger"
)

// NewRouter wires every route. A nil gatherer leaves /metrics unregistered.
func NewRouter(h *Handler, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinMiddleware())

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Welcome To S2S Tracker",
		})
	})
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	r.POST("/offers/:id/submit", h.SubmitOffer)

	api := r.Group("/api")
	{
		api.GET("/dashboard", h.Dashboard)
		api.GET("/analytics", h.GetAnalytics)
		api.GET("/export", h.ExportConversions)

		api.GET("/offers", h.ListOffers)
		api.GET("/offers/:id", h.GetOffer)
		api.POST("/offers", h.CreateOffer)
		api.PUT("/offers/:id", h.UpdateOffer)
		api.DELETE("/offers/:id", h.DeleteOffer)

		api.POST("/test-postback", h.TestPostback)
		api.GET("/test-results", h.TestHistory)
		api.DELETE("/test-results", h.ClearTestHistory)
		api.GET("/postback-logs", h.ListPostbackLogs)

		api.GET("/conversions/:txn", h.GetConversion)
		api.POST("/conversions/:txn/resend", h.ResendPostback)

		api.GET("/settings", h.GetSettings)
		api.POST("/settings", h.SaveSettings)
	}

	return r
}
