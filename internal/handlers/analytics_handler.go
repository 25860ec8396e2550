package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"s2s-tracker/internal/services"
	"s2s-tracker/pkg/common"
)

const (
	maxWidgetRows    = 100
	maxAnalyticsDays = 365
)

// Dashboard returns the landing widgets. A failing widget renders empty.
func (h *Handler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()
	a := h.Analytics

	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{
		"stats":             a.DashboardStats(ctx).Data,
		"recent_activity":   a.RecentActivity(ctx, boundedQuery(c, "recent", 10, maxWidgetRows)).Data,
		"top_offers":        a.TopOffers(ctx, boundedQuery(c, "top", 5, maxWidgetRows)).Data,
		"conversion_trends": a.ConversionTrends(ctx, boundedQuery(c, "days", 7, maxAnalyticsDays)).Data,
		"real_time":         a.RealTimeStats(ctx).Data,
		"postback_stats":    a.PostbackStats(ctx).Data,
	}, "Dashboard fetched successfully"))
}

func (h *Handler) GetAnalytics(c *gin.Context) {
	var filter services.AnalyticsFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, "Invalid filters")
		return
	}

	ctx := c.Request.Context()
	a := h.Analytics

	detailed := a.DetailedAnalytics(ctx, filter)
	if errors.Is(detailed.Err, services.ErrValidation) {
		respondError(c, detailed.Err)
		return
	}

	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{
		"performance":         a.PerformanceMetrics(ctx, boundedQuery(c, "days", 30, maxAnalyticsDays)).Data,
		"geographic":          a.GeographicData(ctx).Data,
		"devices":             a.DeviceAnalytics(ctx).Data,
		"os":                  a.OSAnalytics(ctx).Data,
		"browsers":            a.BrowserAnalytics(ctx).Data,
		"networks":            a.NetworkAnalytics(ctx).Data,
		"traffic_sources":     a.TrafficSources(ctx).Data,
		"hourly_distribution": a.HourlyDistribution(ctx).Data,
		"conversion_funnel":   a.ConversionFunnel(ctx).Data,
		"cohorts":             a.CohortAnalysis(ctx).Data,
		"detailed":            detailed.Data,
	}, "Analytics fetched successfully"))
}

func (h *Handler) ExportConversions(c *gin.Context) {
	var filter services.AnalyticsFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		badRequest(c, "Invalid filters")
		return
	}

	format, err := services.NormalizeExportFormat(c.Query("format"))
	if err != nil {
		respondError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := h.Export.Export(c.Request.Context(), format, filter, &buf); err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+services.ExportFilename(format, time.Now())+`"`)
	c.Data(http.StatusOK, services.ExportContentType(format), buf.Bytes())
}
