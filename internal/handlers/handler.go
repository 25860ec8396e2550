package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"s2s-tracker/internal/logger"
	"s2s-tracker/internal/services"
	"s2s-tracker/pkg/common"
)

// Handler serves the tracker's HTTP API.
type Handler struct {
	Tracking     *services.TrackingService
	Offers       *services.OfferService
	Conversions  *services.ConversionService
	Delivery     *services.DeliveryService
	Analytics    *services.AnalyticsService
	Settings     *services.SettingsService
	PostbackLogs *services.PostbackLogService
	PostbackTest *services.PostbackTestService
	Export       *services.ExportService
}

// respondError maps service errors onto status codes. Server-side failures get a
// generic message; the cause is only logged.
func respondError(c *gin.Context, err error) {
	var status int
	message := err.Error()

	switch {
	case errors.Is(err, services.ErrValidation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrQueueUnavailable):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
		message = "Internal server error"
		logger.FromContext(c.Request.Context()).Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.JSON(status, common.NewErrorResponse(message, nil, status))
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, common.NewErrorResponse(message, nil, http.StatusBadRequest))
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, "Invalid "+name)
		return 0, false
	}
	return uint(id), true
}

func intQuery(c *gin.Context, name string, def int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return def
	}
	return v
}

// boundedQuery is intQuery limited to 1..limit; out-of-range values fall back or clamp.
func boundedQuery(c *gin.Context, name string, def, limit int) int {
	v := intQuery(c, name, def)
	if v <= 0 {
		return def
	}
	if v > limit {
		return limit
	}
	return v
}
