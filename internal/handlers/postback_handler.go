package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"s2s-tracker/internal/services"
	"s2s-tracker/pkg/common"
)

func (h *Handler) TestPostback(c *gin.Context) {
	var req services.PostbackTestInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	report, err := h.PostbackTest.Run(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(report, "Postback test completed"))
}

func (h *Handler) TestHistory(c *gin.Context) {
	ctx := c.Request.Context()
	rows, err := h.PostbackTest.History(ctx, intQuery(c, "limit", 20))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{
		"results":      rows,
		"success_rate": h.PostbackTest.RecentSuccessRate(ctx),
	}, "Test results fetched successfully"))
}

func (h *Handler) ClearTestHistory(c *gin.Context) {
	deleted, err := h.PostbackTest.ClearHistory(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{"deleted": deleted}, "Test results cleared"))
}

func (h *Handler) ListPostbackLogs(c *gin.Context) {
	result, err := h.PostbackLogs.ListLogs(c.Request.Context(), services.PostbackLogFilter{
		TransactionId: c.Query("transaction_id"),
		Status:        c.Query("status"),
		Page:          intQuery(c, "page", 1),
		Limit:         intQuery(c, "limit", 50),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetConversion(c *gin.Context) {
	conversion, err := h.Conversions.Get(c.Request.Context(), c.Param("txn"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(conversion, "Conversion fetched successfully"))
}

// ResendPostback queues another delivery attempt for a recorded conversion.
func (h *Handler) ResendPostback(c *gin.Context) {
	txn := c.Param("txn")
	if err := h.Delivery.RequestRedelivery(c.Request.Context(), txn); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, common.SuccessResponse{
		Status:  http.StatusAccepted,
		Success: true,
		Message: "Postback redelivery queued",
		Data:    gin.H{"transaction_id": txn},
	})
}
