package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"s2s-tracker/internal/services"
	"s2s-tracker/pkg/common"
)

type SubmitOfferRequest struct {
	Name             string `json:"name" form:"name"`
	Email            string `json:"email" form:"email"`
	ScreenResolution string `json:"screen_resolution" form:"screen_resolution"`
}

// SubmitOffer records a completed offer form and fires its postback.
func (h *Handler) SubmitOffer(c *gin.Context) {
	offerId, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req SubmitOfferRequest
	if err := c.ShouldBind(&req); err != nil {
		badRequest(c, "Invalid submission")
		return
	}

	result, err := h.Tracking.Submit(c.Request.Context(), services.Submission{
		OfferId:          offerId,
		Name:             req.Name,
		Email:            req.Email,
		IP:               common.ClientIP(c.Request),
		UserAgent:        c.Request.UserAgent(),
		ScreenResolution: req.ScreenResolution,
		Language:         c.GetHeader("Accept-Language"),
		Referrer:         c.Request.Referer(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, common.SuccessResponse{
		Status:  http.StatusCreated,
		Success: true,
		Message: "Conversion recorded",
		Data:    gin.H{"transaction_id": result.TransactionId},
	})
}
