package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"s2s-tracker/internal/services"
	"s2s-tracker/pkg/common"
)

func (h *Handler) ListOffers(c *gin.Context) {
	offers, err := h.Offers.List(c.Request.Context(), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(offers, "Offers fetched successfully"))
}

func (h *Handler) GetOffer(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	offer, err := h.Offers.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(offer, "Offer fetched successfully"))
}

func (h *Handler) CreateOffer(c *gin.Context) {
	var req services.OfferInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	offer, err := h.Offers.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, common.SuccessResponse{
		Status:  http.StatusCreated,
		Success: true,
		Message: "Offer created successfully",
		Data:    offer,
	})
}

func (h *Handler) UpdateOffer(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req services.OfferInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	offer, err := h.Offers.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(offer, "Offer updated successfully"))
}

// DeleteOffer deactivates the offer; conversions keep referencing it.
func (h *Handler) DeleteOffer(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Offers.Deactivate(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(nil, "Offer deactivated successfully"))
}
