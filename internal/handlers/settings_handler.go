package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"s2s-tracker/pkg/common"
)

func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.Settings.All(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(settings, "Settings fetched successfully"))
}

// SaveSettings upserts every key in the body. Nothing is written if any pair is invalid.
func (h *Handler) SaveSettings(c *gin.Context) {
	var req map[string]string
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Settings must be a JSON object of strings")
		return
	}
	if err := h.Settings.SetMany(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}

	settings, err := h.Settings.All(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(settings, "Settings saved successfully"))
}
