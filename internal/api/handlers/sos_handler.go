package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"convoy/internal/api/middleware"
	"convoy/internal/domain/entities"
	"convoy/internal/services"
)

type SOSHandler struct {
	sos *services.SOSService
}

func NewSOSHandler(sos *services.SOSService) *SOSHandler {
	return &SOSHandler{sos: sos}
}

type triggerSOSRequest struct {
	pointRequest
	Username   string `json:"username"`
	BloodGroup string `json:"blood_group"`
}

// Trigger handles POST /sos
func (h *SOSHandler) Trigger(c *gin.Context) {
	var req triggerSOSRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sos, err := h.sos.Trigger(c.Request.Context(), middleware.GetUserID(c), req.point(), entities.SOSProfile{
		Username:   req.Username,
		BloodGroup: req.BloodGroup,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sos)
}

// Resolve handles PATCH /sos/:id/resolve
func (h *SOSHandler) Resolve(c *gin.Context) {
	sos, err := h.sos.Resolve(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sos)
}

// Get handles GET /sos/:id
func (h *SOSHandler) Get(c *gin.Context) {
	sos, err := h.sos.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sos)
}

// Active handles GET /sos/active, the caller's own open alert.
func (h *SOSHandler) Active(c *gin.Context) {
	sos, err := h.sos.Active(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sos)
}
