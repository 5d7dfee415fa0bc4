package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"convoy/internal/api/middleware"
	"convoy/internal/services"
)

type RideHandler struct {
	rides *services.RideService
}

func NewRideHandler(rides *services.RideService) *RideHandler {
	return &RideHandler{rides: rides}
}

// CreateRide handles POST /rides. The caller becomes the ride leader.
func (h *RideHandler) CreateRide(c *gin.Context) {
	var req services.CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ride, err := h.rides.CreateRide(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ride)
}

// GetRide handles GET /rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.rides.GetRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ride)
}
