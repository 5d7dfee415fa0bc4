package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"convoy/internal/api/middleware"
	"convoy/internal/metrics"
	"convoy/internal/repository"
	"convoy/internal/services"
)

type LocationHandler struct {
	publisher *services.ProximityPublisher
	gate      *services.MovementGate
	positions repository.PositionReader
	// searcher is nil when the position backend cannot answer radius queries.
	searcher repository.PositionSearcher
	now      func() time.Time
}

func NewLocationHandler(
	publisher *services.ProximityPublisher,
	gate *services.MovementGate,
	positions repository.PositionReader,
	searcher repository.PositionSearcher,
) *LocationHandler {
	return &LocationHandler{
		publisher: publisher,
		gate:      gate,
		positions: positions,
		searcher:  searcher,
		now:       time.Now,
	}
}

// UpdateLocation handles PATCH /location/update. Fixes the movement gate
// holds back are answered with 202 and not written.
func (h *LocationHandler) UpdateLocation(c *gin.Context) {
	var req pointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	uid := middleware.GetUserID(c)
	point := req.point()
	if err := point.Validate(); err != nil {
		respondError(c, err)
		return
	}

	if !h.gate.Allow(uid, point, h.now()) {
		metrics.PositionSkippedTotal.Inc()
		c.JSON(http.StatusAccepted, gin.H{"status": "skipped", "sharing": h.gate.Sharing(uid)})
		return
	}

	update, err := h.publisher.Publish(c.Request.Context(), uid, point)
	if err != nil {
		// Let the next fix through instead of waiting out the interval.
		h.gate.Forget(uid)
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, update)
}

type sharingRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetSharing handles PATCH /location/sharing.
func (h *LocationHandler) SetSharing(c *gin.Context) {
	var req sharingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	uid := middleware.GetUserID(c)
	h.gate.SetSharing(uid, *req.Enabled)
	c.JSON(http.StatusOK, gin.H{"sharing": h.gate.Sharing(uid)})
}

// GetLocation handles GET /debug/location/:id
func (h *LocationHandler) GetLocation(c *gin.Context) {
	id := c.Param("id")

	position, err := h.positions.GetPosition(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if position == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "location not found"})
		return
	}

	c.JSON(http.StatusOK, position)
}

type searchQuery struct {
	RadiusKm float64 `form:"radius_km,default=5"`
	Limit    int     `form:"limit,default=50"`
}

// SearchPositions handles GET /debug/positions?lat=&lng=&radius_km=&limit=
func (h *LocationHandler) SearchPositions(c *gin.Context) {
	if h.searcher == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "position backend does not support search"})
		return
	}
	center, ok := bindCenter(c)
	if !ok {
		return
	}
	var q searchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hits, err := h.searcher.SearchPositions(c.Request.Context(), center, q.RadiusKm, q.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if hits == nil {
		hits = []repository.PositionHit{}
	}
	c.JSON(http.StatusOK, gin.H{"center": center, "radius_km": q.RadiusKm, "results": hits})
}
