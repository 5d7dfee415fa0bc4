package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"convoy/internal/domain/entities"
	"convoy/internal/logger"
	"convoy/internal/services"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entities.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, entities.ErrSOSNotFound), errors.Is(err, entities.ErrRideNotFound):
		return http.StatusNotFound
	case errors.Is(err, entities.ErrNotSOSOwner):
		return http.StatusForbidden
	case errors.Is(err, entities.ErrActiveSOSExists):
		return http.StatusConflict
	case errors.Is(err, services.ErrWriteFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.L().Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "status", status, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// pointRequest is the body shape shared by every endpoint that takes a
// position. Pointers let 0 be a legal coordinate while still rejecting a
// missing field.
type pointRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

func (p pointRequest) point() entities.GeoPoint {
	return entities.NewGeoPoint(*p.Lat, *p.Lng)
}

// centerQuery is ?lat=..&lng=.. on read endpoints.
type centerQuery struct {
	Lat *float64 `form:"lat" binding:"required"`
	Lng *float64 `form:"lng" binding:"required"`
}

func bindCenter(c *gin.Context) (entities.GeoPoint, bool) {
	var q centerQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "lat and lng query parameters are required"})
		return entities.GeoPoint{}, false
	}
	center := entities.NewGeoPoint(*q.Lat, *q.Lng)
	if err := center.Validate(); err != nil {
		respondError(c, err)
		return entities.GeoPoint{}, false
	}
	return center, true
}
