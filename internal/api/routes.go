// Package api wires the HTTP handlers onto a gin engine.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"convoy/internal/api/handlers"
	"convoy/internal/api/middleware"
	"convoy/internal/metrics"
)

type Router struct {
	locationHandler *handlers.LocationHandler
	nearbyHandler   *handlers.NearbyHandler
	sosHandler      *handlers.SOSHandler
	rideHandler     *handlers.RideHandler
}

func NewRouter(
	locationHandler *handlers.LocationHandler,
	nearbyHandler *handlers.NearbyHandler,
	sosHandler *handlers.SOSHandler,
	rideHandler *handlers.RideHandler,
) *Router {
	return &Router{
		locationHandler: locationHandler,
		nearbyHandler:   nearbyHandler,
		sosHandler:      sosHandler,
		rideHandler:     rideHandler,
	}
}

func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Metrics())

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Protected routes
	api := engine.Group("/")
	api.Use(middleware.MockAuth())
	{
		api.PATCH("/location/update", r.locationHandler.UpdateLocation)
		api.PATCH("/location/sharing", r.locationHandler.SetSharing)

		api.GET("/nearby/:feed", r.nearbyHandler.List)
		api.GET("/ws/nearby/:feed", r.nearbyHandler.Stream)

		api.POST("/sos", r.sosHandler.Trigger)
		api.GET("/sos/active", r.sosHandler.Active)
		api.GET("/sos/:id", r.sosHandler.Get)
		api.PATCH("/sos/:id/resolve", r.sosHandler.Resolve)

		api.POST("/rides", r.rideHandler.CreateRide)
		api.GET("/rides/:id", r.rideHandler.GetRide)
	}

	// Debug endpoints (no auth for testing)
	debug := engine.Group("/debug")
	{
		debug.GET("/location/:id", r.locationHandler.GetLocation)
		debug.GET("/positions", r.locationHandler.SearchPositions)
	}
}
