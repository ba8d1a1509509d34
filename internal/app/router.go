package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"dispatch/internal/handler"
	"dispatch/internal/middleware"
	"dispatch/internal/redis"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler   *handler.RideHandler
	DriverHandler *handler.DriverHandler
	FareHandler   *handler.FareHandler
	GeoHandler    *handler.GeoHandler
	WSHandler     *handler.WSHandler
	Cache         redis.CacheInterface
	NewRelicApp   *newrelic.Application
	Logger        *logrus.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(deps.Logger))

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	if deps.Cache != nil {
		router.Use(middleware.Idempotency(deps.Cache))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Ride routes.
		rides := v1.Group("/rides")
		{
			rides.POST("", deps.RideHandler.CreateRide)
			rides.GET("", deps.RideHandler.ListRides)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.POST("/:id/accept", deps.RideHandler.AcceptRide)
			rides.POST("/:id/enroute", deps.RideHandler.MarkEnRoute)
			rides.POST("/:id/start", deps.RideHandler.StartRide)
			rides.POST("/:id/complete", deps.RideHandler.CompleteRide)
			rides.POST("/:id/cancel", deps.RideHandler.CancelRide)
			rides.POST("/:id/rate", deps.RideHandler.RateRide)
		}

		// Driver routes.
		drivers := v1.Group("/drivers")
		{
			drivers.POST("/:id/location", deps.DriverHandler.UpdateLocation)
			drivers.POST("/:id/availability", deps.DriverHandler.SetAvailability)
		}

		// Fare routes.
		v1.POST("/fares/quote", deps.FareHandler.QuoteFare)

		// Geo routes.
		geo := v1.Group("/geo")
		{
			geo.GET("/geocode", deps.GeoHandler.Geocode)
			geo.GET("/autocomplete", deps.GeoHandler.Autocomplete)
		}

		// Event stream.
		v1.GET("/ws", deps.WSHandler.Connect)
	}

	return router
}
