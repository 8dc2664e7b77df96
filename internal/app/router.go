package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"rideengine/internal/domain"
	"rideengine/internal/handler"
	"rideengine/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler     *handler.RideHandler
	DriverHandler   *handler.DriverHandler
	LocationHandler *handler.LocationHandler
	AdminHandler    *handler.AdminHandler
	UserHandler     *handler.UserHandler
	Identity        middleware.IdentityConfig
	// RedisClient enables idempotent replay of POST requests. May be nil.
	RedisClient *redis.Client
	NewRelicApp *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}
	router.Use(middleware.Metrics())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(middleware.Identity(deps.Identity))
	if deps.RedisClient != nil {
		v1.Use(middleware.Idempotency(deps.RedisClient))
	}

	anyone := middleware.RequireRole()
	riders := middleware.RequireRole(domain.RoleRider, domain.RoleAdmin)
	drivers := middleware.RequireRole(domain.RoleDriver, domain.RoleAdmin)
	driverSelf := middleware.RequireRole(domain.RoleDriver)
	admins := middleware.RequireRole(domain.RoleAdmin)

	v1.GET("/me", anyone, deps.UserHandler.Me)
	v1.POST("/locations", anyone, deps.LocationHandler.UpdateLocation)

	rides := v1.Group("/rides")
	{
		rides.POST("", riders, deps.RideHandler.RequestRide)
		rides.GET("/mine", anyone, deps.RideHandler.ListMine)
		rides.GET("/:id", anyone, deps.RideHandler.GetRide)
		rides.POST("/:id/accept", drivers, deps.RideHandler.Accept)
		rides.POST("/:id/cancel", anyone, deps.RideHandler.Cancel)
		rides.POST("/:id/pick-up", drivers, deps.RideHandler.PickUp)
		rides.POST("/:id/in-transit", drivers, deps.RideHandler.StartTransit)
		rides.POST("/:id/complete", drivers, deps.RideHandler.Complete)
		rides.POST("/:id/rating", riders, deps.RideHandler.Rate)
	}

	driverRoutes := v1.Group("/drivers")
	{
		driverRoutes.GET("/available", riders, deps.DriverHandler.Available)
		driverRoutes.GET("/nearby", riders, deps.DriverHandler.Nearby)
		driverRoutes.GET("/me/requests", driverSelf, deps.DriverHandler.RideRequests)
		driverRoutes.GET("/me/stats", driverSelf, deps.DriverHandler.Stats)
		driverRoutes.POST("/me/online", driverSelf, deps.DriverHandler.GoOnline)
		driverRoutes.POST("/me/offline", driverSelf, deps.DriverHandler.GoOffline)
		driverRoutes.POST("/me/availability", driverSelf, deps.DriverHandler.ToggleAvailability)
		driverRoutes.PUT("/me/vehicle", driverSelf, deps.DriverHandler.UpdateVehicle)
	}

	admin := v1.Group("/admin", admins)
	{
		admin.GET("/drivers", deps.AdminHandler.ListDrivers)
		admin.POST("/drivers/:id/suspend", deps.AdminHandler.SuspendDriver)
		admin.POST("/drivers/:id/reinstate", deps.AdminHandler.ReinstateDriver)
		admin.POST("/drivers/:id/approve", deps.AdminHandler.ApproveDriver)
		admin.POST("/drivers/:id/disapprove", deps.AdminHandler.DisapproveDriver)
		admin.POST("/users/:id/block", deps.AdminHandler.BlockUser)
		admin.POST("/users/:id/unblock", deps.AdminHandler.UnblockUser)
		admin.DELETE("/rides/:id", deps.AdminHandler.PurgeRide)
	}

	return router
}
