package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/carpool-lk/server/internal/config"
	"github.com/carpool-lk/server/internal/lib/geocode"
	"github.com/carpool-lk/server/internal/services"
)

// NewRouter builds the JSON API engine
func NewRouter(rides *services.RideService, geocoder geocode.Geocoder, cfg config.RidesConfig, geoCfg config.GeocodingConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(RecoveryMiddleware(logger))
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(logger))

	NewRideHandler(rides, cfg).RegisterRoutes(&router.RouterGroup)
	NewCityHandler(geocoder, geoCfg.SuggestLimit).RegisterRoutes(&router.RouterGroup)

	return router
}
