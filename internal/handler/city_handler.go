package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/carpool-lk/server/internal/lib/geocode"
)

// CityHandler serves place suggestions for the ride forms.
type CityHandler struct {
	geocoder     geocode.Geocoder
	defaultLimit int
}

// NewCityHandler creates a new CityHandler. defaultLimit applies when the
// request has no usable limit.
func NewCityHandler(geocoder geocode.Geocoder, defaultLimit int) *CityHandler {
	return &CityHandler{
		geocoder:     geocoder,
		defaultLimit: geocode.ClampSuggestLimit(defaultLimit),
	}
}

// RegisterRoutes registers the city routes on the given router group.
func (h *CityHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/v1/cities", h.SuggestCities)
}

// SuggestCities handles GET /v1/cities?q=&limit=.
func (h *CityHandler) SuggestCities(c *gin.Context) {
	limit := queryInt(c, "limit", h.defaultLimit)

	result, err := h.geocoder.Suggest(c.Request.Context(), c.Query("q"), geocode.ClampSuggestLimit(limit))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, result)
}
