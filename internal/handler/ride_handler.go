package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carpool-lk/server/internal/config"
	"github.com/carpool-lk/server/internal/lib/geo"
	"github.com/carpool-lk/server/internal/services"
)

const maxPageLimit = 100

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	service *services.RideService
	config  config.RidesConfig
	now     func() time.Time
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(service *services.RideService, cfg config.RidesConfig) *RideHandler {
	return &RideHandler{service: service, config: cfg, now: time.Now}
}

// RegisterRoutes registers all ride routes on the given router group.
func (h *RideHandler) RegisterRoutes(r *gin.RouterGroup) {
	rides := r.Group("/v1/rides")
	{
		rides.GET("", h.ListRides)
		rides.POST("", h.PublishRide)
		rides.GET("/search", h.SearchRides)
		rides.GET("/:id", h.GetRide)
		rides.GET("/:id/route.kml", h.GetRouteKML)
	}
}

type createRideRequest struct {
	From         string                  `json:"from" binding:"max=120"`
	To           string                  `json:"to" binding:"max=120"`
	FromLocation *services.LocationInput `json:"from_location"`
	ToLocation   *services.LocationInput `json:"to_location"`
	DepartureAt  string                  `json:"departure_at"`
	PriceLkr     float64                 `json:"price_lkr" binding:"gte=0"`
	SeatsLeft    *int                    `json:"seats_left" binding:"omitempty,min=1,max=8"`
	DriverName   string                  `json:"driver_name" binding:"max=80"`
	DriverRating *float64                `json:"driver_rating" binding:"omitempty,gte=0,lte=5"`
	Waypoints    []string                `json:"waypoints" binding:"max=8,dive,max=120"`
}

// ListRides handles GET /v1/rides.
func (h *RideHandler) ListRides(c *gin.Context) {
	limit := queryInt(c, "limit", h.config.ListLimit)

	result, err := h.service.ListRides(c.Request.Context(), limit)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, result)
}

// PublishRide handles POST /v1/rides.
func (h *RideHandler) PublishRide(c *gin.Context) {
	var req createRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	// An unparseable departure time means "leaving now"
	departure, err := time.Parse(time.RFC3339, strings.TrimSpace(req.DepartureAt))
	if err != nil {
		departure = h.now()
	}
	seats := 1
	if req.SeatsLeft != nil {
		seats = *req.SeatsLeft
	}

	result, err := h.service.PublishRide(c.Request.Context(), services.PublishRideRequest{
		From:         req.From,
		To:           req.To,
		FromLocation: req.FromLocation,
		ToLocation:   req.ToLocation,
		DepartureAt:  departure,
		PriceLkr:     req.PriceLkr,
		SeatsLeft:    seats,
		DriverName:   req.DriverName,
		DriverRating: req.DriverRating,
		Waypoints:    req.Waypoints,
	})
	if err != nil {
		Error(c, err)
		return
	}
	Created(c, result)
}

// GetRide handles GET /v1/rides/:id.
func (h *RideHandler) GetRide(c *gin.Context) {
	result, err := h.service.GetRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, result)
}

// GetRouteKML handles GET /v1/rides/:id/route.kml.
func (h *RideHandler) GetRouteKML(c *gin.Context) {
	id := c.Param("id")
	// Buffer so lookup errors can still produce a JSON response
	var buf strings.Builder
	if err := h.service.WriteRouteKML(c.Request.Context(), id, &buf); err != nil {
		Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=\"ride-"+id+".kml\"")
	c.Data(http.StatusOK, "application/vnd.google-earth.kml+xml", []byte(buf.String()))
}

// SearchRides handles GET /v1/rides/search.
func (h *RideHandler) SearchRides(c *gin.Context) {
	pickup, ok := queryPoint(c, "pickup")
	if !ok {
		return
	}
	drop, ok := queryPoint(c, "drop")
	if !ok {
		return
	}

	corridorKm := h.config.CorridorKm
	if raw := c.Query("corridor_km"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 || v > 50 {
			BadRequest(c, "corridor_km must be a number between 0 and 50")
			return
		}
		corridorKm = v
	}
	limit := queryInt(c, "limit", h.config.SearchLimit)

	result, err := h.service.FindRoutesInCorridor(c.Request.Context(), pickup, drop, corridorKm, limit)
	if err != nil {
		Error(c, err)
		return
	}
	Success(c, result)
}

func queryPoint(c *gin.Context, prefix string) (geo.Point, bool) {
	lat, latErr := strconv.ParseFloat(c.Query(prefix+"_lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query(prefix+"_lng"), 64)
	if latErr != nil || lngErr != nil {
		BadRequest(c, prefix+"_lat and "+prefix+"_lng are required numbers")
		return geo.Point{}, false
	}
	point, err := geo.NewPoint(lat, lng)
	if err != nil {
		BadRequest(c, prefix+": "+err.Error())
		return geo.Point{}, false
	}
	return point, true
}

// queryInt reads a positive integer parameter, clamped to maxPageLimit
func queryInt(c *gin.Context, name string, fallback int) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 1 {
		return fallback
	}
	if v > maxPageLimit {
		return maxPageLimit
	}
	return v
}
