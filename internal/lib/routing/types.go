package routing

import (
	"context"
	"math"

	"github.com/carpool-lk/server/internal/lib/geo"
)

// filterSlack covers the gap between the fixed km-per-degree factors used for
// buffers and the haversine metric used by the precise test
const filterSlack = 1.01

// RoadRouter turns ordered waypoints into a dense driving polyline
type RoadRouter interface {
	Route(ctx context.Context, waypoints []geo.Point) ([]geo.Point, error)
}

// BuiltRoute is the output of Builder.Build
type BuiltRoute struct {
	Points []geo.Point
	// Degraded is set when the straight-line fallback was used instead of a road route
	Degraded bool
}

// CorridorQuery describes a pickup/drop pair and how far off-route each may be
type CorridorQuery struct {
	Pickup     geo.Point
	Drop       geo.Point
	CorridorKm float64
}

// Buffers converts the corridor width to degree buffers at the query's mean latitude
func (q CorridorQuery) Buffers() (latBuffer, lngBuffer float64) {
	refLat := (q.Pickup.Latitude + q.Drop.Latitude) / 2
	return geo.CorridorBuffers(q.CorridorKm, refLat)
}

// Filter returns the bounding-box prefilter for this query. A route can only match if
// its bounds, grown by the corridor buffers, cover both the pickup and the drop.
//
// The buffers are widened slightly and the longitude buffer is taken at the most
// poleward latitude the match could involve, so the coarse phase never rejects a
// route the precise test would accept.
func (q CorridorQuery) Filter() geo.CoverFilter {
	box := geo.Bounds([]geo.Point{q.Pickup, q.Drop})
	corridorKm := q.CorridorKm * filterSlack

	latBuffer, _ := geo.CorridorBuffers(corridorKm, 0)
	poleward := math.Min(90, math.Max(math.Abs(box.MinLat), math.Abs(box.MaxLat))+latBuffer)
	_, lngBuffer := geo.CorridorBuffers(corridorKm, poleward)

	return geo.CoverFilter{
		MinLatAtMost:  box.MinLat + latBuffer,
		MaxLatAtLeast: box.MaxLat - latBuffer,
		MinLngAtMost:  box.MinLng + lngBuffer,
		MaxLngAtLeast: box.MaxLng - lngBuffer,
	}
}

// CorridorMatch is the precise-phase result for one route
type CorridorMatch struct {
	PickupDistanceKm float64 `json:"pickup_distance_km"`
	DropDistanceKm   float64 `json:"drop_distance_km"`
	PickupAlongKm    float64 `json:"-"`
	DropAlongKm      float64 `json:"-"`
}

// Rounded returns the match with distances rounded for display
func (m CorridorMatch) Rounded() CorridorMatch {
	m.PickupDistanceKm = Round(m.PickupDistanceKm, 2)
	m.DropDistanceKm = Round(m.DropDistanceKm, 2)
	return m
}

// MatchResult pairs a matched ride with its corridor distances
type MatchResult struct {
	RideID string
	Match  CorridorMatch
}

// RouteLoader supplies decoded route points for a candidate ride
type RouteLoader interface {
	LoadRoute(ctx context.Context, rideID string) ([]geo.Point, error)
}

// Round rounds v to the given number of decimal places
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
