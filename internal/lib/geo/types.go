package geo

import "math"

// Point represents a geographic coordinate in degrees
type Point struct {
	Latitude  float64 `json:"lat" bson:"lat"`
	Longitude float64 `json:"lng" bson:"lng"`
}

// BoundingBox is the axis-aligned lat/lng envelope of a polyline.
// The zero value means "no usable bounds", not a box at the origin.
type BoundingBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// IsZero reports whether the box is the degenerate {0,0,0,0} value
func (b BoundingBox) IsZero() bool {
	return b == BoundingBox{}
}

// Covers reports whether p lies inside the box, edges included
func (b BoundingBox) Covers(p Point) bool {
	return p.Latitude >= b.MinLat && p.Latitude <= b.MaxLat &&
		p.Longitude >= b.MinLng && p.Longitude <= b.MaxLng
}

// Expand grows the box by the given degree buffers on every side
func (b BoundingBox) Expand(latBuffer, lngBuffer float64) BoundingBox {
	return BoundingBox{
		MinLat: b.MinLat - latBuffer,
		MaxLat: b.MaxLat + latBuffer,
		MinLng: b.MinLng - lngBuffer,
		MaxLng: b.MaxLng + lngBuffer,
	}
}

// SegmentProjection is the result of projecting a point onto a segment
type SegmentProjection struct {
	Projected  Point
	DistanceKm float64
	// T is the fractional position along the segment, clamped to [0,1]
	T float64
}

// PolylineProjection is the result of projecting a point onto a polyline.
// ClosestDistanceKm is +Inf when the polyline has fewer than 2 points.
type PolylineProjection struct {
	ClosestDistanceKm float64
	AlongDistanceKm   float64
}

// Matchable reports whether the projection found a real segment
func (p PolylineProjection) Matchable() bool {
	return !math.IsInf(p.ClosestDistanceKm, 1)
}

// CoverFilter selects bounding boxes whose corridor-expanded extent covers a query
// box. It is the coarse phase of corridor search and is shaped for index lookups.
type CoverFilter struct {
	MinLatAtMost  float64
	MaxLatAtLeast float64
	MinLngAtMost  float64
	MaxLngAtLeast float64
}

// Admits reports whether b passes the filter
func (f CoverFilter) Admits(b BoundingBox) bool {
	return b.MinLat <= f.MinLatAtMost && b.MaxLat >= f.MaxLatAtLeast &&
		b.MinLng <= f.MinLngAtMost && b.MaxLng >= f.MaxLngAtLeast
}
