package store

import (
	"time"

	"github.com/carpool-lk/server/internal/lib/geo"
	"github.com/carpool-lk/server/internal/lib/polyline"
)

// Route record schema versions
const (
	// SchemaRawPoints records embed an uncompressed point array
	SchemaRawPoints = 1
	// SchemaPolyline records carry an encoded polyline plus derived length and count
	SchemaPolyline = 2
)

// RouteRecord is the stored route of one ride
type RouteRecord struct {
	RideID        string
	SchemaVersion int
	Polyline      string
	// LegacyPoints is only set on SchemaRawPoints records
	LegacyPoints []geo.Point
	DistanceKm   float64
	PointCount   int
	UpdatedAt    time.Time
}

// MigrateRouteRecord classifies a stored record. Records without a version are
// inferred from their contents. It returns the decoded route for a usable
// polyline record, and needsRepair when the route must be rebuilt.
func MigrateRouteRecord(rec RouteRecord) (RouteRecord, []geo.Point, bool) {
	if rec.SchemaVersion == 0 {
		switch {
		case rec.Polyline != "":
			rec.SchemaVersion = SchemaPolyline
		case len(rec.LegacyPoints) > 0:
			rec.SchemaVersion = SchemaRawPoints
		}
	}

	if rec.Polyline == "" {
		return rec, nil, true
	}
	points, err := polyline.Decode(rec.Polyline)
	if err != nil || len(points) < 2 {
		return rec, nil, true
	}
	return rec, points, false
}

// NewPolylineRecord builds the canonical record for a compressed route
func NewPolylineRecord(rideID string, points []geo.Point, now time.Time) RouteRecord {
	return RouteRecord{
		RideID:        rideID,
		SchemaVersion: SchemaPolyline,
		Polyline:      polyline.Encode(points),
		DistanceKm:    geo.RouteLengthKm(points),
		PointCount:    len(points),
		UpdatedAt:     now.UTC(),
	}
}
