// Package store persists rides and their compressed route records.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/carpool-lk/server/internal/lib/geo"
)

// ErrNotFound is returned when a ride or route record does not exist
var ErrNotFound = errors.New("record not found")

// Field defaults applied to sparse legacy documents
const (
	DefaultPlaceName    = "Unknown"
	DefaultDriverName   = "Driver"
	DefaultSeatsLeft    = 1
	DefaultDriverRating = 4.5
)

// Ride is a published trip. Bounds is nil for legacy rides stored before
// route bounds existed; those always pass the corridor prefilter.
type Ride struct {
	ID              string
	From            string
	To              string
	FromPoint       geo.Point
	ToPoint         geo.Point
	DepartureAt     time.Time
	PriceLkr        float64
	SeatsLeft       int
	DriverName      string
	DriverRating    float64
	RouteDistanceKm float64
	Bounds          *geo.BoundingBox

	// BoundsUnavailable marks a ride whose route collapses to a zero box, so
	// backfill stops selecting it
	BoundsUnavailable bool

	// LegacyRoutePoints is the raw route some old ride documents embed
	LegacyRoutePoints []geo.Point
}

// CandidateQuery selects rides whose route box may contain a corridor query
type CandidateQuery struct {
	Filter geo.CoverFilter
	Limit  int
}

// Store is implemented by the Mongo, GORM and in-memory backends
type Store interface {
	EnsureIndexes(ctx context.Context) error

	InsertRide(ctx context.Context, ride *Ride) error
	GetRide(ctx context.Context, id string) (*Ride, error)
	// ListRides returns rides ordered by departure time
	ListRides(ctx context.Context, limit int) ([]Ride, error)
	CountRides(ctx context.Context) (int64, error)
	// FindCandidates returns rides with free seats that are legacy or admitted
	// by the filter, ordered by departure time
	FindCandidates(ctx context.Context, q CandidateQuery) ([]Ride, error)
	// FindRidesMissingBounds returns rides without bounds that are not marked
	// BoundsUnavailable, ordered by departure time
	FindRidesMissingBounds(ctx context.Context, limit int) ([]Ride, error)
	// UpdateRideRoute replaces a ride's derived route fields. A zero box clears the bounds.
	UpdateRideRoute(ctx context.Context, rideID string, distanceKm float64, bounds geo.BoundingBox) error
	// MarkBoundsUnavailable flags a ride whose route has no usable bounds
	MarkBoundsUnavailable(ctx context.Context, rideID string) error

	GetRoute(ctx context.Context, rideID string) (*RouteRecord, error)
	// UpsertRoute fully replaces the route record for rec.RideID
	UpsertRoute(ctx context.Context, rec RouteRecord) error

	Close(ctx context.Context) error
}

func boundsOrNil(b geo.BoundingBox) *geo.BoundingBox {
	if b.IsZero() {
		return nil
	}
	return &b
}

// admits reports whether a ride passes the candidate prefilter
func admits(ride *Ride, filter geo.CoverFilter) bool {
	if ride.SeatsLeft <= 0 {
		return false
	}
	return ride.Bounds == nil || filter.Admits(*ride.Bounds)
}

// candidateLimit treats a non-positive limit as unlimited
func candidateLimit(limit, n int) int {
	if limit <= 0 || limit > n {
		return n
	}
	return limit
}
