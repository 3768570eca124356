package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/carpool-lk/server/internal/lib/geo"
)

// MemoryStore keeps rides and routes in process memory
type MemoryStore struct {
	mu     sync.RWMutex
	rides  map[string]Ride
	routes map[string]RouteRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:  make(map[string]Ride),
		routes: make(map[string]RouteRecord),
	}
}

// EnsureIndexes is a no-op
func (s *MemoryStore) EnsureIndexes(context.Context) error { return nil }

// InsertRide stores a copy of ride
func (s *MemoryStore) InsertRide(_ context.Context, ride *Ride) error {
	if ride.ID == "" {
		return fmt.Errorf("ride ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rides[ride.ID]; exists {
		return fmt.Errorf("ride %s already exists", ride.ID)
	}
	s.rides[ride.ID] = cloneRide(*ride)
	return nil
}

// GetRide returns a ride by ID
func (s *MemoryStore) GetRide(_ context.Context, id string) (*Ride, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ride, ok := s.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneRide(ride)
	return &out, nil
}

// ListRides returns rides ordered by departure time
func (s *MemoryStore) ListRides(_ context.Context, limit int) ([]Ride, error) {
	return s.selectRides(limit, func(*Ride) bool { return true }), nil
}

// CountRides returns the number of stored rides
func (s *MemoryStore) CountRides(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rides)), nil
}

// FindCandidates returns prefiltered rides ordered by departure time
func (s *MemoryStore) FindCandidates(_ context.Context, q CandidateQuery) ([]Ride, error) {
	return s.selectRides(q.Limit, func(r *Ride) bool { return admits(r, q.Filter) }), nil
}

// FindRidesMissingBounds returns legacy rides ordered by departure time
func (s *MemoryStore) FindRidesMissingBounds(_ context.Context, limit int) ([]Ride, error) {
	return s.selectRides(limit, func(r *Ride) bool { return r.Bounds == nil && !r.BoundsUnavailable }), nil
}

// UpdateRideRoute replaces a ride's derived route fields
func (s *MemoryStore) UpdateRideRoute(_ context.Context, rideID string, distanceKm float64, bounds geo.BoundingBox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[rideID]
	if !ok {
		return ErrNotFound
	}
	ride.RouteDistanceKm = distanceKm
	ride.Bounds = boundsOrNil(bounds)
	if ride.Bounds != nil {
		ride.BoundsUnavailable = false
	}
	ride.LegacyRoutePoints = nil
	s.rides[rideID] = ride
	return nil
}

// MarkBoundsUnavailable flags a ride so backfill skips it
func (s *MemoryStore) MarkBoundsUnavailable(_ context.Context, rideID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ride, ok := s.rides[rideID]
	if !ok {
		return ErrNotFound
	}
	ride.BoundsUnavailable = true
	s.rides[rideID] = ride
	return nil
}

// GetRoute returns the route record for a ride
func (s *MemoryStore) GetRoute(_ context.Context, rideID string) (*RouteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.routes[rideID]
	if !ok {
		return nil, ErrNotFound
	}
	rec.LegacyPoints = append([]geo.Point(nil), rec.LegacyPoints...)
	return &rec, nil
}

// UpsertRoute replaces the route record for rec.RideID
func (s *MemoryStore) UpsertRoute(_ context.Context, rec RouteRecord) error {
	if rec.RideID == "" {
		return fmt.Errorf("ride ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.LegacyPoints = append([]geo.Point(nil), rec.LegacyPoints...)
	s.routes[rec.RideID] = rec
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close(context.Context) error { return nil }

func (s *MemoryStore) selectRides(limit int, keep func(*Ride) bool) []Ride {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Ride, 0, len(s.rides))
	for _, ride := range s.rides {
		if keep(&ride) {
			out = append(out, cloneRide(ride))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DepartureAt.Equal(out[j].DepartureAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].DepartureAt.Before(out[j].DepartureAt)
	})
	return out[:candidateLimit(limit, len(out))]
}

func cloneRide(r Ride) Ride {
	if r.Bounds != nil {
		b := *r.Bounds
		r.Bounds = &b
	}
	r.LegacyRoutePoints = append([]geo.Point(nil), r.LegacyRoutePoints...)
	return r
}
