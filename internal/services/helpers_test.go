package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/carpool-lk/server/internal/lib/geo"
	"github.com/carpool-lk/server/internal/lib/geocode"
	"github.com/carpool-lk/server/internal/store"
)

var (
	colombo = geo.Point{Latitude: 6.9271, Longitude: 79.8612}
	kandy   = geo.Point{Latitude: 7.2906, Longitude: 80.6337}
	galle   = geo.Point{Latitude: 6.0535, Longitude: 80.221}
)

type publishedEvent struct {
	Type string
	Key  string
	Data json.RawMessage
}

// recordingPublisher keeps every published event in memory
type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, eventType, key string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: eventType, Key: key, Data: raw})
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) ofType(eventType string) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// slowPublisher records events after a fixed delay, like a broker that is down
type slowPublisher struct {
	recordingPublisher
	delay time.Duration
}

func (p *slowPublisher) Publish(ctx context.Context, eventType, key string, data interface{}) error {
	select {
	case <-time.After(p.delay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.recordingPublisher.Publish(ctx, eventType, key, data)
}

// placesGeocoder resolves names from a fixed table
type placesGeocoder struct {
	places map[string]geo.Point
}

func newPlacesGeocoder() *placesGeocoder {
	return &placesGeocoder{places: map[string]geo.Point{
		"colombo": colombo,
		"kandy":   kandy,
		"galle":   galle,
	}}
}

func (g *placesGeocoder) Resolve(_ context.Context, name string) (geocode.Location, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	point, ok := g.places[key]
	if !ok {
		return geocode.Location{}, geocode.ErrNotFound
	}
	label := strings.ToUpper(key[:1]) + key[1:]
	return geocode.Location{Name: label, Address: label + ", Sri Lanka", Point: point}, nil
}

func (g *placesGeocoder) Suggest(context.Context, string, int) ([]geocode.Location, error) {
	return []geocode.Location{}, nil
}

// MockRouter is a mock implementation of routing.RoadRouter
type MockRouter struct {
	mock.Mock
}

func (m *MockRouter) Route(ctx context.Context, waypoints []geo.Point) ([]geo.Point, error) {
	args := m.Called(ctx, waypoints)
	points, _ := args.Get(0).([]geo.Point)
	return points, args.Error(1)
}

// failingStore lets tests break individual store operations
type failingStore struct {
	*store.MemoryStore
	getRouteErr    error
	upsertRouteErr error
	updateRideErr  error
}

func (s *failingStore) GetRoute(ctx context.Context, rideID string) (*store.RouteRecord, error) {
	if s.getRouteErr != nil {
		return nil, s.getRouteErr
	}
	return s.MemoryStore.GetRoute(ctx, rideID)
}

func (s *failingStore) UpsertRoute(ctx context.Context, rec store.RouteRecord) error {
	if s.upsertRouteErr != nil {
		return s.upsertRouteErr
	}
	return s.MemoryStore.UpsertRoute(ctx, rec)
}

func (s *failingStore) UpdateRideRoute(ctx context.Context, rideID string, distanceKm float64, bounds geo.BoundingBox) error {
	if s.updateRideErr != nil {
		return s.updateRideErr
	}
	return s.MemoryStore.UpdateRideRoute(ctx, rideID, distanceKm, bounds)
}
