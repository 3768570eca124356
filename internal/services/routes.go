package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/carpool-lk/server/internal/events"
	"github.com/carpool-lk/server/internal/lib/geo"
	"github.com/carpool-lk/server/internal/lib/routing"
	"github.com/carpool-lk/server/internal/lib/simplify"
	"github.com/carpool-lk/server/internal/store"
)

// Compression settings for stored ride routes
const (
	RouteToleranceKm = 0.1
	RouteMaxPoints   = 220
)

// Where a repaired route was rebuilt from
const (
	SourceLegacyRecord = "legacy_record"
	SourceLegacyRide   = "legacy_ride"
	SourceInterpolated = "interpolated"
)

// RouteService reads stored ride routes, rebuilding and persisting any that are
// missing, legacy or undecodable
type RouteService struct {
	store       store.Store
	publisher   events.Publisher
	logger      *zap.Logger
	toleranceKm float64
	maxPoints   int
	stepsPerLeg int
	now         func() time.Time
}

// RouteOption configures a RouteService
type RouteOption func(*RouteService)

// WithCompression overrides the simplification tolerance and point cap
func WithCompression(toleranceKm float64, maxPoints int) RouteOption {
	return func(s *RouteService) {
		if toleranceKm > 0 {
			s.toleranceKm = toleranceKm
		}
		if maxPoints > 0 {
			s.maxPoints = maxPoints
		}
	}
}

// WithRepairStepsPerLeg sets the interpolation sample count used when a route
// is rebuilt from its endpoints
func WithRepairStepsPerLeg(steps int) RouteOption {
	return func(s *RouteService) {
		if steps > 0 {
			s.stepsPerLeg = steps
		}
	}
}

// WithClock overrides time.Now for record timestamps
func WithClock(now func() time.Time) RouteOption {
	return func(s *RouteService) {
		s.now = now
	}
}

// NewRouteService creates a RouteService. A nil publisher drops events. Repairs
// publish on the read path, so production wiring passes an events.AsyncPublisher.
func NewRouteService(st store.Store, publisher events.Publisher, logger *zap.Logger, opts ...RouteOption) *RouteService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RouteService{
		store:       st,
		publisher:   publisher,
		logger:      logger,
		toleranceKm: RouteToleranceKm,
		maxPoints:   RouteMaxPoints,
		stepsPerLeg: routing.DefaultStepsPerLeg,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadRoute implements routing.RouteLoader
func (s *RouteService) LoadRoute(ctx context.Context, rideID string) ([]geo.Point, error) {
	ride, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	points, _, err := s.ReadOrRepair(ctx, ride)
	return points, err
}

// ReadOrRepair returns the ride's decoded route. When the stored record is not a
// usable polyline, the route is rebuilt from legacy points or by interpolating
// from→to, then written back as a full replacement of the route record and the
// ride's bounds and length. Write failures are logged and the rebuilt points are
// still returned.
func (s *RouteService) ReadOrRepair(ctx context.Context, ride *store.Ride) ([]geo.Point, bool, error) {
	if ride.ID == "" {
		source, _ := RepairSource(ride, nil, s.stepsPerLeg)
		return source, false, nil
	}

	rec, err := s.store.GetRoute(ctx, ride.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("failed to read route for ride %s: %w", ride.ID, err)
	}

	if rec != nil {
		migrated, points, needsRepair := store.MigrateRouteRecord(*rec)
		if !needsRepair {
			return points, false, nil
		}
		rec = &migrated
	}

	source, origin := RepairSource(ride, rec, s.stepsPerLeg)
	compressed := simplify.Simplify(source, s.toleranceKm, s.maxPoints)
	repaired := store.NewPolylineRecord(ride.ID, compressed, s.now())
	bounds := geo.RouteBounds(compressed)

	var g errgroup.Group
	g.Go(func() error {
		return s.store.UpsertRoute(ctx, repaired)
	})
	g.Go(func() error {
		return s.store.UpdateRideRoute(ctx, ride.ID, repaired.DistanceKm, bounds)
	})
	if err := g.Wait(); err != nil {
		s.logger.Warn("failed to persist repaired route",
			zap.String("ride_id", ride.ID),
			zap.Error(err))
	} else {
		s.logger.Info("repaired ride route",
			zap.String("ride_id", ride.ID),
			zap.String("source", origin),
			zap.Int("points", repaired.PointCount))
	}

	publish(ctx, s.publisher, s.logger, events.RouteRepaired, ride.ID, events.RouteRepairedEvent{
		RideID:     ride.ID,
		Source:     origin,
		DistanceKm: repaired.DistanceKm,
		PointCount: repaired.PointCount,
	})

	return compressed, true, nil
}

// RepairSource picks the points a route is rebuilt from: the record's legacy
// points, then points embedded in the ride, then a from→to interpolation.
func RepairSource(ride *store.Ride, rec *store.RouteRecord, stepsPerLeg int) ([]geo.Point, string) {
	if rec != nil && len(rec.LegacyPoints) > 1 {
		return rec.LegacyPoints, SourceLegacyRecord
	}
	if len(ride.LegacyRoutePoints) > 1 {
		return ride.LegacyRoutePoints, SourceLegacyRide
	}
	return geo.Interpolate(ride.FromPoint, ride.ToPoint, stepsPerLeg), SourceInterpolated
}

// publish sends an event, logging instead of failing the caller
func publish(ctx context.Context, publisher events.Publisher, logger *zap.Logger, eventType, key string, data interface{}) {
	if err := publisher.Publish(ctx, eventType, key, data); err != nil {
		logger.Error("failed to publish event",
			zap.String("event_type", eventType),
			zap.String("key", key),
			zap.Error(err))
	}
}
