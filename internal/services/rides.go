package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/carpool-lk/server/internal/config"
	"github.com/carpool-lk/server/internal/events"
	"github.com/carpool-lk/server/internal/lib/geo"
	"github.com/carpool-lk/server/internal/lib/geocode"
	"github.com/carpool-lk/server/internal/lib/polyline"
	"github.com/carpool-lk/server/internal/lib/routing"
	"github.com/carpool-lk/server/internal/lib/simplify"
	"github.com/carpool-lk/server/internal/store"
)

// DefaultPublishRating is given to drivers who publish without a rating
const DefaultPublishRating = 4.6

// ErrInvalidRide is returned for publish requests that fail validation
var ErrInvalidRide = errors.New("invalid ride")

// Sri Lanka has a fixed +05:30 offset and no daylight saving
var colomboZone = time.FixedZone("Asia/Colombo", 5*60*60+30*60)

// LocationInput is a place the caller already resolved, typically picked on a map
type LocationInput struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

// PublishRideRequest describes a new ride. Explicit locations win over place names.
type PublishRideRequest struct {
	From         string
	To           string
	FromLocation *LocationInput
	ToLocation   *LocationInput
	DepartureAt  time.Time
	PriceLkr     float64
	SeatsLeft    int
	DriverName   string
	DriverRating *float64
	Waypoints    []string
}

// RidePayload is a compressed route ready to be stored
type RidePayload struct {
	Points          []geo.Point
	EncodedPolyline string
	LengthKm        float64
	Bounds          geo.BoundingBox
	PointCount      int
	Degraded        bool
}

// MatchView carries the corridor distances of a search hit
type MatchView struct {
	PickupDistanceKm float64 `json:"pickup_distance_km"`
	DropDistanceKm   float64 `json:"drop_distance_km"`
}

// RideView is a ride as shown to riders
type RideView struct {
	ID              string     `json:"id"`
	From            string     `json:"from"`
	To              string     `json:"to"`
	DateLabel       string     `json:"date_label"`
	TimeLabel       string     `json:"time_label"`
	DepartureAt     time.Time  `json:"departure_at"`
	PriceLkr        float64    `json:"price_lkr"`
	SeatsLeft       int        `json:"seats_left"`
	DriverName      string     `json:"driver_name"`
	DriverRating    float64    `json:"driver_rating"`
	RouteDistanceKm float64    `json:"route_distance_km"`
	Match           *MatchView `json:"match,omitempty"`
}

// NewRideView converts a stored ride, with an optional corridor match
func NewRideView(ride store.Ride, match *routing.CorridorMatch) RideView {
	local := ride.DepartureAt.In(colomboZone)
	view := RideView{
		ID:              ride.ID,
		From:            ride.From,
		To:              ride.To,
		DateLabel:       local.Format("Mon, Jan 2"),
		TimeLabel:       local.Format("03:04 PM"),
		DepartureAt:     ride.DepartureAt.UTC(),
		PriceLkr:        ride.PriceLkr,
		SeatsLeft:       ride.SeatsLeft,
		DriverName:      ride.DriverName,
		DriverRating:    ride.DriverRating,
		RouteDistanceKm: routing.Round(ride.RouteDistanceKm, 1),
	}
	if match != nil {
		rounded := match.Rounded()
		view.Match = &MatchView{
			PickupDistanceKm: rounded.PickupDistanceKm,
			DropDistanceKm:   rounded.DropDistanceKm,
		}
	}
	return view
}

// RideService publishes rides and searches them by route corridor
type RideService struct {
	store     store.Store
	geocoder  geocode.Geocoder
	builder   *routing.Builder
	matcher   *routing.CorridorMatcher
	routes    *RouteService
	publisher events.Publisher
	config    config.RidesConfig
	logger    *zap.Logger
	newID     func() string
}

// NewRideService creates a RideService
func NewRideService(
	st store.Store,
	geocoder geocode.Geocoder,
	builder *routing.Builder,
	routes *RouteService,
	publisher events.Publisher,
	cfg config.RidesConfig,
	logger *zap.Logger,
) *RideService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := config.DefaultConfig().Rides
	if cfg.ToleranceKm <= 0 {
		cfg.ToleranceKm = defaults.ToleranceKm
	}
	if cfg.MaxPoints <= 0 {
		cfg.MaxPoints = defaults.MaxPoints
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = defaults.CandidateMultiplier
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = defaults.ListLimit
	}
	return &RideService{
		store:     st,
		geocoder:  geocoder,
		builder:   builder,
		matcher:   routing.NewCorridorMatcher(logger),
		routes:    routes,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
		newID:     uuid.NewString,
	}
}

// BuildRidePayload routes the waypoints and compresses the result
func (s *RideService) BuildRidePayload(ctx context.Context, waypoints []geo.Point) RidePayload {
	built := s.builder.Build(ctx, waypoints)
	compressed := simplify.Simplify(built.Points, s.config.ToleranceKm, s.config.MaxPoints)

	return RidePayload{
		Points:          compressed,
		EncodedPolyline: polyline.Encode(compressed),
		LengthKm:        geo.RouteLengthKm(compressed),
		Bounds:          geo.RouteBounds(compressed),
		PointCount:      len(compressed),
		Degraded:        built.Degraded,
	}
}

// PublishRide resolves the ride's places, builds and stores its route, and stores the ride
func (s *RideService) PublishRide(ctx context.Context, req PublishRideRequest) (RideView, error) {
	if err := validatePublish(req); err != nil {
		return RideView{}, err
	}

	var from, to geocode.Location
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		loc, err := s.resolvePlace(gctx, req.From, req.FromLocation)
		from = loc
		return err
	})
	g.Go(func() error {
		loc, err := s.resolvePlace(gctx, req.To, req.ToLocation)
		to = loc
		return err
	})
	if err := g.Wait(); err != nil {
		return RideView{}, err
	}

	path := make([]geo.Point, 0, len(req.Waypoints)+2)
	path = append(path, from.Point)
	path = append(path, s.resolveWaypoints(ctx, req.Waypoints)...)
	path = append(path, to.Point)

	payload := s.BuildRidePayload(ctx, path)

	rating := DefaultPublishRating
	if req.DriverRating != nil {
		rating = *req.DriverRating
	}
	driver := strings.TrimSpace(req.DriverName)
	if driver == "" {
		driver = store.DefaultDriverName
	}

	ride := store.Ride{
		ID:              s.newID(),
		From:            from.Name,
		To:              to.Name,
		FromPoint:       from.Point,
		ToPoint:         to.Point,
		DepartureAt:     req.DepartureAt.UTC(),
		PriceLkr:        req.PriceLkr,
		SeatsLeft:       req.SeatsLeft,
		DriverName:      driver,
		DriverRating:    rating,
		RouteDistanceKm: payload.LengthKm,
	}
	if !payload.Bounds.IsZero() {
		b := payload.Bounds
		ride.Bounds = &b
	}

	if err := s.store.InsertRide(ctx, &ride); err != nil {
		return RideView{}, fmt.Errorf("failed to store ride: %w", err)
	}
	if err := s.store.UpsertRoute(ctx, store.NewPolylineRecord(ride.ID, payload.Points, time.Now())); err != nil {
		return RideView{}, fmt.Errorf("failed to store route for ride %s: %w", ride.ID, err)
	}

	s.logger.Info("published ride",
		zap.String("ride_id", ride.ID),
		zap.String("from", ride.From),
		zap.String("to", ride.To),
		zap.Float64("distance_km", payload.LengthKm),
		zap.Int("points", payload.PointCount),
		zap.Bool("degraded", payload.Degraded))

	publish(ctx, s.publisher, s.logger, events.RidePublished, ride.ID, events.RidePublishedEvent{
		RideID:          ride.ID,
		From:            ride.From,
		To:              ride.To,
		DepartureAt:     ride.DepartureAt,
		RouteDistanceKm: payload.LengthKm,
		PointCount:      payload.PointCount,
		Degraded:        payload.Degraded,
	})

	return NewRideView(ride, nil), nil
}

// FindRoutesInCorridor returns up to limit rides, in departure order, whose route
// passes within corridorKm of both pickup and drop with pickup first
func (s *RideService) FindRoutesInCorridor(ctx context.Context, pickup, drop geo.Point, corridorKm float64, limit int) ([]RideView, error) {
	if limit <= 0 {
		return []RideView{}, nil
	}
	q := routing.CorridorQuery{Pickup: pickup, Drop: drop, CorridorKm: corridorKm}

	candidates, err := s.store.FindCandidates(ctx, store.CandidateQuery{
		Filter: q.Filter(),
		Limit:  max(limit*s.config.CandidateMultiplier, limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find candidate rides: %w", err)
	}

	loader := &candidateLoader{routes: s.routes, rides: make(map[string]*store.Ride, len(candidates))}
	ids := make([]string, 0, len(candidates))
	for i := range candidates {
		if candidates[i].SeatsLeft <= 0 {
			continue
		}
		loader.rides[candidates[i].ID] = &candidates[i]
		ids = append(ids, candidates[i].ID)
	}

	results, err := s.matcher.Scan(ctx, q, ids, loader, limit)
	if err != nil {
		return nil, err
	}

	views := make([]RideView, 0, len(results))
	for _, result := range results {
		ride := loader.rides[result.RideID]
		match := result.Match
		views = append(views, NewRideView(*ride, &match))
	}
	return views, nil
}

// ListRides returns upcoming rides ordered by departure time
func (s *RideService) ListRides(ctx context.Context, limit int) ([]RideView, error) {
	if limit <= 0 {
		limit = s.config.ListLimit
	}
	rides, err := s.store.ListRides(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list rides: %w", err)
	}
	views := make([]RideView, len(rides))
	for i, ride := range rides {
		views[i] = NewRideView(ride, nil)
	}
	return views, nil
}

// GetRide returns one ride
func (s *RideService) GetRide(ctx context.Context, id string) (RideView, error) {
	ride, err := s.store.GetRide(ctx, id)
	if err != nil {
		return RideView{}, err
	}
	return NewRideView(*ride, nil), nil
}

// WriteRouteKML writes the ride's stored route, repaired if needed, as KML
func (s *RideService) WriteRouteKML(ctx context.Context, id string, w io.Writer) error {
	ride, err := s.store.GetRide(ctx, id)
	if err != nil {
		return err
	}
	points, _, err := s.routes.ReadOrRepair(ctx, ride)
	if err != nil {
		return err
	}
	name := fmt.Sprintf("%s to %s", ride.From, ride.To)
	description := fmt.Sprintf("%.1f km, departs %s", geo.RouteLengthKm(points),
		ride.DepartureAt.In(colomboZone).Format("Mon, Jan 2 03:04 PM"))
	return routing.WriteRouteKML(w, name, description, points)
}

func (s *RideService) resolvePlace(ctx context.Context, name string, explicit *LocationInput) (geocode.Location, error) {
	if explicit != nil {
		point, err := geo.NewPoint(explicit.Latitude, explicit.Longitude)
		if err != nil {
			return geocode.Location{}, fmt.Errorf("%w: location for %q: %v", ErrInvalidRide, name, err)
		}
		label := strings.TrimSpace(explicit.Name)
		if label == "" {
			label = strings.TrimSpace(name)
		}
		return geocode.Location{Name: label, Address: label, Point: point}, nil
	}

	loc, err := s.geocoder.Resolve(ctx, name)
	if err != nil {
		return geocode.Location{}, fmt.Errorf("could not resolve %q: %w", name, err)
	}
	return loc, nil
}

// resolveWaypoints geocodes waypoints concurrently, keeping order and skipping unknown places
func (s *RideService) resolveWaypoints(ctx context.Context, names []string) []geo.Point {
	resolved := make([]*geo.Point, len(names))
	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			loc, err := s.geocoder.Resolve(ctx, name)
			if err != nil {
				s.logger.Warn("skipping unresolvable waypoint",
					zap.String("waypoint", name),
					zap.Error(err))
				return nil
			}
			resolved[i] = &loc.Point
			return nil
		})
	}
	_ = g.Wait()

	points := make([]geo.Point, 0, len(names))
	for _, p := range resolved {
		if p != nil {
			points = append(points, *p)
		}
	}
	return points
}

func validatePublish(req PublishRideRequest) error {
	switch {
	case strings.TrimSpace(req.From) == "" && req.FromLocation == nil:
		return fmt.Errorf("%w: departure place is required", ErrInvalidRide)
	case strings.TrimSpace(req.To) == "" && req.ToLocation == nil:
		return fmt.Errorf("%w: destination place is required", ErrInvalidRide)
	case req.DepartureAt.IsZero():
		return fmt.Errorf("%w: departure time is required", ErrInvalidRide)
	case req.PriceLkr < 0:
		return fmt.Errorf("%w: price must not be negative", ErrInvalidRide)
	case req.SeatsLeft < 1:
		return fmt.Errorf("%w: at least one seat is required", ErrInvalidRide)
	case req.DriverRating != nil && (*req.DriverRating < 0 || *req.DriverRating > 5):
		return fmt.Errorf("%w: driver rating must be between 0 and 5", ErrInvalidRide)
	}
	return nil
}

// candidateLoader serves routes for rides already fetched by the prefilter
type candidateLoader struct {
	routes *RouteService
	rides  map[string]*store.Ride
}

func (l *candidateLoader) LoadRoute(ctx context.Context, rideID string) ([]geo.Point, error) {
	ride, ok := l.rides[rideID]
	if !ok {
		return nil, store.ErrNotFound
	}
	points, _, err := l.routes.ReadOrRepair(ctx, ride)
	return points, err
}
