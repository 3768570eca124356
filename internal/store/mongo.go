package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/carpool-lk/server/internal/lib/geo"
)

const (
	ridesCollection  = "rides"
	routesCollection = "ride_routes"

	// isoLayout matches the millisecond ISO-8601 strings already stored in departureAtIso
	isoLayout = "2006-01-02T15:04:05.000Z"
)

// MongoStore persists rides in the rides collection and routes in ride_routes.
// Ride IDs are uuid strings; 24-character hex IDs address legacy ObjectID documents.
type MongoStore struct {
	client *mongo.Client
	rides  *mongo.Collection
	routes *mongo.Collection
	logger *zap.Logger
}

// NewMongoStore connects to uri and verifies the connection
func NewMongoStore(ctx context.Context, uri, database string, logger *zap.Logger) (*MongoStore, error) {
	clientOptions := options.Client().ApplyURI(uri).
		SetMaxPoolSize(50).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second).
		SetRetryWrites(true).
		SetRetryReads(true)

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error pinging MongoDB: %w", err)
	}

	s := NewMongoStoreFromDatabase(client.Database(database), logger)
	s.client = client
	return s, nil
}

// NewMongoStoreFromDatabase wraps an existing database handle. Close does not disconnect it.
func NewMongoStoreFromDatabase(db *mongo.Database, logger *zap.Logger) *MongoStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MongoStore{
		rides:  db.Collection(ridesCollection),
		routes: db.Collection(routesCollection),
		logger: logger,
	}
}

// EnsureIndexes creates the departure, seats, bounds and rideId indexes
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	rideIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "departureAtIso", Value: 1}},
			Options: options.Index().SetName("departure_idx"),
		},
		{
			Keys:    bson.D{{Key: "seatsLeft", Value: 1}},
			Options: options.Index().SetName("seats_left_idx"),
		},
		{
			Keys: bson.D{
				{Key: "routeMinLat", Value: 1},
				{Key: "routeMaxLat", Value: 1},
				{Key: "routeMinLng", Value: 1},
				{Key: "routeMaxLng", Value: 1},
			},
			Options: options.Index().SetName("route_bounds_idx"),
		},
	}
	if _, err := s.rides.Indexes().CreateMany(ctx, rideIndexes); err != nil {
		return fmt.Errorf("error creating ride indexes: %w", err)
	}

	routeIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "rideId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("ride_id_idx"),
		},
	}
	if _, err := s.routes.Indexes().CreateMany(ctx, routeIndexes); err != nil {
		return fmt.Errorf("error creating route indexes: %w", err)
	}
	return nil
}

// InsertRide stores a new ride
func (s *MongoStore) InsertRide(ctx context.Context, ride *Ride) error {
	if ride.ID == "" {
		return fmt.Errorf("ride ID is required")
	}
	if _, err := s.rides.InsertOne(ctx, fromRide(ride)); err != nil {
		return fmt.Errorf("failed to insert ride: %w", err)
	}
	return nil
}

// GetRide returns a ride by ID
func (s *MongoStore) GetRide(ctx context.Context, id string) (*Ride, error) {
	var doc rideDocument
	err := s.rides.FindOne(ctx, bson.M{"_id": rideKey(id)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find ride: %w", err)
	}
	ride := doc.toRide()
	return &ride, nil
}

// ListRides returns rides ordered by departure time, without embedded legacy points
func (s *MongoStore) ListRides(ctx context.Context, limit int) ([]Ride, error) {
	opts := s.findOptions(limit).SetProjection(bson.M{"routePoints": 0})
	return s.findRides(ctx, bson.M{}, opts)
}

// CountRides returns the number of ride documents
func (s *MongoStore) CountRides(ctx context.Context) (int64, error) {
	n, err := s.rides.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("failed to count rides: %w", err)
	}
	return n, nil
}

// FindCandidates returns rides with free seats that are legacy or whose stored
// bounds pass the filter, ordered by departure time
func (s *MongoStore) FindCandidates(ctx context.Context, q CandidateQuery) ([]Ride, error) {
	filter := bson.M{
		"seatsLeft": bson.M{"$gt": 0},
		"$or": bson.A{
			bson.M{
				"routeMinLat": bson.M{"$lte": q.Filter.MinLatAtMost},
				"routeMaxLat": bson.M{"$gte": q.Filter.MaxLatAtLeast},
				"routeMinLng": bson.M{"$lte": q.Filter.MinLngAtMost},
				"routeMaxLng": bson.M{"$gte": q.Filter.MaxLngAtLeast},
			},
			// matches both a missing and a null field
			bson.M{"routeMinLat": nil},
		},
	}
	return s.findRides(ctx, filter, s.findOptions(q.Limit))
}

// FindRidesMissingBounds returns rides stored before route bounds existed
func (s *MongoStore) FindRidesMissingBounds(ctx context.Context, limit int) ([]Ride, error) {
	filter := bson.M{
		"routeMinLat":            nil,
		"routeBoundsUnavailable": bson.M{"$ne": true},
	}
	return s.findRides(ctx, filter, s.findOptions(limit))
}

// UpdateRideRoute sets distance and bounds and drops any embedded legacy route
func (s *MongoStore) UpdateRideRoute(ctx context.Context, rideID string, distanceKm float64, bounds geo.BoundingBox) error {
	set := bson.M{"routeDistanceKm": distanceKm}
	unset := bson.M{"routePoints": ""}
	if bounds.IsZero() {
		for _, field := range boundsFields {
			unset[field] = ""
		}
	} else {
		set["routeMinLat"] = bounds.MinLat
		set["routeMaxLat"] = bounds.MaxLat
		set["routeMinLng"] = bounds.MinLng
		set["routeMaxLng"] = bounds.MaxLng
		unset["routeBoundsUnavailable"] = ""
	}

	result, err := s.rides.UpdateOne(ctx,
		bson.M{"_id": rideKey(rideID)},
		bson.M{"$set": set, "$unset": unset})
	if err != nil {
		return fmt.Errorf("failed to update ride route: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRoute returns the route record for a ride
func (s *MongoStore) GetRoute(ctx context.Context, rideID string) (*RouteRecord, error) {
	var doc routeDocument
	err := s.routes.FindOne(ctx, bson.M{"rideId": rideKey(rideID)}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find route: %w", err)
	}
	rec := doc.toRecord()
	return &rec, nil
}

// UpsertRoute replaces every route field of the record for rec.RideID
func (s *MongoStore) UpsertRoute(ctx context.Context, rec RouteRecord) error {
	if rec.RideID == "" {
		return fmt.Errorf("ride ID is required")
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	set := bson.M{
		"rideId":          rideKey(rec.RideID),
		"schemaVersion":   rec.SchemaVersion,
		"routeDistanceKm": rec.DistanceKm,
		"pointCount":      rec.PointCount,
		"updatedAt":       updatedAt.UTC().Format(isoLayout),
	}
	unset := bson.M{}
	if rec.Polyline != "" {
		set["routePolyline"] = rec.Polyline
	} else {
		unset["routePolyline"] = ""
	}
	if len(rec.LegacyPoints) > 0 {
		set["routePoints"] = rec.LegacyPoints
	} else {
		unset["routePoints"] = ""
	}

	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}

	_, err := s.routes.UpdateOne(ctx,
		bson.M{"rideId": rideKey(rec.RideID)},
		update,
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert route: %w", err)
	}
	return nil
}

// Close disconnects a client opened by NewMongoStore
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) findOptions(limit int) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{{Key: "departureAtIso", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return opts
}

func (s *MongoStore) findRides(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]Ride, error) {
	cursor, err := s.rides.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query rides: %w", err)
	}
	defer cursor.Close(ctx)

	rides := make([]Ride, 0)
	for cursor.Next(ctx) {
		var doc rideDocument
		if err := cursor.Decode(&doc); err != nil {
			s.logger.Warn("skipping undecodable ride document", zap.Error(err))
			continue
		}
		rides = append(rides, doc.toRide())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rides: %w", err)
	}
	return rides, nil
}

var boundsFields = []string{"routeMinLat", "routeMaxLat", "routeMinLng", "routeMaxLng"}

// MarkBoundsUnavailable flags a ride so backfill skips it
func (s *MongoStore) MarkBoundsUnavailable(ctx context.Context, rideID string) error {
	result, err := s.rides.UpdateOne(ctx,
		bson.M{"_id": rideKey(rideID)},
		bson.M{"$set": bson.M{"routeBoundsUnavailable": true}})
	if err != nil {
		return fmt.Errorf("failed to mark ride bounds unavailable: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// rideDocument mirrors the rides collection. Pointer fields tell missing values
// in sparse legacy documents apart from zeros.
type rideDocument struct {
	ID              interface{} `bson:"_id,omitempty"`
	From            *string     `bson:"from,omitempty"`
	To              *string     `bson:"to,omitempty"`
	FromPoint       *geo.Point  `bson:"fromPoint,omitempty"`
	ToPoint         *geo.Point  `bson:"toPoint,omitempty"`
	DepartureAtIso  *string     `bson:"departureAtIso,omitempty"`
	PriceLkr        *float64    `bson:"priceLkr,omitempty"`
	SeatsLeft       *int        `bson:"seatsLeft,omitempty"`
	DriverName      *string     `bson:"driverName,omitempty"`
	DriverRating    *float64    `bson:"driverRating,omitempty"`
	RouteDistanceKm *float64    `bson:"routeDistanceKm,omitempty"`
	RouteMinLat     *float64    `bson:"routeMinLat,omitempty"`
	RouteMaxLat     *float64    `bson:"routeMaxLat,omitempty"`
	RouteMinLng     *float64    `bson:"routeMinLng,omitempty"`
	RouteMaxLng     *float64    `bson:"routeMaxLng,omitempty"`
	RoutePoints     []geo.Point `bson:"routePoints,omitempty"`

	BoundsUnavailable bool `bson:"routeBoundsUnavailable,omitempty"`
}

func fromRide(r *Ride) rideDocument {
	departure := r.DepartureAt.UTC().Format(isoLayout)
	doc := rideDocument{
		ID:              rideKey(r.ID),
		From:            &r.From,
		To:              &r.To,
		FromPoint:       &r.FromPoint,
		ToPoint:         &r.ToPoint,
		DepartureAtIso:  &departure,
		PriceLkr:        &r.PriceLkr,
		SeatsLeft:       &r.SeatsLeft,
		DriverName:      &r.DriverName,
		DriverRating:    &r.DriverRating,
		RouteDistanceKm: &r.RouteDistanceKm,
		RoutePoints:     r.LegacyRoutePoints,

		BoundsUnavailable: r.BoundsUnavailable,
	}
	if r.Bounds != nil && !r.Bounds.IsZero() {
		b := *r.Bounds
		doc.RouteMinLat, doc.RouteMaxLat = &b.MinLat, &b.MaxLat
		doc.RouteMinLng, doc.RouteMaxLng = &b.MinLng, &b.MaxLng
	}
	return doc
}

func (d rideDocument) toRide() Ride {
	ride := Ride{
		ID:                idString(d.ID),
		From:              stringOr(d.From, DefaultPlaceName),
		To:                stringOr(d.To, DefaultPlaceName),
		DepartureAt:       parseDeparture(d.DepartureAtIso),
		PriceLkr:          floatOr(d.PriceLkr, 0),
		SeatsLeft:         DefaultSeatsLeft,
		DriverName:        stringOr(d.DriverName, DefaultDriverName),
		DriverRating:      floatOr(d.DriverRating, DefaultDriverRating),
		RouteDistanceKm:   floatOr(d.RouteDistanceKm, 0),
		LegacyRoutePoints: d.RoutePoints,
		BoundsUnavailable: d.BoundsUnavailable,
	}
	if d.FromPoint != nil {
		ride.FromPoint = *d.FromPoint
	}
	if d.ToPoint != nil {
		ride.ToPoint = *d.ToPoint
	}
	if d.SeatsLeft != nil {
		ride.SeatsLeft = *d.SeatsLeft
	}
	if d.RouteMinLat != nil && d.RouteMaxLat != nil && d.RouteMinLng != nil && d.RouteMaxLng != nil {
		ride.Bounds = boundsOrNil(geo.BoundingBox{
			MinLat: *d.RouteMinLat,
			MaxLat: *d.RouteMaxLat,
			MinLng: *d.RouteMinLng,
			MaxLng: *d.RouteMaxLng,
		})
	}
	return ride
}

// routeDocument mirrors ride_routes. updatedAt has been written both as an
// ISO string and as a BSON date.
type routeDocument struct {
	RideID          interface{}   `bson:"rideId"`
	SchemaVersion   int           `bson:"schemaVersion,omitempty"`
	RoutePolyline   string        `bson:"routePolyline,omitempty"`
	RoutePoints     []geo.Point   `bson:"routePoints,omitempty"`
	RouteDistanceKm float64       `bson:"routeDistanceKm"`
	PointCount      int           `bson:"pointCount,omitempty"`
	UpdatedAt       bson.RawValue `bson:"updatedAt,omitempty"`
}

func (d routeDocument) toRecord() RouteRecord {
	rec := RouteRecord{
		RideID:        idString(d.RideID),
		SchemaVersion: d.SchemaVersion,
		Polyline:      d.RoutePolyline,
		LegacyPoints:  d.RoutePoints,
		DistanceKm:    d.RouteDistanceKm,
		PointCount:    d.PointCount,
	}
	if s, ok := d.UpdatedAt.StringValueOK(); ok {
		rec.UpdatedAt, _ = time.Parse(time.RFC3339, s)
	} else if dt, ok := d.UpdatedAt.DateTimeOK(); ok {
		rec.UpdatedAt = time.UnixMilli(dt).UTC()
	}
	return rec
}

func rideKey(id string) interface{} {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return oid
	}
	return id
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

func parseDeparture(iso *string) time.Time {
	if iso != nil {
		if t, err := time.Parse(time.RFC3339, *iso); err == nil {
			return t.UTC()
		}
	}
	return time.Now().UTC()
}

func stringOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}

func floatOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}
