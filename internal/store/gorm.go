package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/carpool-lk/server/internal/lib/geo"
)

// RideModel is the GORM model for the rides table.
type RideModel struct {
	ID              string      `gorm:"primaryKey;size:64"`
	FromName        string      `gorm:"column:from_name;size:200;not null"`
	ToName          string      `gorm:"column:to_name;size:200;not null"`
	FromLat         float64     `gorm:"not null"`
	FromLng         float64     `gorm:"not null"`
	ToLat           float64     `gorm:"not null"`
	ToLng           float64     `gorm:"not null"`
	DepartureAt     time.Time   `gorm:"index;not null"`
	PriceLkr        float64     `gorm:"not null"`
	SeatsLeft       int         `gorm:"index;not null"`
	DriverName      string      `gorm:"size:200;not null"`
	DriverRating    float64     `gorm:"not null"`
	RouteDistanceKm float64     `gorm:"not null"`
	RouteMinLat     *float64    `gorm:"index:idx_ride_route_bounds"`
	RouteMaxLat     *float64    `gorm:"index:idx_ride_route_bounds"`
	RouteMinLng     *float64    `gorm:"index:idx_ride_route_bounds"`
	RouteMaxLng     *float64    `gorm:"index:idx_ride_route_bounds"`
	RoutePoints     []geo.Point `gorm:"serializer:json"`
	CreatedAt       time.Time   `gorm:"not null"`
	UpdatedAt       time.Time   `gorm:"not null"`

	// RouteBoundsUnavailable is set when a repaired route has no usable box
	RouteBoundsUnavailable bool `gorm:"not null;default:false"`
}

// TableName returns the table name for the GORM model.
func (RideModel) TableName() string {
	return "rides"
}

// RouteModel is the GORM model for the ride_routes table.
type RouteModel struct {
	RideID          string      `gorm:"primaryKey;size:64"`
	SchemaVersion   int         `gorm:"not null;default:0"`
	RoutePolyline   string      `gorm:"type:text"`
	RoutePoints     []geo.Point `gorm:"serializer:json"`
	RouteDistanceKm float64     `gorm:"not null"`
	PointCount      int         `gorm:"not null"`
	UpdatedAt       time.Time   `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (RouteModel) TableName() string {
	return "ride_routes"
}

// GormStore is the relational implementation of Store
type GormStore struct {
	db *gorm.DB
}

// OpenGorm opens a postgres or sqlite database by driver name
func OpenGorm(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported SQL driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	return db, nil
}

// NewGormStore creates a GormStore
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// EnsureIndexes migrates both tables with their indexes
func (s *GormStore) EnsureIndexes(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&RideModel{}, &RouteModel{}); err != nil {
		return fmt.Errorf("failed to migrate ride tables: %w", err)
	}
	return nil
}

// InsertRide stores a new ride
func (s *GormStore) InsertRide(ctx context.Context, ride *Ride) error {
	if ride.ID == "" {
		return fmt.Errorf("ride ID is required")
	}
	model := toRideModel(ride)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to insert ride: %w", err)
	}
	return nil
}

// GetRide returns a ride by ID
func (s *GormStore) GetRide(ctx context.Context, id string) (*Ride, error) {
	var model RideModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find ride by ID: %w", err)
	}
	ride := model.toRide()
	return &ride, nil
}

// ListRides returns rides ordered by departure time
func (s *GormStore) ListRides(ctx context.Context, limit int) ([]Ride, error) {
	return s.findRides(s.db.WithContext(ctx).Omit("route_points"), limit)
}

// CountRides returns the number of rides
func (s *GormStore) CountRides(ctx context.Context) (int64, error) {
	var total int64
	if err := s.db.WithContext(ctx).Model(&RideModel{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count rides: %w", err)
	}
	return total, nil
}

// FindCandidates returns rides with free seats that are legacy or admitted by the filter
func (s *GormStore) FindCandidates(ctx context.Context, q CandidateQuery) ([]Ride, error) {
	tx := s.db.WithContext(ctx).
		Where("seats_left > ?", 0).
		Where("route_min_lat IS NULL OR (route_min_lat <= ? AND route_max_lat >= ? AND route_min_lng <= ? AND route_max_lng >= ?)",
			q.Filter.MinLatAtMost, q.Filter.MaxLatAtLeast, q.Filter.MinLngAtMost, q.Filter.MaxLngAtLeast)
	return s.findRides(tx, q.Limit)
}

// FindRidesMissingBounds returns rides stored before route bounds existed
func (s *GormStore) FindRidesMissingBounds(ctx context.Context, limit int) ([]Ride, error) {
	return s.findRides(s.db.WithContext(ctx).Where("route_min_lat IS NULL AND route_bounds_unavailable = ?", false), limit)
}

// UpdateRideRoute sets distance and bounds and drops any embedded legacy route
func (s *GormStore) UpdateRideRoute(ctx context.Context, rideID string, distanceKm float64, bounds geo.BoundingBox) error {
	updates := map[string]interface{}{
		"route_distance_km": distanceKm,
		"route_points":      nil,
		"route_min_lat":     nil,
		"route_max_lat":     nil,
		"route_min_lng":     nil,
		"route_max_lng":     nil,
	}
	if !bounds.IsZero() {
		updates["route_min_lat"] = bounds.MinLat
		updates["route_max_lat"] = bounds.MaxLat
		updates["route_min_lng"] = bounds.MinLng
		updates["route_max_lng"] = bounds.MaxLng
		updates["route_bounds_unavailable"] = false
	}

	result := s.db.WithContext(ctx).Model(&RideModel{}).Where("id = ?", rideID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update ride route: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkBoundsUnavailable flags a ride so backfill skips it
func (s *GormStore) MarkBoundsUnavailable(ctx context.Context, rideID string) error {
	result := s.db.WithContext(ctx).Model(&RideModel{}).Where("id = ?", rideID).
		Update("route_bounds_unavailable", true)
	if result.Error != nil {
		return fmt.Errorf("failed to mark ride bounds unavailable: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRoute returns the route record for a ride
func (s *GormStore) GetRoute(ctx context.Context, rideID string) (*RouteRecord, error) {
	var model RouteModel
	if err := s.db.WithContext(ctx).Where("ride_id = ?", rideID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find route: %w", err)
	}
	return &RouteRecord{
		RideID:        model.RideID,
		SchemaVersion: model.SchemaVersion,
		Polyline:      model.RoutePolyline,
		LegacyPoints:  model.RoutePoints,
		DistanceKm:    model.RouteDistanceKm,
		PointCount:    model.PointCount,
		UpdatedAt:     model.UpdatedAt.UTC(),
	}, nil
}

// UpsertRoute replaces the route record for rec.RideID
func (s *GormStore) UpsertRoute(ctx context.Context, rec RouteRecord) error {
	if rec.RideID == "" {
		return fmt.Errorf("ride ID is required")
	}
	model := RouteModel{
		RideID:          rec.RideID,
		SchemaVersion:   rec.SchemaVersion,
		RoutePolyline:   rec.Polyline,
		RoutePoints:     rec.LegacyPoints,
		RouteDistanceKm: rec.DistanceKm,
		PointCount:      rec.PointCount,
		UpdatedAt:       rec.UpdatedAt,
	}
	if model.UpdatedAt.IsZero() {
		model.UpdatedAt = time.Now().UTC()
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ride_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"schema_version", "route_polyline", "route_points",
			"route_distance_km", "point_count", "updated_at",
		}),
	}).Create(&model).Error
	if err != nil {
		return fmt.Errorf("failed to upsert route: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool
func (s *GormStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) findRides(tx *gorm.DB, limit int) ([]Ride, error) {
	tx = tx.Order("departure_at ASC").Order("id ASC")
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var models []RideModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to query rides: %w", err)
	}

	rides := make([]Ride, len(models))
	for i := range models {
		rides[i] = models[i].toRide()
	}
	return rides, nil
}

func toRideModel(r *Ride) RideModel {
	m := RideModel{
		ID:              r.ID,
		FromName:        r.From,
		ToName:          r.To,
		FromLat:         r.FromPoint.Latitude,
		FromLng:         r.FromPoint.Longitude,
		ToLat:           r.ToPoint.Latitude,
		ToLng:           r.ToPoint.Longitude,
		DepartureAt:     r.DepartureAt.UTC(),
		PriceLkr:        r.PriceLkr,
		SeatsLeft:       r.SeatsLeft,
		DriverName:      r.DriverName,
		DriverRating:    r.DriverRating,
		RouteDistanceKm: r.RouteDistanceKm,
		RoutePoints:     r.LegacyRoutePoints,

		RouteBoundsUnavailable: r.BoundsUnavailable,
	}
	if r.Bounds != nil && !r.Bounds.IsZero() {
		b := *r.Bounds
		m.RouteMinLat, m.RouteMaxLat = &b.MinLat, &b.MaxLat
		m.RouteMinLng, m.RouteMaxLng = &b.MinLng, &b.MaxLng
	}
	return m
}

func (m RideModel) toRide() Ride {
	ride := Ride{
		ID:                m.ID,
		From:              m.FromName,
		To:                m.ToName,
		FromPoint:         geo.Point{Latitude: m.FromLat, Longitude: m.FromLng},
		ToPoint:           geo.Point{Latitude: m.ToLat, Longitude: m.ToLng},
		DepartureAt:       m.DepartureAt.UTC(),
		PriceLkr:          m.PriceLkr,
		SeatsLeft:         m.SeatsLeft,
		DriverName:        m.DriverName,
		DriverRating:      m.DriverRating,
		RouteDistanceKm:   m.RouteDistanceKm,
		LegacyRoutePoints: m.RoutePoints,
		BoundsUnavailable: m.RouteBoundsUnavailable,
	}
	if m.RouteMinLat != nil && m.RouteMaxLat != nil && m.RouteMinLng != nil && m.RouteMaxLng != nil {
		ride.Bounds = boundsOrNil(geo.BoundingBox{
			MinLat: *m.RouteMinLat,
			MaxLat: *m.RouteMaxLat,
			MinLng: *m.RouteMinLng,
			MaxLng: *m.RouteMaxLng,
		})
	}
	return ride
}
