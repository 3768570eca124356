package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/carpool-lk/server/internal/lib/geo"
	"github.com/carpool-lk/server/internal/store"
)

type seedPlace struct {
	name  string
	point geo.Point
}

type seedRide struct {
	stops        []seedPlace
	departureAt  time.Time
	priceLkr     float64
	seatsLeft    int
	driverName   string
	driverRating float64
}

var (
	seedColombo      = seedPlace{"Colombo", geo.Point{Latitude: 6.9271, Longitude: 79.8612}}
	seedKandy        = seedPlace{"Kandy", geo.Point{Latitude: 7.2906, Longitude: 80.6337}}
	seedGalle        = seedPlace{"Galle", geo.Point{Latitude: 6.0535, Longitude: 80.221}}
	seedNegombo      = seedPlace{"Negombo", geo.Point{Latitude: 7.2083, Longitude: 79.8358}}
	seedElla         = seedPlace{"Ella", geo.Point{Latitude: 6.8667, Longitude: 81.0466}}
	seedKurunegala   = seedPlace{"Kurunegala", geo.Point{Latitude: 7.4863, Longitude: 80.3623}}
	seedAnuradhapura = seedPlace{"Anuradhapura", geo.Point{Latitude: 8.3114, Longitude: 80.4037}}
	seedJaffna       = seedPlace{"Jaffna", geo.Point{Latitude: 9.6615, Longitude: 80.0255}}
)

var demoRides = []seedRide{
	{
		stops:        []seedPlace{seedColombo, seedKandy},
		departureAt:  time.Date(2026, 3, 1, 6, 30, 0, 0, time.UTC),
		priceLkr:     1800,
		seatsLeft:    2,
		driverName:   "Kasun Perera",
		driverRating: 4.8,
	},
	{
		stops:        []seedPlace{seedGalle, seedColombo},
		departureAt:  time.Date(2026, 3, 1, 7, 15, 0, 0, time.UTC),
		priceLkr:     1500,
		seatsLeft:    1,
		driverName:   "Nadeesha Silva",
		driverRating: 4.9,
	},
	{
		stops:        []seedPlace{seedNegombo, seedKandy, seedElla},
		departureAt:  time.Date(2026, 3, 2, 5, 50, 0, 0, time.UTC),
		priceLkr:     3400,
		seatsLeft:    3,
		driverName:   "Tharindu Jayasekara",
		driverRating: 4.7,
	},
	{
		stops:        []seedPlace{seedKurunegala, seedAnuradhapura, seedJaffna},
		departureAt:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		priceLkr:     3900,
		seatsLeft:    2,
		driverName:   "Iresha Fernando",
		driverRating: 4.6,
	},
}

// SeedRides stores the demo rides when the store holds no rides yet. It returns
// how many rides were inserted.
func (s *RideService) SeedRides(ctx context.Context) (int, error) {
	count, err := s.store.CountRides(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count rides: %w", err)
	}
	if count > 0 {
		return 0, nil
	}

	for _, seed := range demoRides {
		waypoints := make([]geo.Point, len(seed.stops))
		for i, stop := range seed.stops {
			waypoints[i] = stop.point
		}
		payload := s.BuildRidePayload(ctx, waypoints)

		first, last := seed.stops[0], seed.stops[len(seed.stops)-1]
		ride := store.Ride{
			ID:              s.newID(),
			From:            first.name,
			To:              last.name,
			FromPoint:       first.point,
			ToPoint:         last.point,
			DepartureAt:     seed.departureAt,
			PriceLkr:        seed.priceLkr,
			SeatsLeft:       seed.seatsLeft,
			DriverName:      seed.driverName,
			DriverRating:    seed.driverRating,
			RouteDistanceKm: payload.LengthKm,
		}
		if !payload.Bounds.IsZero() {
			b := payload.Bounds
			ride.Bounds = &b
		}

		if err := s.store.InsertRide(ctx, &ride); err != nil {
			return 0, fmt.Errorf("failed to seed ride %s to %s: %w", ride.From, ride.To, err)
		}
		if err := s.store.UpsertRoute(ctx, store.NewPolylineRecord(ride.ID, payload.Points, time.Now())); err != nil {
			return 0, fmt.Errorf("failed to seed route for ride %s: %w", ride.ID, err)
		}
	}

	s.logger.Info("seeded demo rides", zap.Int("count", len(demoRides)))
	return len(demoRides), nil
}
