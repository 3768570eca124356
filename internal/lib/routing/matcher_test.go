package routing

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpool-lk/server/internal/lib/geo"
)

var (
	colombo      = geo.Point{Latitude: 6.9271, Longitude: 79.8612}
	kandy        = geo.Point{Latitude: 7.2906, Longitude: 80.6337}
	galle        = geo.Point{Latitude: 6.0535, Longitude: 80.221}
	jaffna       = geo.Point{Latitude: 9.6615, Longitude: 80.0255}
	anuradhapura = geo.Point{Latitude: 8.3114, Longitude: 80.4037}

	// ~50 km perpendicular from the middle of the Colombo-Kandy line
	offRoute = geo.Point{Latitude: 7.51793, Longitude: 80.05458}
)

type mapLoader map[string][]geo.Point

func (l mapLoader) LoadRoute(_ context.Context, rideID string) ([]geo.Point, error) {
	route, ok := l[rideID]
	if !ok {
		return nil, errors.New("route not found")
	}
	return route, nil
}

func TestCorridorMatcher_EndpointsMatch(t *testing.T) {
	matcher := NewCorridorMatcher(nil)
	route := []geo.Point{colombo, kandy}

	match, ok := matcher.Match(CorridorQuery{Pickup: colombo, Drop: kandy, CorridorKm: 1}, route)
	require.True(t, ok, "Colombo -> Kandy must match its own route")
	assert.InDelta(t, 0, match.PickupDistanceKm, 1e-6)
	assert.InDelta(t, 0, match.DropDistanceKm, 1e-6)
	assert.InDelta(t, 94.34, match.DropAlongKm, 0.05)
}

func TestCorridorMatcher_OrderViolation(t *testing.T) {
	matcher := NewCorridorMatcher(nil)
	route := []geo.Point{colombo, kandy}

	_, ok := matcher.Match(CorridorQuery{Pickup: kandy, Drop: colombo, CorridorKm: 1}, route)
	assert.False(t, ok, "reversed pickup and drop must not match")

	_, ok = matcher.Match(CorridorQuery{Pickup: kandy, Drop: kandy, CorridorKm: 1}, route)
	assert.False(t, ok, "equal along-distance must not match")
}

func TestCorridorMatcher_CorridorWidth(t *testing.T) {
	matcher := NewCorridorMatcher(nil)
	route := geo.Interpolate(colombo, kandy, 18)

	_, ok := matcher.Match(CorridorQuery{Pickup: offRoute, Drop: kandy, CorridorKm: 5}, route)
	assert.False(t, ok, "50 km off-route pickup must not match a 5 km corridor")

	match, ok := matcher.Match(CorridorQuery{Pickup: offRoute, Drop: kandy, CorridorKm: 60}, route)
	require.True(t, ok, "50 km off-route pickup must match a 60 km corridor")
	assert.InDelta(t, 50.2, match.PickupDistanceKm, 0.3)
	assert.Less(t, match.PickupAlongKm, match.DropAlongKm)
}

func TestCorridorMatcher_DegenerateRoute(t *testing.T) {
	matcher := NewCorridorMatcher(nil)
	q := CorridorQuery{Pickup: colombo, Drop: kandy, CorridorKm: 500}

	for _, route := range [][]geo.Point{nil, {colombo}} {
		_, ok := matcher.Match(q, route)
		assert.False(t, ok)
	}
}

func TestCorridorMatcher_Scan(t *testing.T) {
	matcher := NewCorridorMatcher(nil)
	ctx := context.Background()

	loader := mapLoader{
		"colombo-kandy":       geo.Interpolate(colombo, kandy, 18),
		"kandy-colombo":       geo.Interpolate(kandy, colombo, 18),
		"galle-colombo":       geo.Interpolate(galle, colombo, 18),
		"colombo-kandy-later": geo.Interpolate(colombo, kandy, 18),
		"corrupt":             {colombo},
	}
	candidates := []string{"kandy-colombo", "missing", "corrupt", "colombo-kandy", "galle-colombo", "colombo-kandy-later"}
	q := CorridorQuery{Pickup: colombo, Drop: kandy, CorridorKm: 1}

	results, err := matcher.Scan(ctx, q, candidates, loader, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "colombo-kandy", results[0].RideID, "results keep candidate order")
	assert.Equal(t, "colombo-kandy-later", results[1].RideID)

	// Early exit at the limit
	results, err = matcher.Scan(ctx, q, candidates, loader, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "colombo-kandy", results[0].RideID)

	results, err = matcher.Scan(ctx, q, candidates, loader, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCorridorMatcher_ScanRoundsDistances(t *testing.T) {
	matcher := NewCorridorMatcher(nil)
	loader := mapLoader{"ride": geo.Interpolate(colombo, kandy, 18)}
	q := CorridorQuery{Pickup: offRoute, Drop: kandy, CorridorKm: 60}

	results, err := matcher.Scan(context.Background(), q, []string{"ride"}, loader, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)

	pickup := results[0].Match.PickupDistanceKm
	assert.Equal(t, Round(pickup, 2), pickup)
}

func TestCorridorMatcher_ScanCancelled(t *testing.T) {
	matcher := NewCorridorMatcher(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := matcher.Scan(ctx, CorridorQuery{Pickup: colombo, Drop: kandy, CorridorKm: 1},
		[]string{"a"}, mapLoader{}, 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCorridorQuery_FilterAdmitsEveryMatch(t *testing.T) {
	matcher := NewCorridorMatcher(nil)
	rng := rand.New(rand.NewSource(3))
	cities := []geo.Point{colombo, kandy, galle, jaffna, anuradhapura}

	checked := 0
	for trial := 0; trial < 2000; trial++ {
		from := cities[rng.Intn(len(cities))]
		to := cities[rng.Intn(len(cities))]
		via := cities[rng.Intn(len(cities))]
		route := FallbackRoute([]geo.Point{from, via, to}, DefaultStepsPerLeg)

		a := jitter(rng, route[rng.Intn(len(route))], 0.1)
		b := jitter(rng, route[rng.Intn(len(route))], 0.1)
		q := CorridorQuery{Pickup: a, Drop: b, CorridorKm: 1 + rng.Float64()*15}

		if _, ok := matcher.Match(q, route); ok {
			checked++
			assert.True(t, q.Filter().Admits(geo.RouteBounds(route)),
				"prefilter rejected a matching route: %+v", q)
		}
	}
	assert.Greater(t, checked, 50, "property test should exercise real matches")
}

func TestCorridorQuery_FilterAtCorridorEdge(t *testing.T) {
	// Pickup due east of a north-south route, just inside a 5 km corridor
	route := []geo.Point{{Latitude: 6, Longitude: 80}, {Latitude: 9, Longitude: 80}}
	q := CorridorQuery{
		Pickup:     geo.Point{Latitude: 8.9, Longitude: 80.04551},
		Drop:       geo.Point{Latitude: 9, Longitude: 80},
		CorridorKm: 5,
	}

	_, ok := NewCorridorMatcher(nil).Match(q, route)
	require.True(t, ok)
	assert.True(t, q.Filter().Admits(geo.RouteBounds(route)))
}

func TestCorridorQuery_FilterRejectsDistantRoutes(t *testing.T) {
	q := CorridorQuery{Pickup: colombo, Drop: kandy, CorridorKm: 5}

	jaffnaRoute := geo.RouteBounds([]geo.Point{anuradhapura, jaffna})
	assert.False(t, q.Filter().Admits(jaffnaRoute))

	// A route ending short of Kandy cannot cover the drop
	partial := geo.RouteBounds([]geo.Point{colombo, geo.Lerp(colombo, kandy, 0.5)})
	assert.False(t, q.Filter().Admits(partial))
}

func TestCorridorQuery_Buffers(t *testing.T) {
	q := CorridorQuery{Pickup: colombo, Drop: kandy, CorridorKm: 5}
	latBuffer, lngBuffer := q.Buffers()

	expectedLat, expectedLng := geo.CorridorBuffers(5, (colombo.Latitude+kandy.Latitude)/2)
	assert.Equal(t, expectedLat, latBuffer)
	assert.Equal(t, expectedLng, lngBuffer)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 1.23, Round(1.2349, 2))
	assert.Equal(t, 94.3, Round(94.3354, 1))
	assert.Equal(t, 2.5, Round(2.46, 1))
	assert.Equal(t, 0.0, Round(0.004, 2))
}

func jitter(rng *rand.Rand, p geo.Point, degrees float64) geo.Point {
	return geo.Point{
		Latitude:  p.Latitude + (rng.Float64()*2-1)*degrees,
		Longitude: p.Longitude + (rng.Float64()*2-1)*degrees,
	}
}
