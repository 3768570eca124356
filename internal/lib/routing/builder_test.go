package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carpool-lk/server/internal/lib/geo"
)

// MockRoadRouter is a mock implementation of RoadRouter
type MockRoadRouter struct {
	mock.Mock
}

func (m *MockRoadRouter) Route(ctx context.Context, waypoints []geo.Point) ([]geo.Point, error) {
	args := m.Called(ctx, waypoints)
	points, _ := args.Get(0).([]geo.Point)
	return points, args.Error(1)
}

// blockingRouter ignores its context and never answers in time
type blockingRouter struct{}

func (blockingRouter) Route(context.Context, []geo.Point) ([]geo.Point, error) {
	time.Sleep(time.Second)
	return []geo.Point{colombo, kandy}, nil
}

func TestBuilder_TooFewWaypoints(t *testing.T) {
	router := &MockRoadRouter{}
	builder := NewBuilder(router, nil)
	ctx := context.Background()

	built := builder.Build(ctx, []geo.Point{})
	assert.Empty(t, built.Points)
	assert.False(t, built.Degraded)

	built = builder.Build(ctx, []geo.Point{colombo})
	assert.Equal(t, []geo.Point{colombo}, built.Points)

	router.AssertNotCalled(t, "Route", mock.Anything, mock.Anything)
}

func TestBuilder_UsesRoadRoute(t *testing.T) {
	roadRoute := []geo.Point{colombo, {Latitude: 7.0873, Longitude: 80.0144}, kandy}

	router := &MockRoadRouter{}
	router.On("Route", mock.Anything, []geo.Point{colombo, kandy}).Return(roadRoute, nil)

	built := NewBuilder(router, nil).Build(context.Background(), []geo.Point{colombo, kandy})
	assert.Equal(t, roadRoute, built.Points, "road route is used verbatim")
	assert.False(t, built.Degraded)
	router.AssertExpectations(t)
}

func TestBuilder_FallbackOnError(t *testing.T) {
	router := &MockRoadRouter{}
	router.On("Route", mock.Anything, mock.Anything).Return(nil, errors.New("API error 503"))

	built := NewBuilder(router, nil).Build(context.Background(), []geo.Point{colombo, kandy})
	assert.True(t, built.Degraded)
	assert.Equal(t, geo.Interpolate(colombo, kandy, DefaultStepsPerLeg), built.Points)
}

func TestBuilder_FallbackOnDegenerateRoute(t *testing.T) {
	router := &MockRoadRouter{}
	router.On("Route", mock.Anything, mock.Anything).Return([]geo.Point{colombo}, nil)

	built := NewBuilder(router, nil).Build(context.Background(), []geo.Point{colombo, kandy})
	assert.True(t, built.Degraded)
	assert.Len(t, built.Points, DefaultStepsPerLeg+1)
}

func TestBuilder_FallbackOnTimeout(t *testing.T) {
	builder := NewBuilder(blockingRouter{}, nil, WithRouterTimeout(20*time.Millisecond))

	start := time.Now()
	built := builder.Build(context.Background(), []geo.Point{colombo, kandy})
	assert.Less(t, time.Since(start), 500*time.Millisecond, "timeout must not wait for the router")
	assert.True(t, built.Degraded)
	assert.Len(t, built.Points, DefaultStepsPerLeg+1)
}

func TestBuilder_NoRouter(t *testing.T) {
	built := NewBuilder(nil, nil, WithStepsPerLeg(4)).Build(context.Background(), []geo.Point{colombo, kandy, galle})
	assert.True(t, built.Degraded)
	assert.Len(t, built.Points, 9)
}

func TestFallbackRoute_DropsJunctionDuplicates(t *testing.T) {
	route := FallbackRoute([]geo.Point{colombo, kandy, galle}, 18)
	require.Len(t, route, 37)
	assert.Equal(t, colombo, route[0])
	assert.Equal(t, kandy, route[18], "junction appears exactly once")
	assert.NotEqual(t, route[18], route[19])
	assert.InDelta(t, galle.Latitude, route[36].Latitude, 1e-12)

	assert.Equal(t, []geo.Point{colombo}, FallbackRoute([]geo.Point{colombo}, 18))
}
