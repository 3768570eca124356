package routing

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/carpool-lk/server/internal/lib/geo"
)

const (
	// DefaultStepsPerLeg is the interpolation sample count for each fallback leg
	DefaultStepsPerLeg = 18
	// DefaultRouterTimeout bounds a single call to the road router
	DefaultRouterTimeout = 10 * time.Second
)

// Builder produces dense route polylines, preferring a road router and falling back
// to per-leg straight-line interpolation when the router is absent or fails.
type Builder struct {
	router      RoadRouter
	timeout     time.Duration
	stepsPerLeg int
	logger      *zap.Logger
}

// BuilderOption configures a Builder
type BuilderOption func(*Builder)

// WithRouterTimeout sets the per-call road router timeout
func WithRouterTimeout(d time.Duration) BuilderOption {
	return func(b *Builder) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithStepsPerLeg sets the fallback interpolation sample count per leg
func WithStepsPerLeg(steps int) BuilderOption {
	return func(b *Builder) {
		if steps > 0 {
			b.stepsPerLeg = steps
		}
	}
}

// NewBuilder creates a Builder. router may be nil, in which case every route is
// built with the fallback.
func NewBuilder(router RoadRouter, logger *zap.Logger, opts ...BuilderOption) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Builder{
		router:      router,
		timeout:     DefaultRouterTimeout,
		stepsPerLeg: DefaultStepsPerLeg,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build turns ordered waypoints into a dense polyline. Fewer than 2 waypoints are
// returned unchanged. Router errors, timeouts and degenerate responses are never
// returned; they produce a fallback route flagged as Degraded.
func (b *Builder) Build(ctx context.Context, waypoints []geo.Point) BuiltRoute {
	if len(waypoints) < 2 {
		return BuiltRoute{Points: waypoints}
	}

	if b.router != nil {
		points, err := b.routeWithTimeout(ctx, waypoints)
		if err == nil && len(points) > 1 {
			return BuiltRoute{Points: points}
		}

		fields := []zap.Field{zap.Int("waypoints", len(waypoints))}
		if err != nil {
			fields = append(fields, zap.Error(err))
		} else {
			fields = append(fields, zap.Int("points", len(points)))
		}
		b.logger.Warn("road router unavailable, using straight-line fallback", fields...)
	}

	return BuiltRoute{
		Points:   FallbackRoute(waypoints, b.stepsPerLeg),
		Degraded: true,
	}
}

func (b *Builder) routeWithTimeout(ctx context.Context, waypoints []geo.Point) ([]geo.Point, error) {
	routeCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	// Routers that ignore ctx must not hold up the fallback
	done := make(chan routeResult, 1)
	go func() {
		points, err := b.router.Route(routeCtx, waypoints)
		done <- routeResult{points: points, err: err}
	}()

	select {
	case res := <-done:
		return res.points, res.err
	case <-routeCtx.Done():
		return nil, routeCtx.Err()
	}
}

type routeResult struct {
	points []geo.Point
	err    error
}

// FallbackRoute interpolates each consecutive waypoint pair with steps samples and
// joins the legs without repeating the shared junction point.
func FallbackRoute(waypoints []geo.Point, steps int) []geo.Point {
	if len(waypoints) <= 1 {
		return waypoints
	}

	route := make([]geo.Point, 0, (len(waypoints)-1)*steps+1)
	for i := 0; i < len(waypoints)-1; i++ {
		leg := geo.Interpolate(waypoints[i], waypoints[i+1], steps)
		if i > 0 {
			leg = leg[1:]
		}
		route = append(route, leg...)
	}
	return route
}
