package routing

import (
	"context"

	"go.uber.org/zap"

	"github.com/carpool-lk/server/internal/lib/geo"
)

// CorridorMatcher runs the precise phase of corridor search over prefiltered
// candidates. It holds no state between calls and is safe for concurrent use.
type CorridorMatcher struct {
	logger *zap.Logger
}

// NewCorridorMatcher creates a CorridorMatcher
func NewCorridorMatcher(logger *zap.Logger) *CorridorMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CorridorMatcher{logger: logger}
}

// Match tests a single route: both points must be within the corridor and the pickup
// must project strictly before the drop along the direction of travel. Routes with
// fewer than 2 points never match.
func (m *CorridorMatcher) Match(q CorridorQuery, route []geo.Point) (CorridorMatch, bool) {
	if len(route) < 2 {
		return CorridorMatch{}, false
	}

	pickup := geo.ProjectPointOnPolyline(q.Pickup, route)
	drop := geo.ProjectPointOnPolyline(q.Drop, route)

	if !pickup.Matchable() || !drop.Matchable() {
		return CorridorMatch{}, false
	}
	if pickup.ClosestDistanceKm > q.CorridorKm || drop.ClosestDistanceKm > q.CorridorKm {
		return CorridorMatch{}, false
	}
	if pickup.AlongDistanceKm >= drop.AlongDistanceKm {
		return CorridorMatch{}, false
	}

	return CorridorMatch{
		PickupDistanceKm: pickup.ClosestDistanceKm,
		DropDistanceKm:   drop.ClosestDistanceKm,
		PickupAlongKm:    pickup.AlongDistanceKm,
		DropAlongKm:      drop.AlongDistanceKm,
	}, true
}

// Scan walks candidate ride IDs in the given order, loading each route and keeping
// the matches until limit is reached. This is an early exit, not a ranking: the
// first limit order-preserving matches are returned. A candidate whose route cannot
// be loaded is skipped; only context cancellation aborts the scan.
func (m *CorridorMatcher) Scan(ctx context.Context, q CorridorQuery, candidateIDs []string, loader RouteLoader, limit int) ([]MatchResult, error) {
	if limit <= 0 {
		return []MatchResult{}, nil
	}
	results := make([]MatchResult, 0, min(limit, len(candidateIDs)))

	for _, id := range candidateIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		route, err := loader.LoadRoute(ctx, id)
		if err != nil {
			m.logger.Warn("skipping candidate with unreadable route",
				zap.String("ride_id", id), zap.Error(err))
			continue
		}

		match, ok := m.Match(q, route)
		if !ok {
			continue
		}

		results = append(results, MatchResult{RideID: id, Match: match.Rounded()})
		if len(results) >= limit {
			break
		}
	}

	return results, nil
}
