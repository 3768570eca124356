package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carpool-lk/server/internal/config"
	"github.com/carpool-lk/server/internal/lib/geo"
	"github.com/carpool-lk/server/internal/store"
)

func TestBackfill_RunOnce(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	routes := NewRouteService(st, nil, nil)
	backfill := NewBackfillService(st, routes, config.BackfillConfig{BatchSize: 10}, nil)

	legacy := newLegacyRide("legacy-1")
	require.NoError(t, st.InsertRide(ctx, &legacy))

	// Valid route record whose ride lost its bounds
	orphan := newLegacyRide("orphan-1")
	require.NoError(t, st.InsertRide(ctx, &orphan))
	require.NoError(t, st.UpsertRoute(ctx, store.NewPolylineRecord("orphan-1", []geo.Point{galle, colombo}, fixedNow)))

	healthy := newLegacyRide("healthy-1")
	box := geo.RouteBounds([]geo.Point{colombo, kandy})
	healthy.Bounds = &box
	require.NoError(t, st.InsertRide(ctx, &healthy))

	repaired, err := backfill.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, repaired)

	for _, id := range []string{"legacy-1", "orphan-1"} {
		ride, err := st.GetRide(ctx, id)
		require.NoError(t, err)
		assert.NotNil(t, ride.Bounds, id)
	}

	orphanRide, err := st.GetRide(ctx, "orphan-1")
	require.NoError(t, err)
	assert.True(t, orphanRide.Bounds.Covers(galle))
	assert.InDelta(t, geo.Distance(galle, colombo), orphanRide.RouteDistanceKm, 0.01)

	repaired, err = backfill.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired)
}

func TestBackfill_BatchSize(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	routes := NewRouteService(st, nil, nil)
	backfill := NewBackfillService(st, routes, config.BackfillConfig{BatchSize: 1}, nil)

	for _, id := range []string{"a", "b", "c"} {
		ride := newLegacyRide(id)
		require.NoError(t, st.InsertRide(ctx, &ride))
	}

	for want := 3; want > 0; want-- {
		missing, err := st.FindRidesMissingBounds(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, missing, want)

		repaired, err := backfill.RunOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, repaired)
	}
}

func TestBackfill_UnusableRouteDoesNotBlockBatch(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	routes := NewRouteService(st, nil, nil)
	backfill := NewBackfillService(st, routes, config.BackfillConfig{BatchSize: 1}, nil)

	// Sparse legacy document: no coordinates at all, earliest departure
	sparse := store.Ride{
		ID:          "sparse",
		From:        store.DefaultPlaceName,
		To:          store.DefaultPlaceName,
		DepartureAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		SeatsLeft:   store.DefaultSeatsLeft,
	}
	require.NoError(t, st.InsertRide(ctx, &sparse))
	later := newLegacyRide("later")
	require.NoError(t, st.InsertRide(ctx, &later))

	repaired, err := backfill.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired, "a zero box is not a repair")

	repaired, err = backfill.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)

	for i := 0; i < 3; i++ {
		repaired, err = backfill.RunOnce(ctx)
		require.NoError(t, err)
		assert.Zero(t, repaired)
	}

	got, err := st.GetRide(ctx, "sparse")
	require.NoError(t, err)
	assert.Nil(t, got.Bounds)
	assert.True(t, got.BoundsUnavailable)

	got, err = st.GetRide(ctx, "later")
	require.NoError(t, err)
	assert.NotNil(t, got.Bounds)
	assert.False(t, got.BoundsUnavailable)

	missing, err := st.FindRidesMissingBounds(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestBackfill_FailedWriteIsRetried(t *testing.T) {
	ctx := context.Background()
	st := &failingStore{MemoryStore: store.NewMemoryStore(), updateRideErr: errors.New("write conflict")}
	routes := NewRouteService(st, nil, nil)
	backfill := NewBackfillService(st, routes, config.BackfillConfig{BatchSize: 10}, nil)

	ride := newLegacyRide("legacy-1")
	require.NoError(t, st.InsertRide(ctx, &ride))

	repaired, err := backfill.RunOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, repaired)

	got, err := st.GetRide(ctx, "legacy-1")
	require.NoError(t, err)
	assert.Nil(t, got.Bounds)
	assert.False(t, got.BoundsUnavailable, "transient failures are not marked")

	st.updateRideErr = nil
	repaired, err = backfill.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
}

func TestBackfill_StartStop(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	routes := NewRouteService(st, nil, nil)
	backfill := NewBackfillService(st, routes, config.BackfillConfig{Schedule: "@every 1h"}, nil)

	ride := newLegacyRide("legacy-1")
	require.NoError(t, st.InsertRide(ctx, &ride))

	assert.False(t, backfill.IsRunning())
	require.NoError(t, backfill.Start(ctx))
	assert.True(t, backfill.IsRunning())
	require.NoError(t, backfill.Start(ctx), "starting twice is a no-op")

	// Start runs one batch right away
	assert.Eventually(t, func() bool {
		r, err := st.GetRide(ctx, "legacy-1")
		return err == nil && r.Bounds != nil
	}, 5*time.Second, 20*time.Millisecond)

	backfill.Stop()
	assert.False(t, backfill.IsRunning())
	backfill.Stop()
}

func TestBackfill_InvalidSchedule(t *testing.T) {
	st := store.NewMemoryStore()
	backfill := NewBackfillService(st, NewRouteService(st, nil, nil), config.BackfillConfig{Schedule: "whenever"}, nil)

	err := backfill.Start(context.Background())
	require.Error(t, err)
	assert.False(t, backfill.IsRunning())
}
