package services

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/carpool-lk/server/internal/config"
	"github.com/carpool-lk/server/internal/lib/geo"
	"github.com/carpool-lk/server/internal/store"
)

// DefaultBackfillBatch bounds how many rides one backfill run repairs
const DefaultBackfillBatch = 50

// BackfillService periodically repairs rides whose route bounds were never
// computed, so they stop bypassing the search prefilter
type BackfillService struct {
	store    store.Store
	routes   *RouteService
	schedule string
	batch    int
	logger   *zap.Logger

	mu        sync.Mutex
	scheduler *cron.Cron
	running   bool
}

// NewBackfillService creates a new backfill service
func NewBackfillService(st store.Store, routes *RouteService, cfg config.BackfillConfig, logger *zap.Logger) *BackfillService {
	if logger == nil {
		logger = zap.NewNop()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = DefaultBackfillBatch
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = config.DefaultConfig().Backfill.Schedule
	}
	return &BackfillService{
		store:    st,
		routes:   routes,
		schedule: schedule,
		batch:    batch,
		logger:   logger,
	}
}

// RunOnce repairs one batch of rides missing bounds and returns how many now
// have stored bounds. Rides whose route collapses to a zero box are marked
// BoundsUnavailable so they stop taking up later batches.
func (b *BackfillService) RunOnce(ctx context.Context) (int, error) {
	rides, err := b.store.FindRidesMissingBounds(ctx, b.batch)
	if err != nil {
		return 0, fmt.Errorf("failed to find rides missing bounds: %w", err)
	}

	repaired := 0
	for i := range rides {
		if err := ctx.Err(); err != nil {
			return repaired, err
		}
		ok, err := b.backfillRide(ctx, &rides[i])
		if err != nil {
			b.logger.Warn("backfill: failed to repair route",
				zap.String("ride_id", rides[i].ID),
				zap.Error(err))
			continue
		}
		if ok {
			repaired++
		}
	}
	return repaired, nil
}

func (b *BackfillService) backfillRide(ctx context.Context, ride *store.Ride) (bool, error) {
	points, didRepair, err := b.routes.ReadOrRepair(ctx, ride)
	if err != nil {
		return false, err
	}

	bounds := geo.RouteBounds(points)
	if bounds.IsZero() {
		if err := b.store.MarkBoundsUnavailable(ctx, ride.ID); err != nil {
			return false, fmt.Errorf("failed to mark bounds unavailable: %w", err)
		}
		b.logger.Warn("backfill: route has no usable bounds",
			zap.String("ride_id", ride.ID),
			zap.Int("points", len(points)))
		return false, nil
	}

	if !didRepair {
		// The stored polyline was fine but the ride never got its bounds
		if err := b.restoreBounds(ctx, ride, bounds); err != nil {
			return false, fmt.Errorf("failed to restore bounds: %w", err)
		}
	}

	// ReadOrRepair logs write failures instead of returning them
	stored, err := b.store.GetRide(ctx, ride.ID)
	if err != nil {
		return false, err
	}
	return stored.Bounds != nil, nil
}

func (b *BackfillService) restoreBounds(ctx context.Context, ride *store.Ride, bounds geo.BoundingBox) error {
	rec, err := b.store.GetRoute(ctx, ride.ID)
	if err != nil {
		return err
	}
	return b.store.UpdateRideRoute(ctx, ride.ID, rec.DistanceKm, bounds)
}

// Start schedules backfill runs and performs one immediately
func (b *BackfillService) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(b.schedule, func() { b.run(ctx) }); err != nil {
		return fmt.Errorf("invalid backfill schedule %q: %w", b.schedule, err)
	}
	scheduler.Start()

	b.scheduler = scheduler
	b.running = true
	b.logger.Info("started route backfill", zap.String("schedule", b.schedule), zap.Int("batch", b.batch))

	go b.run(ctx)
	return nil
}

// Stop halts scheduling and waits for a running batch to finish
func (b *BackfillService) Stop() {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	scheduler := b.scheduler
	b.mu.Unlock()

	<-scheduler.Stop().Done()
	b.logger.Info("stopped route backfill")
}

// IsRunning returns whether backfill is scheduled
func (b *BackfillService) IsRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

func (b *BackfillService) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			err, _ := errors.ParseStack(debug.Stack())
			skipFrames := 3
			numFrames := 5
			logging.Errorw(ctx, "Route backfill: recovered from panic",
				"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	repaired, err := b.RunOnce(runCtx)
	if err != nil {
		b.logger.Error("route backfill failed", zap.Int("repaired", repaired), zap.Error(err))
		return
	}
	if repaired > 0 {
		b.logger.Info("route backfill completed", zap.Int("repaired", repaired))
	}
}
