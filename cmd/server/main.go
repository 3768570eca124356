package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/dpup/prefab"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/carpool-lk/server/internal/cache"
	"github.com/carpool-lk/server/internal/clients/google"
	"github.com/carpool-lk/server/internal/clients/nominatim"
	"github.com/carpool-lk/server/internal/clients/osrm"
	"github.com/carpool-lk/server/internal/config"
	"github.com/carpool-lk/server/internal/events"
	"github.com/carpool-lk/server/internal/handler"
	"github.com/carpool-lk/server/internal/lib/geocode"
	"github.com/carpool-lk/server/internal/lib/routing"
	"github.com/carpool-lk/server/internal/services"
	"github.com/carpool-lk/server/internal/store"
)

func main() {
	// Load configuration using Prefab's config system
	appConfig := loadConfig()

	logger := newLogger(appConfig)
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	rideStore, err := openStore(ctx, appConfig.Store, logger.Named("store"))
	if err != nil {
		log.Fatalf("Failed to open %s store: %v", appConfig.Store.Driver, err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = rideStore.Close(closeCtx)
	}()

	if err := rideStore.EnsureIndexes(ctx); err != nil {
		log.Fatalf("Failed to ensure store indexes: %v", err)
	}

	publisher := newPublisher(appConfig.Events, logger.Named("events"))
	defer func() { _ = publisher.Close() }()

	geoCache := cache.NewCache(appConfig.Geocoding.CacheTTL, time.Hour)
	geocoder := geocode.NewResolver(newSearcher(appConfig.Geocoding), geoCache, logger.Named("geocode"),
		geocode.WithCacheTTL(appConfig.Geocoding.CacheTTL))

	builder := routing.NewBuilder(newRoadRouter(appConfig.Routing), logger.Named("routing"),
		routing.WithRouterTimeout(appConfig.Routing.Timeout),
		routing.WithStepsPerLeg(appConfig.Routing.StepsPerLeg))

	routeService := services.NewRouteService(rideStore, publisher, logger.Named("routes"),
		services.WithCompression(appConfig.Rides.ToleranceKm, appConfig.Rides.MaxPoints),
		services.WithRepairStepsPerLeg(appConfig.Routing.StepsPerLeg))
	rideService := services.NewRideService(rideStore, geocoder, builder, routeService, publisher,
		appConfig.Rides, logger.Named("rides"))

	if appConfig.Rides.SeedDemo {
		seeded, err := rideService.SeedRides(ctx)
		if err != nil {
			log.Printf("Failed to seed demo rides: %v", err)
		} else if seeded > 0 {
			log.Printf("Seeded %d demo rides", seeded)
		}
	}

	if appConfig.Backfill.Enabled {
		backfill := services.NewBackfillService(rideStore, routeService, appConfig.Backfill, logger.Named("backfill"))
		if err := backfill.Start(ctx); err != nil {
			log.Printf("Failed to start route backfill: %v", err)
		}
		defer backfill.Stop()
	}

	log.Printf("Carpool API server starting")
	log.Printf("Store: %s, routing: %s, geocoding enabled: %t",
		appConfig.Store.Driver, appConfig.Routing.Provider, appConfig.Geocoding.Enabled)

	if !appConfig.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(rideService, geocoder, appConfig.Rides, appConfig.Geocoding, logger.Named("http"))

	// Create Prefab server with GRPC reflection enabled
	// Server configuration (port, etc.) will be loaded from prefab.yaml/env vars
	server := prefab.New(
		prefab.WithGRPCReflection(),
		prefab.WithHTTPHandlerFunc("/v1/", router.ServeHTTP),
		prefab.WithHTTPHandlerFunc("/", homepageHandler),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server.ServiceRegistrar(), healthServer)

	// Start the server (blocks until shutdown)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// loadConfig loads configuration using Prefab's config system
// Configuration is loaded from prefab.yaml and environment variables with PF__ prefix
func loadConfig() *config.Config {
	appConfig := config.DefaultConfig()

	sections := []struct {
		key    string
		target interface{}
	}{
		{"server", &appConfig.Server},
		{"store", &appConfig.Store},
		{"routing", &appConfig.Routing},
		{"geocoding", &appConfig.Geocoding},
		{"rides", &appConfig.Rides},
		{"backfill", &appConfig.Backfill},
		{"events", &appConfig.Events},
	}
	for _, section := range sections {
		if err := prefab.Config.Unmarshal(section.key, section.target); err != nil {
			log.Fatalf("Failed to unmarshal %s section: %v", section.key, err)
		}
	}

	return appConfig
}

func newLogger(cfg *config.Config) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.IsDevelopment() {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	return logger
}

func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (store.Store, error) {
	switch cfg.Driver {
	case "mongo":
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return store.NewMongoStore(connectCtx, cfg.MongoURI, cfg.MongoDatabase, logger)
	case "postgres", "sqlite":
		db, err := store.OpenGorm(cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return store.NewGormStore(db), nil
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func newRoadRouter(cfg config.RoutingConfig) routing.RoadRouter {
	switch cfg.Provider {
	case "osrm":
		return osrm.NewClient(cfg.OSRMBaseURL)
	case "google":
		if cfg.GoogleAPIKey == "" {
			log.Printf("Google routing selected without an API key, using straight-line routes")
			return nil
		}
		return google.NewClient(cfg.GoogleAPIKey)
	default:
		return nil
	}
}

func newSearcher(cfg config.GeocodingConfig) geocode.Searcher {
	if !cfg.Enabled {
		return nil
	}
	return nominatim.NewClient(cfg.BaseURL, cfg.UserAgent, cfg.CountryCodes)
}

func newPublisher(cfg config.EventsConfig, logger *zap.Logger) events.Publisher {
	if len(cfg.Brokers) == 0 {
		return events.NopPublisher{}
	}
	kafka := events.NewKafkaPublisher(cfg.Brokers, cfg.Topic, cfg.Source, logger)
	return events.NewAsyncPublisher(kafka, cfg.QueueSize, cfg.PublishTimeout, logger)
}

// homepageHandler serves a simple HTML homepage at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	// Only handle the root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>carpool.lk</title>
    <style>
        body {
            font-family: 'Courier New', Consolas, monospace;
            background: #000;
            color: #0f0;
            padding: 20px;
            line-height: 1.4;
        }
        a { color: #0ff; text-decoration: none; }
        a:hover { text-decoration: underline; }
        pre { margin: 0; }
        .header { color: #ff0; }
    </style>
</head>
<body>
<pre>
<span class="header">carpool.lk</span>

Ride sharing API for Sri Lanka. Drivers publish intercity rides and riders
find the ones whose road route passes near their pickup and drop-off.

<span class="header">API Endpoints:</span>

Rides API:
  <a href="/v1/rides">GET  /v1/rides</a>                      - Upcoming rides
  POST /v1/rides                      - Publish a ride
  GET  /v1/rides/{id}                 - Ride details
  GET  /v1/rides/{id}/route.kml       - Ride route as KML
  GET  /v1/rides/search               - Rides passing pickup then drop-off

Places API:
  <a href="/v1/cities?q=ka">GET  /v1/cities?q=</a>                 - Place suggestions

<span class="header">Example Usage:</span>
  curl <a href="/v1/rides/search?pickup_lat=6.93&pickup_lng=79.86&drop_lat=7.29&drop_lng=80.63">"/v1/rides/search?pickup_lat=6.93&amp;pickup_lng=79.86&amp;drop_lat=7.29&amp;drop_lng=80.63"</a>
</pre>
</body>
</html>`

	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("Failed to write homepage HTML", "error", err)
	}
}
