package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/carpool-lk/server/internal/clients/google"
	"github.com/carpool-lk/server/internal/clients/osrm"
	"github.com/carpool-lk/server/internal/lib/geo"
	"github.com/carpool-lk/server/internal/lib/polyline"
	"github.com/carpool-lk/server/internal/lib/routing"
	"github.com/carpool-lk/server/internal/lib/simplify"
)

func main() {
	var (
		provider  = flag.String("provider", "osrm", "Road router: osrm or google")
		apiKey    = flag.String("api-key", "", "Google Routes API key (or set GOOGLE_API_KEY env var)")
		osrmURL   = flag.String("osrm-url", "https://router.project-osrm.org", "OSRM base URL")
		waypoints = flag.String("waypoints", "6.927100,79.861200;7.290600,80.633700", "Waypoints as lat,lng;lat,lng;...")
		timeout   = flag.Duration("timeout", 10*time.Second, "Router timeout")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		fmt.Printf("Road Router Test Tool\n\n")
		fmt.Printf("Builds a ride route through the configured road router and compresses it.\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		flag.PrintDefaults()
		fmt.Printf("\nExamples:\n")
		fmt.Printf("  %s -provider=osrm\n", os.Args[0])
		fmt.Printf("  %s -provider=google -api-key=YOUR_KEY -waypoints=\"7.2083,79.8358;7.2906,80.6337;6.8667,81.0466\"\n", os.Args[0])
		return
	}

	points, err := parseWaypoints(*waypoints)
	if err != nil {
		log.Fatalf("Invalid waypoints: %v", err)
	}

	var router routing.RoadRouter
	switch *provider {
	case "osrm":
		router = osrm.NewClient(*osrmURL)
	case "google":
		key := *apiKey
		if key == "" {
			key = os.Getenv("GOOGLE_API_KEY")
		}
		if key == "" {
			log.Fatal("Google Routes API key required. Use -api-key flag or GOOGLE_API_KEY env var")
		}
		router = google.NewClient(key)
	default:
		log.Fatalf("Unknown provider %q", *provider)
	}

	logger, _ := zap.NewDevelopment()
	builder := routing.NewBuilder(router, logger, routing.WithRouterTimeout(*timeout))

	fmt.Printf("Road Router Test\n")
	fmt.Printf("================\n")
	fmt.Printf("Provider: %s\n", *provider)
	fmt.Printf("Waypoints: %d\n\n", len(points))

	start := time.Now()
	built := builder.Build(context.Background(), points)
	elapsed := time.Since(start)

	if built.Degraded {
		fmt.Printf("Router unavailable, straight-line fallback used (%s)\n", elapsed.Round(time.Millisecond))
	} else {
		fmt.Printf("Route built in %s\n", elapsed.Round(time.Millisecond))
	}
	fmt.Printf("Dense route: %d points, %.2f km\n", len(built.Points), geo.RouteLengthKm(built.Points))

	compressed := simplify.Simplify(built.Points, 0.1, 220)
	encoded := polyline.Encode(compressed)
	fmt.Printf("Stored route: %d points, %.2f km, %d polyline bytes\n",
		len(compressed), geo.RouteLengthKm(compressed), len(encoded))

	bounds := geo.RouteBounds(compressed)
	fmt.Printf("Bounds: lat %.4f..%.4f, lng %.4f..%.4f\n", bounds.MinLat, bounds.MaxLat, bounds.MinLng, bounds.MaxLng)
}

func parseWaypoints(s string) ([]geo.Point, error) {
	var points []geo.Point
	for _, pair := range strings.Split(s, ";") {
		parts := strings.Split(strings.TrimSpace(pair), ",")
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid coordinate pair: %s", pair)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude: %s", parts[0])
		}
		lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude: %s", parts[1])
		}
		p, err := geo.NewPoint(lat, lng)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if len(points) < 2 {
		return nil, fmt.Errorf("at least 2 waypoints are required")
	}
	return points, nil
}
