package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/carpool-lk/server/internal/lib/geo"
	"github.com/carpool-lk/server/internal/lib/polyline"
	"github.com/carpool-lk/server/internal/lib/routing"
	"github.com/carpool-lk/server/internal/lib/simplify"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "point-distance":
		handlePointDistance()
	case "project":
		handleProject()
	case "encode":
		handleEncode()
	case "decode":
		handleDecode()
	case "simplify":
		handleSimplify()
	case "corridor":
		handleCorridor()
	case "help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func handlePointDistance() {
	fs := flag.NewFlagSet("point-distance", flag.ExitOnError)
	lat1 := fs.Float64("lat1", 0, "Latitude of first point")
	lng1 := fs.Float64("lng1", 0, "Longitude of first point")
	lat2 := fs.Float64("lat2", 0, "Latitude of second point")
	lng2 := fs.Float64("lng2", 0, "Longitude of second point")

	_ = fs.Parse(os.Args[2:])

	if *lat1 == 0 && *lng1 == 0 && *lat2 == 0 && *lng2 == 0 {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils point-distance --lat1 6.9271 --lng1 79.8612 --lat2 7.2906 --lng2 80.6337")
		fmt.Println("  (Distance between Colombo and Kandy)")
		os.Exit(1)
	}

	p1 := mustPoint(*lat1, *lng1)
	p2 := mustPoint(*lat2, *lng2)
	distance := geo.Distance(p1, p2)

	fmt.Printf("Distance between points:\n")
	fmt.Printf("  Point 1: (%.6f, %.6f)\n", p1.Latitude, p1.Longitude)
	fmt.Printf("  Point 2: (%.6f, %.6f)\n", p2.Latitude, p2.Longitude)
	fmt.Printf("  Distance: %.3f km\n", distance)
}

func handleProject() {
	fs := flag.NewFlagSet("project", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "Latitude of point")
	lng := fs.Float64("lng", 0, "Longitude of point")
	polylineStr := fs.String("polyline", "", "Encoded polyline string")
	coords := fs.String("coords", "", "Route as lat,lng;lat,lng;...")

	_ = fs.Parse(os.Args[2:])

	if *polylineStr == "" && *coords == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils project --lat 7.0 --lng 80.0 --coords \"6.9271,79.8612;7.2906,80.6337\"")
		fmt.Println("  (Where a point meets the Colombo to Kandy line)")
		os.Exit(1)
	}

	route := routeFromFlags(*polylineStr, *coords)
	point := mustPoint(*lat, *lng)
	projection := geo.ProjectPointOnPolyline(point, route)

	fmt.Printf("Projection onto route:\n")
	fmt.Printf("  Point: (%.6f, %.6f)\n", point.Latitude, point.Longitude)
	fmt.Printf("  Route: %d points, %.2f km\n", len(route), geo.RouteLengthKm(route))
	if !projection.Matchable() {
		fmt.Printf("  Route needs at least 2 points\n")
		return
	}
	fmt.Printf("  Distance from route: %.3f km\n", projection.ClosestDistanceKm)
	fmt.Printf("  Distance along route: %.3f km\n", projection.AlongDistanceKm)
}

func handleEncode() {
	fs := flag.NewFlagSet("encode", flag.ExitOnError)
	coords := fs.String("coords", "", "Route as lat,lng;lat,lng;...")

	_ = fs.Parse(os.Args[2:])

	if *coords == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils encode --coords \"6.9271,79.8612;7.2906,80.6337\"")
		os.Exit(1)
	}

	points, err := parseCoordinatePairs(*coords)
	if err != nil {
		log.Fatalf("Error parsing coordinates: %v", err)
	}

	fmt.Printf("Polyline encoded successfully:\n")
	fmt.Printf("  Points: %d\n", len(points))
	fmt.Printf("  Encoded: %s\n", polyline.Encode(points))
}

func handleDecode() {
	fs := flag.NewFlagSet("decode", flag.ExitOnError)
	polylineStr := fs.String("polyline", "", "Encoded polyline string to decode")
	verbose := fs.Bool("verbose", false, "Show all decoded points")

	_ = fs.Parse(os.Args[2:])

	if *polylineStr == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils decode --polyline \"encoded_string\" --verbose")
		os.Exit(1)
	}

	points, err := polyline.Decode(*polylineStr)
	if err != nil {
		log.Fatalf("Error decoding polyline: %v", err)
	}

	fmt.Printf("Polyline decoded successfully:\n")
	fmt.Printf("  Input: %s\n", *polylineStr)
	fmt.Printf("  Points: %d\n", len(points))
	fmt.Printf("  Length: %.2f km\n", geo.RouteLengthKm(points))

	if len(points) > 0 {
		fmt.Printf("  Start: (%.6f, %.6f)\n", points[0].Latitude, points[0].Longitude)
		if len(points) > 1 {
			fmt.Printf("  End: (%.6f, %.6f)\n", points[len(points)-1].Latitude, points[len(points)-1].Longitude)
		}
	}

	if *verbose && len(points) > 0 {
		fmt.Printf("  All points:\n")
		for i, point := range points {
			fmt.Printf("    %d: (%.6f, %.6f)\n", i+1, point.Latitude, point.Longitude)
		}
	}
}

func handleSimplify() {
	fs := flag.NewFlagSet("simplify", flag.ExitOnError)
	polylineStr := fs.String("polyline", "", "Encoded polyline string")
	coords := fs.String("coords", "", "Route as lat,lng;lat,lng;...")
	tolerance := fs.Float64("tolerance", simplify.DefaultToleranceKm, "Tolerance in km")
	maxPoints := fs.Int("max-points", simplify.DefaultMaxPoints, "Maximum points kept")

	_ = fs.Parse(os.Args[2:])

	if *polylineStr == "" && *coords == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils simplify --polyline \"encoded_string\" --tolerance 0.1 --max-points 220")
		os.Exit(1)
	}

	route := routeFromFlags(*polylineStr, *coords)
	simplified := simplify.Simplify(route, *tolerance, *maxPoints)

	fmt.Printf("Route simplified:\n")
	fmt.Printf("  Input: %d points, %.2f km\n", len(route), geo.RouteLengthKm(route))
	fmt.Printf("  Output: %d points, %.2f km\n", len(simplified), geo.RouteLengthKm(simplified))
	fmt.Printf("  Encoded: %s\n", polyline.Encode(simplified))
}

func handleCorridor() {
	fs := flag.NewFlagSet("corridor", flag.ExitOnError)
	pickupLat := fs.Float64("pickup-lat", 0, "Pickup latitude")
	pickupLng := fs.Float64("pickup-lng", 0, "Pickup longitude")
	dropLat := fs.Float64("drop-lat", 0, "Drop latitude")
	dropLng := fs.Float64("drop-lng", 0, "Drop longitude")
	corridorKm := fs.Float64("corridor", 5, "Corridor width in km")
	polylineStr := fs.String("polyline", "", "Encoded polyline string")
	coords := fs.String("coords", "", "Route as lat,lng;lat,lng;...")

	_ = fs.Parse(os.Args[2:])

	if *polylineStr == "" && *coords == "" {
		fmt.Println("Example usage:")
		fmt.Println("  test-geo-utils corridor --pickup-lat 6.95 --pickup-lng 79.9 --drop-lat 7.28 --drop-lng 80.6 \\")
		fmt.Println("      --coords \"6.9271,79.8612;7.2906,80.6337\" --corridor 5")
		os.Exit(1)
	}

	route := routeFromFlags(*polylineStr, *coords)
	q := routing.CorridorQuery{
		Pickup:     mustPoint(*pickupLat, *pickupLng),
		Drop:       mustPoint(*dropLat, *dropLng),
		CorridorKm: *corridorKm,
	}

	filter := q.Filter()
	bounds := geo.RouteBounds(route)
	latBuffer, lngBuffer := q.Buffers()

	fmt.Printf("Corridor analysis:\n")
	fmt.Printf("  Route: %d points, %.2f km\n", len(route), geo.RouteLengthKm(route))
	fmt.Printf("  Buffers: %.4f deg lat, %.4f deg lng\n", latBuffer, lngBuffer)
	fmt.Printf("  Passes prefilter: %t\n", filter.Admits(bounds))

	match, ok := routing.NewCorridorMatcher(zap.NewNop()).Match(q, route)
	if !ok {
		fmt.Printf("  Match: no\n")
		return
	}
	match = match.Rounded()
	fmt.Printf("  Match: yes\n")
	fmt.Printf("  Pickup: %.2f km from route\n", match.PickupDistanceKm)
	fmt.Printf("  Drop: %.2f km from route\n", match.DropDistanceKm)
}

func printUsage() {
	fmt.Printf(`test-geo-utils - Route geometry testing tool

USAGE:
    test-geo-utils <command> [options]

COMMANDS:
    point-distance      Great-circle distance between two points
    project             Project a point onto a route
    encode              Encode coordinates as a polyline
    decode              Decode a polyline to coordinates
    simplify            Compress a route with the stored-route settings
    corridor            Check whether a pickup and drop lie along a route
    help                Show this help message

EXAMPLES:
    # Distance between Colombo and Kandy
    test-geo-utils point-distance --lat1 6.9271 --lng1 79.8612 --lat2 7.2906 --lng2 80.6337

    # Pickup in Kadawatha, drop in Peradeniya, on the Colombo to Kandy line
    test-geo-utils corridor --pickup-lat 7.0 --pickup-lng 79.95 --drop-lat 7.27 --drop-lng 80.6 \
        --coords "6.9271,79.8612;7.2906,80.6337"
`)
}

func routeFromFlags(polylineStr, coords string) []geo.Point {
	if polylineStr != "" {
		points, err := polyline.Decode(polylineStr)
		if err != nil {
			log.Fatalf("Error decoding polyline: %v", err)
		}
		return points
	}
	points, err := parseCoordinatePairs(coords)
	if err != nil {
		log.Fatalf("Error parsing coordinates: %v", err)
	}
	return points
}

func mustPoint(lat, lng float64) geo.Point {
	p, err := geo.NewPoint(lat, lng)
	if err != nil {
		log.Fatalf("Invalid point: %v", err)
	}
	return p
}

// Helper function to parse coordinate pairs from string
func parseCoordinatePairs(coordStr string) ([]geo.Point, error) {
	if coordStr == "" {
		return nil, fmt.Errorf("empty coordinate string")
	}

	pairs := strings.Split(coordStr, ";")
	points := make([]geo.Point, 0, len(pairs))

	for _, pair := range pairs {
		coords := strings.Split(strings.TrimSpace(pair), ",")
		if len(coords) != 2 {
			return nil, fmt.Errorf("invalid coordinate pair: %s", pair)
		}

		lat, err := strconv.ParseFloat(strings.TrimSpace(coords[0]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid latitude: %s", coords[0])
		}

		lng, err := strconv.ParseFloat(strings.TrimSpace(coords[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid longitude: %s", coords[1])
		}

		points = append(points, mustPoint(lat, lng))
	}

	return points, nil
}
