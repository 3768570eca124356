package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/carpool-lk/server/internal/cache"
	"github.com/carpool-lk/server/internal/clients/nominatim"
	"github.com/carpool-lk/server/internal/lib/geocode"
)

func main() {
	var (
		query   = flag.String("q", "Kandy", "Place to resolve")
		suggest = flag.Bool("suggest", false, "List suggestions instead of resolving one place")
		limit   = flag.Int("limit", geocode.DefaultSuggestLimit, "Suggestion limit")
		offline = flag.Bool("offline", false, "Skip Nominatim and use the built-in towns only")
		baseURL = flag.String("base-url", nominatim.DefaultBaseURL, "Nominatim base URL")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		fmt.Printf("Geocoding Test Tool\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Printf("\nExamples:\n")
		fmt.Printf("  %s -q \"Nuwara Eliya\"\n", os.Args[0])
		fmt.Printf("  %s -q ka -suggest -offline\n", os.Args[0])
		return
	}

	logger, _ := zap.NewDevelopment()

	var remote geocode.Searcher
	if !*offline {
		remote = nominatim.NewClient(*baseURL, "", "")
	}
	resolver := geocode.NewResolver(remote, cache.NewCache(time.Hour, 10*time.Minute), logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *suggest {
		results, err := resolver.Suggest(ctx, *query, *limit)
		if err != nil {
			log.Fatalf("Suggest failed: %v", err)
		}
		fmt.Printf("%d suggestions for %q:\n", len(results), *query)
		for i, loc := range results {
			fmt.Printf("  %d. %s (%.5f, %.5f)\n     %s\n", i+1, loc.Name, loc.Point.Latitude, loc.Point.Longitude, loc.Address)
		}
		return
	}

	loc, err := resolver.Resolve(ctx, *query)
	if err != nil {
		log.Fatalf("Resolve failed: %v", err)
	}
	fmt.Printf("Resolved %q:\n", *query)
	fmt.Printf("  Name: %s\n", loc.Name)
	fmt.Printf("  Address: %s\n", loc.Address)
	fmt.Printf("  Point: (%.6f, %.6f)\n", loc.Point.Latitude, loc.Point.Longitude)
}
