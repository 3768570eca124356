// Package geocode turns free-text Sri Lankan place names into coordinates.
package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/carpool-lk/server/internal/lib/geo"
)

// ErrNotFound is returned when no source knows a place
var ErrNotFound = errors.New("location not found")

const (
	// DefaultSuggestLimit is used when a caller passes a non-positive limit
	DefaultSuggestLimit = 8
	// MaxSuggestLimit caps suggestion lists
	MaxSuggestLimit = 10
)

// Location is a named, addressed point
type Location struct {
	Name    string    `json:"name"`
	Address string    `json:"address"`
	Point   geo.Point `json:"point"`
}

// Searcher is a remote place search such as Nominatim
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Location, error)
}

// Geocoder resolves a single place or a list of suggestions
type Geocoder interface {
	Resolve(ctx context.Context, name string) (Location, error)
	Suggest(ctx context.Context, query string, limit int) ([]Location, error)
}

// ClampSuggestLimit maps limit into [1, MaxSuggestLimit], defaulting non-positive values
func ClampSuggestLimit(limit int) int {
	if limit <= 0 {
		return DefaultSuggestLimit
	}
	return min(limit, MaxSuggestLimit)
}

func normalize(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}
