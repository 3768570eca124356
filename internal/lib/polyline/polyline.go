// Package polyline converts point sequences to and from the Google encoded
// polyline format (precision 1e5).
package polyline

import (
	"errors"
	"fmt"

	gopolyline "github.com/twpayne/go-polyline"

	"github.com/carpool-lk/server/internal/lib/geo"
)

// ErrMalformed is returned when an encoded string cannot be decoded
var ErrMalformed = errors.New("malformed encoded polyline")

// Encode encodes points as a Google polyline string. Empty input yields "".
func Encode(points []geo.Point) string {
	if len(points) == 0 {
		return ""
	}

	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(gopolyline.EncodeCoords(coords))
}

// Decode decodes a Google polyline string. "" yields an empty, non-nil slice.
func Decode(encoded string) ([]geo.Point, error) {
	if encoded == "" {
		return []geo.Point{}, nil
	}

	coords, rest, err := gopolyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}

	points := make([]geo.Point, len(coords))
	for i, coord := range coords {
		points[i] = geo.Point{Latitude: coord[0], Longitude: coord[1]}
	}
	return points, nil
}
