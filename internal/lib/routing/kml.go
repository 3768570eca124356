package routing

import (
	"io"

	"github.com/twpayne/go-kml/v2"

	"github.com/carpool-lk/server/internal/lib/geo"
)

// WriteRouteKML writes points as a single-LineString KML document
func WriteRouteKML(w io.Writer, name, description string, points []geo.Point) error {
	coords := make([]kml.Coordinate, len(points))
	for i, p := range points {
		coords[i] = kml.Coordinate{Lon: p.Longitude, Lat: p.Latitude}
	}

	doc := kml.KML(
		kml.Document(
			kml.Name(name),
			kml.Placemark(
				kml.Name(name),
				kml.Description(description),
				kml.LineString(
					kml.Tessellate(true),
					kml.Coordinates(coords...),
				),
			),
		),
	)
	return doc.WriteIndent(w, "", "  ")
}
