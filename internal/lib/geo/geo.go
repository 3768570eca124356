package geo

import (
	"errors"
	"math"
)

const (
	// EarthRadiusKm is the mean Earth radius used by the haversine formula
	EarthRadiusKm = 6371.0

	// Local equirectangular scale factors in km per degree
	kmPerDegreeLng = 111.32
	kmPerDegreeLat = 110.574

	minLngScale = 1e-6
)

// ErrInvalidCoordinate is returned by NewPoint for out-of-range input
var ErrInvalidCoordinate = errors.New("invalid coordinates: latitude must be [-90, 90], longitude must be [-180, 180]")

// NewPoint creates a Point from latitude and longitude values with validation
func NewPoint(latitude, longitude float64) (Point, error) {
	point := Point{Latitude: latitude, Longitude: longitude}
	if !isValidCoordinate(point) {
		return Point{}, ErrInvalidCoordinate
	}
	return point, nil
}

// Distance calculates great-circle distance between two points in km using the haversine formula
func Distance(a, b Point) float64 {
	if a == b {
		return 0
	}

	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dlat := lat2 - lat1
	dlng := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlng/2)*math.Sin(dlng/2)

	// Rounding can push h just outside [0,1] for antipodal points
	h = math.Min(1, math.Max(0, h))

	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(h))
}

// Interpolate returns steps+1 points linearly spaced from a to b, both included.
// steps is clamped to a minimum of 2.
func Interpolate(a, b Point, steps int) []Point {
	if steps < 2 {
		steps = 2
	}

	points := make([]Point, 0, steps+1)
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		points = append(points, Lerp(a, b, t))
	}
	return points
}

// ProjectPointToSegment projects p onto segment [a,b] using a local equirectangular
// approximation anchored at the mean latitude of the three points.
func ProjectPointToSegment(p, a, b Point) SegmentProjection {
	anchorLat := toRadians((p.Latitude + a.Latitude + b.Latitude) / 3)
	kx := kmPerDegreeLng * math.Cos(anchorLat)
	ky := kmPerDegreeLat

	ax, ay := a.Longitude*kx, a.Latitude*ky
	bx, by := b.Longitude*kx, b.Latitude*ky
	px, py := p.Longitude*kx, p.Latitude*ky

	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy

	t := 0.0
	if lenSq > 0 {
		t = ((px-ax)*dx + (py-ay)*dy) / lenSq
		t = math.Min(1, math.Max(0, t))
	}

	projX := ax + dx*t
	projY := ay + dy*t

	projected := Point{Latitude: projY / ky, Longitude: a.Longitude}
	if kx != 0 {
		projected.Longitude = projX / kx
	}

	return SegmentProjection{
		Projected:  projected,
		DistanceKm: Distance(p, projected),
		T:          t,
	}
}

// CumulativeDistances returns the running distance in km from the first point to each point
func CumulativeDistances(points []Point) []float64 {
	if len(points) == 0 {
		return []float64{}
	}

	cumulative := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		cumulative[i] = cumulative[i-1] + Distance(points[i-1], points[i])
	}
	return cumulative
}

// ProjectPointOnPolyline finds the closest segment of polyline to p and reports the
// perpendicular distance along with how far along the route the projection falls.
func ProjectPointOnPolyline(p Point, polyline []Point) PolylineProjection {
	if len(polyline) < 2 {
		return PolylineProjection{ClosestDistanceKm: math.Inf(1)}
	}

	cumulative := CumulativeDistances(polyline)
	best := PolylineProjection{ClosestDistanceKm: math.Inf(1)}

	for i := 0; i < len(polyline)-1; i++ {
		start, end := polyline[i], polyline[i+1]
		projection := ProjectPointToSegment(p, start, end)

		if projection.DistanceKm < best.ClosestDistanceKm {
			segmentLength := cumulative[i+1] - cumulative[i]
			best = PolylineProjection{
				ClosestDistanceKm: projection.DistanceKm,
				AlongDistanceKm:   cumulative[i] + segmentLength*projection.T,
			}
		}
	}

	return best
}

// Bounds computes the bounding box of points. Empty input yields the zero box.
func Bounds(points []Point) BoundingBox {
	if len(points) == 0 {
		return BoundingBox{}
	}

	box := BoundingBox{
		MinLat: math.Inf(1), MaxLat: math.Inf(-1),
		MinLng: math.Inf(1), MaxLng: math.Inf(-1),
	}
	for _, p := range points {
		box.MinLat = math.Min(box.MinLat, p.Latitude)
		box.MaxLat = math.Max(box.MaxLat, p.Latitude)
		box.MinLng = math.Min(box.MinLng, p.Longitude)
		box.MaxLng = math.Max(box.MaxLng, p.Longitude)
	}
	return box
}

// RouteBounds is Bounds for a stored route: fewer than 2 points has no usable bounds
func RouteBounds(points []Point) BoundingBox {
	if len(points) < 2 {
		return BoundingBox{}
	}
	return Bounds(points)
}

// CorridorBuffers converts a corridor width in km to approximate degree buffers at refLat
func CorridorBuffers(corridorKm, refLat float64) (latBuffer, lngBuffer float64) {
	latBuffer = corridorKm / kmPerDegreeLat

	lngScale := math.Abs(kmPerDegreeLng * math.Cos(toRadians(refLat)))
	if lngScale < minLngScale {
		lngScale = minLngScale
	}
	return latBuffer, corridorKm / lngScale
}

// RouteLengthKm sums the haversine length of every segment
func RouteLengthKm(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}

	total := 0.0
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

// Lerp returns the point at fraction t of the straight lat/lng line from a to b
func Lerp(a, b Point, t float64) Point {
	return Point{
		Latitude:  a.Latitude + (b.Latitude-a.Latitude)*t,
		Longitude: a.Longitude + (b.Longitude-a.Longitude)*t,
	}
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// isValidCoordinate validates latitude and longitude values
func isValidCoordinate(point Point) bool {
	return point.Latitude >= -90 && point.Latitude <= 90 &&
		point.Longitude >= -180 && point.Longitude <= 180
}
