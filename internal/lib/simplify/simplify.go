// Package simplify reduces dense route polylines to a bounded number of points.
package simplify

import (
	"github.com/carpool-lk/server/internal/lib/geo"
)

const (
	// DefaultToleranceKm is the deviation tolerance used when none is configured
	DefaultToleranceKm = 0.15
	// DefaultMaxPoints caps simplified output when none is configured
	DefaultMaxPoints = 240
)

// Simplify runs Ramer-Douglas-Peucker over points with toleranceKm, then uniformly
// subsamples the result if it still exceeds maxPoints. The first and last input
// points are always kept and order is preserved. Inputs of 2 or fewer points are
// returned unchanged.
func Simplify(points []geo.Point, toleranceKm float64, maxPoints int) []geo.Point {
	if len(points) <= 2 {
		return points
	}

	reduced := rdp(points, toleranceKm)
	return capPoints(reduced, maxPoints)
}

// SegmentDeviationKm is the perpendicular distance from p to the chord [start,end].
// A zero-length chord measures to start.
func SegmentDeviationKm(p, start, end geo.Point) float64 {
	return geo.ProjectPointToSegment(p, start, end).DistanceKm
}

type span struct {
	first, last int
}

// rdp marks kept indices with an explicit work stack so call depth stays constant
// on long, nearly collinear inputs.
func rdp(points []geo.Point, toleranceKm float64) []geo.Point {
	keep := make([]bool, len(points))
	keep[0] = true
	keep[len(points)-1] = true

	stack := []span{{first: 0, last: len(points) - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if s.last-s.first < 2 {
			continue
		}

		maxDeviation := 0.0
		index := -1
		for i := s.first + 1; i < s.last; i++ {
			if d := SegmentDeviationKm(points[i], points[s.first], points[s.last]); d > maxDeviation {
				maxDeviation = d
				index = i
			}
		}

		if index == -1 || maxDeviation <= toleranceKm {
			continue
		}

		keep[index] = true
		stack = append(stack, span{first: index, last: s.last}, span{first: s.first, last: index})
	}

	out := make([]geo.Point, 0, len(points))
	for i, k := range keep {
		if k {
			out = append(out, points[i])
		}
	}
	return out
}

// capPoints subsamples with stride ceil(len/maxPoints). The last point always
// survives; when appending it would exceed the cap it replaces the final sample.
func capPoints(points []geo.Point, maxPoints int) []geo.Point {
	if maxPoints < 2 {
		maxPoints = 2
	}
	if len(points) <= maxPoints {
		return points
	}

	stride := (len(points) + maxPoints - 1) / maxPoints
	out := make([]geo.Point, 0, maxPoints)
	for i := 0; i < len(points); i += stride {
		out = append(out, points[i])
	}

	lastIndex := len(points) - 1
	if lastIndex%stride == 0 {
		return out
	}
	if len(out) < maxPoints {
		return append(out, points[lastIndex])
	}
	out[len(out)-1] = points[lastIndex]
	return out
}
