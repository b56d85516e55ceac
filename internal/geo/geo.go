// Package geo provides the flat-earth bearing and centroid-mean helpers
// shared by the consolidation, clustering, and matching stages.
package geo

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/camfusion/pipeline/internal/model"
)

// Bearing returns the flat-earth bearing from a to b, in degrees, within
// [0, 360).
func Bearing(a, b model.Point) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	deg := math.Atan2(dy, dx) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Mean returns the centroid (arithmetic mean) of a non-empty set of points,
// using gonum/floats' reduction for the per-axis sums.
func Mean(points []model.Point) model.Point {
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.X
		ys[i] = p.Y
	}
	n := float64(len(points))
	return model.Point{X: floats.Sum(xs) / n, Y: floats.Sum(ys) / n}
}
