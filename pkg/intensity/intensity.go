// Package intensity integrates plane values around detected coordinates.
package intensity

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"spotdetect/internal/models"
)

// Integrate returns, for every coordinate, the sum of plane values in a square
// window of side 2*radius+1 centred on the rounded coordinate. The window is
// clipped at the plane border. With radius 0 only the nearest pixel is read.
// A rounded position beyond the border is clamped to the nearest pixel inside.
func Integrate(plane mat.Matrix, coords []models.Coordinate, radius int) []float64 {
	if radius < 0 {
		radius = 0
	}
	rows, cols := plane.Dims()
	out := make([]float64, len(coords))
	for i, c := range coords {
		y := clamp(round(c.Y), rows)
		x := clamp(round(c.X), cols)
		if radius == 0 {
			out[i] = plane.At(y, x)
			continue
		}
		y0, y1 := max(0, y-radius), min(rows, y+radius+1)
		x0, x1 := max(0, x-radius), min(cols, x+radius+1)
		out[i] = windowSum(plane, y0, y1, x0, x1)
	}
	return out
}

func windowSum(plane mat.Matrix, y0, y1, x0, x1 int) float64 {
	if d, ok := plane.(*mat.Dense); ok {
		return mat.Sum(d.Slice(y0, y1, x0, x1))
	}
	var sum float64
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			sum += plane.At(y, x)
		}
	}
	return sum
}

// round rounds half away from zero
func round(v float64) int {
	return int(math.Round(v))
}

func clamp(i, n int) int {
	return min(max(i, 0), n-1)
}
