package tiling

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"spotdetect/pkg/errdefs"
)

// Normalize returns a copy of the plane divided by its maximum value.
// Negative samples are clipped to zero so every value lies in [0, 1].
func Normalize(plane *mat.Dense) (*mat.Dense, error) {
	if plane == nil || plane.IsEmpty() {
		return nil, errdefs.DegenerateInputf("plane is empty")
	}
	peak := mat.Max(plane)
	if peak == 0 || math.IsNaN(peak) || math.IsInf(peak, 0) {
		return nil, errdefs.DegenerateInputf("plane maximum is %v", peak)
	}
	if peak < 0 {
		return nil, errdefs.DegenerateInputf("plane maximum %v is negative", peak)
	}

	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		return max(v/peak, 0)
	}, plane)
	return &out, nil
}

// ReflectPad extends the plane at the bottom and right so that both dimensions
// are multiples of edge. Padding mirrors the plane across its last row/column
// without repeating the edge pixel.
func ReflectPad(plane *mat.Dense, edge int) *mat.Dense {
	h, w := plane.Dims()
	ph, pw := NextMultiple(h, edge), NextMultiple(w, edge)
	if ph == h && pw == w {
		return plane
	}

	out := mat.NewDense(ph, pw, nil)
	for i := 0; i < ph; i++ {
		si := reflectIndex(i, h)
		for j := 0; j < pw; j++ {
			out.Set(i, j, plane.At(si, reflectIndex(j, w)))
		}
	}
	return out
}

// reflectIndex maps a position beyond [0, n) back into the plane by repeated
// mirroring about the first and last index.
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	i %= period
	if i < 0 {
		i += period
	}
	if i >= n {
		i = period - i
	}
	return i
}
