package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"spotdetect/pkg/errdefs"
)

// Array is a dense N-dimensional image stored row-major (last axis fastest)
type Array struct {
	// Shape holds the length of every axis
	Shape []int

	// Data holds the values; len(Data) equals the product of Shape
	Data []float64
}

// NewArray allocates a zeroed array with the given shape
func NewArray(shape ...int) *Array {
	s := append([]int(nil), shape...)
	return &Array{
		Shape: s,
		Data:  make([]float64, product(s)),
	}
}

// Rank returns the number of axes
func (a *Array) Rank() int {
	return len(a.Shape)
}

// Strides returns the row-major element strides of every axis
func (a *Array) Strides() []int {
	strides := make([]int, len(a.Shape))
	step := 1
	for i := len(a.Shape) - 1; i >= 0; i-- {
		strides[i] = step
		step *= a.Shape[i]
	}
	return strides
}

func (a *Array) offset(idx []int) int {
	if len(idx) != len(a.Shape) {
		panic(fmt.Sprintf("models: index rank %d does not match array rank %d", len(idx), len(a.Shape)))
	}
	off := 0
	for i, s := range a.Strides() {
		if idx[i] < 0 || idx[i] >= a.Shape[i] {
			panic(fmt.Sprintf("models: index %v out of range for shape %v", idx, a.Shape))
		}
		off += idx[i] * s
	}
	return off
}

// At returns the value at the given index
func (a *Array) At(idx ...int) float64 {
	return a.Data[a.offset(idx)]
}

// Set stores v at the given index
func (a *Array) Set(v float64, idx ...int) {
	a.Data[a.offset(idx)] = v
}

// ExpandDims returns a view of the array with a trailing singleton axis. The
// underlying data is shared since appending a length-1 axis does not change the layout.
func (a *Array) ExpandDims() *Array {
	shape := make([]int, len(a.Shape), len(a.Shape)+1)
	copy(shape, a.Shape)
	return &Array{Shape: append(shape, 1), Data: a.Data}
}

// MoveAxis returns a copy of the array with axis src moved to position dst,
// the remaining axes keeping their relative order.
func (a *Array) MoveAxis(src, dst int) *Array {
	n := len(a.Shape)
	if src < 0 || src >= n || dst < 0 || dst >= n {
		panic(fmt.Sprintf("models: cannot move axis %d to %d in rank %d array", src, dst, n))
	}
	if src == dst {
		return &Array{Shape: append([]int(nil), a.Shape...), Data: a.Data}
	}

	// perm[i] is the source axis that ends up at position i
	perm := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if i != src {
			perm = append(perm, i)
		}
	}
	perm = append(perm[:dst], append([]int{src}, perm[dst:]...)...)
	return a.Transpose(perm)
}

// Transpose returns a copy of the array with axes permuted so that output axis i
// is input axis perm[i].
func (a *Array) Transpose(perm []int) *Array {
	n := len(a.Shape)
	srcStrides := a.Strides()
	shape := make([]int, n)
	strides := make([]int, n)
	for i, p := range perm {
		shape[i] = a.Shape[p]
		strides[i] = srcStrides[p]
	}

	out := &Array{Shape: shape, Data: make([]float64, len(a.Data))}
	if len(out.Data) == 0 {
		return out
	}
	idx := make([]int, n)
	for i := range out.Data {
		off := 0
		for k := 0; k < n; k++ {
			off += idx[k] * strides[k]
		}
		out.Data[i] = a.Data[off]

		// advance the odometer, last axis fastest
		for k := n - 1; k >= 0; k-- {
			idx[k]++
			if idx[k] < shape[k] {
				break
			}
			idx[k] = 0
		}
	}
	return out
}

// Plane copies the trailing two axes at the given leading index into a matrix.
// The leading index must address every axis except the last two.
func (a *Array) Plane(lead ...int) (*mat.Dense, error) {
	n := len(a.Shape)
	if n < 2 || len(lead) != n-2 {
		return nil, fmt.Errorf("plane index %v does not fit shape %v", lead, a.Shape)
	}
	rows, cols := a.Shape[n-2], a.Shape[n-1]
	if rows == 0 || cols == 0 {
		return nil, errdefs.DegenerateInputf("plane of shape %dx%d is empty", rows, cols)
	}
	strides := a.Strides()
	off := 0
	for i, v := range lead {
		if v < 0 || v >= a.Shape[i] {
			return nil, fmt.Errorf("plane index %v out of range for shape %v", lead, a.Shape)
		}
		off += v * strides[i]
	}
	data := make([]float64, rows*cols)
	copy(data, a.Data[off:off+rows*cols])
	return mat.NewDense(rows, cols, data), nil
}

func product(shape []int) int {
	p := 1
	for _, s := range shape {
		p *= s
	}
	return p
}
