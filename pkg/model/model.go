// Package model describes the inference capability the pipeline calls for every tile.
//
// A Model accepts one square tile of a fixed power-of-two edge and returns a
// grid prediction. The pipeline never looks inside the model; it only relies on
// the declared input edge and grid size, which are validated before any tile is
// processed.
package model

import (
	"context"
	"sync"

	"gonum.org/v1/gonum/mat"

	"spotdetect/internal/models"
	"spotdetect/pkg/errdefs"
)

// Model is the opaque inference capability
type Model interface {
	// InputEdge is the pixel edge of the square tiles the model accepts
	InputEdge() int

	// GridSize is the number of cells along each side of the output grid
	GridSize() int

	// Infer predicts a grid for one InputEdge x InputEdge tile
	Infer(ctx context.Context, tile mat.Matrix) (*models.Grid, error)
}

// ConcurrencySafe is implemented by models that may be invoked from several
// goroutines at once. Models that do not implement it are treated as unsafe.
type ConcurrencySafe interface {
	ConcurrencySafe() bool
}

// IsConcurrencySafe reports whether m documents itself as safe for concurrent calls
func IsConcurrencySafe(m Model) bool {
	cs, ok := m.(ConcurrencySafe)
	return ok && cs.ConcurrencySafe()
}

// IsPowerOfTwo reports whether n is a positive power of two
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Validate checks the model's declared shapes. The input edge must be a power
// of two and an exact multiple of the grid size.
func Validate(m Model) error {
	edge, grid := m.InputEdge(), m.GridSize()
	if !IsPowerOfTwo(edge) {
		return errdefs.ModelShapef("input edge %d is not a power of two", edge)
	}
	if grid <= 0 || grid > edge || edge%grid != 0 {
		return errdefs.ModelShapef("grid size %d does not evenly divide input edge %d", grid, edge)
	}
	return nil
}

// serialized guards a model that is not safe for concurrent use
type serialized struct {
	Model
	mu sync.Mutex
}

// Serialize returns m unchanged if it is concurrency safe, otherwise a wrapper
// that lets only one Infer call run at a time.
func Serialize(m Model) Model {
	if IsConcurrencySafe(m) {
		return m
	}
	if _, ok := m.(*serialized); ok {
		return m
	}
	return &serialized{Model: m}
}

func (s *serialized) Infer(ctx context.Context, tile mat.Matrix) (*models.Grid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Model.Infer(ctx, tile)
}

// Func adapts a plain function to the Model interface
type Func struct {
	Edge int
	Grid int

	// Safe marks the function as callable from several goroutines at once
	Safe bool

	Fn func(ctx context.Context, tile mat.Matrix) (*models.Grid, error)
}

func (f *Func) InputEdge() int        { return f.Edge }
func (f *Func) GridSize() int         { return f.Grid }
func (f *Func) ConcurrencySafe() bool { return f.Safe }

func (f *Func) Infer(ctx context.Context, tile mat.Matrix) (*models.Grid, error) {
	return f.Fn(ctx, tile)
}
