package tflitemodel

import (
	"context"
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"spotdetect/internal/models"
)

// Pool holds several interpreters of the same network so that tiles can be
// inferred in parallel. Each interpreter serves one tile at a time.
type Pool struct {
	all  []*Model
	idle chan *Model

	edge int
	grid int
}

// LoadPool loads size interpreters of the model at path
func LoadPool(path string, size, threads int, log *slog.Logger) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size %d must be at least 1", size)
	}
	p := &Pool{idle: make(chan *Model, size)}
	for i := 0; i < size; i++ {
		m, err := Load(path, threads, log)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("interpreter %d: %w", i, err)
		}
		p.all = append(p.all, m)
		p.idle <- m
	}
	p.edge, p.grid = p.all[0].edge, p.all[0].grid
	return p, nil
}

func (p *Pool) InputEdge() int { return p.edge }

func (p *Pool) GridSize() int { return p.grid }

// ConcurrencySafe reports true: concurrent callers wait for a free interpreter
func (p *Pool) ConcurrencySafe() bool { return true }

// Infer runs the tile on the next free interpreter
func (p *Pool) Infer(ctx context.Context, tile mat.Matrix) (*models.Grid, error) {
	var m *Model
	select {
	case m = <-p.idle:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { p.idle <- m }()
	return m.Infer(ctx, tile)
}

// Close releases every interpreter. The pool must not be used afterwards.
func (p *Pool) Close() {
	for _, m := range p.all {
		m.Close()
	}
	p.all = nil
}
