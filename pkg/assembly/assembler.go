// Package assembly runs the per-plane pipeline over a whole image and gathers
// the detections into a single table.
package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"spotdetect/internal/models"
	"spotdetect/pkg/intensity"
	"spotdetect/pkg/logging"
	"spotdetect/pkg/tiling"
)

// Options configures an Assembler
type Options struct {
	// Radius enables intensity integration when non-nil
	Radius *int

	// Workers bounds the number of planes processed at once. Zero or less
	// means runtime.NumCPU().
	Workers int

	Logger *slog.Logger
}

// Assembler turns the planes of one image into a detection table
type Assembler struct {
	tiler   *tiling.Tiler
	radius  *int
	workers int
	log     *slog.Logger
}

// New returns an Assembler that locates spots in every plane with tiler
func New(tiler *tiling.Tiler, opts Options) *Assembler {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Assembler{
		tiler:   tiler,
		radius:  opts.Radius,
		workers: workers,
		log:     logging.Module(opts.Logger, "assembly"),
	}
}

// Columns returns the unpruned column set the assembler produces
func (a *Assembler) Columns() []Column {
	cols := []Column{ColumnC, ColumnT, ColumnZ, ColumnY, ColumnX}
	if a.radius != nil {
		cols = append(cols, ColumnIntensity)
	}
	return cols
}

// Assemble processes every plane and returns the pruned detection table.
//
// Rows follow plane order, then the order the tiler reports detections in.
// If any plane fails the whole image fails and no rows are returned.
func (a *Assembler) Assemble(ctx context.Context, planes []models.TaggedPlane) (*Table, error) {
	table, err := a.Collect(ctx, planes)
	if err != nil {
		return nil, err
	}
	pruned := table.Prune()
	a.log.Debug("table assembled",
		"planes", len(planes),
		"rows", len(pruned.Rows),
		"columns", pruned.Columns)
	return pruned, nil
}

// Collect is Assemble without the final column pruning
func (a *Assembler) Collect(ctx context.Context, planes []models.TaggedPlane) (*Table, error) {
	perPlane := make([][]models.Detection, len(planes))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i := range planes {
		i := i
		g.Go(func() error {
			rows, err := a.processPlane(gctx, planes[i])
			if err != nil {
				tag := planes[i].Tag
				return fmt.Errorf("plane c=%d t=%d z=%d: %w", tag.C, tag.T, tag.Z, err)
			}
			perPlane[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, rows := range perPlane {
		total += len(rows)
	}
	all := make([]models.Detection, 0, total)
	for _, rows := range perPlane {
		all = append(all, rows...)
	}
	return &Table{Columns: a.Columns(), Rows: all}, nil
}

func (a *Assembler) processPlane(ctx context.Context, p models.TaggedPlane) ([]models.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	coords, err := a.tiler.Process(ctx, p.Plane)
	if err != nil {
		return nil, err
	}

	var values []float64
	if a.radius != nil {
		values = intensity.Integrate(p.Plane, coords, *a.radius)
	}

	rows := make([]models.Detection, len(coords))
	for i, c := range coords {
		rows[i] = models.Detection{PlaneTag: p.Tag, Coordinate: c}
		if values != nil {
			rows[i].Intensity = values[i]
			rows[i].HasIntensity = true
		}
	}
	return rows, nil
}
