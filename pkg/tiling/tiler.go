// Package tiling runs a model over a single 2D plane.
//
// The plane is normalised by its maximum, reflect-padded at the bottom and
// right to a whole number of tiles, and split into non-overlapping tiles of the
// model's input edge. Each tile's prediction is decoded into tile-local
// coordinates, shifted by the tile origin and finally filtered so that nothing
// found purely inside the padding survives.
//
// Tiles may be inferred concurrently. Results are stored by tile index and
// concatenated in row-major tile order, so the output never depends on which
// goroutine finishes first.
package tiling

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"

	"spotdetect/internal/models"
	"spotdetect/pkg/decoder"
	"spotdetect/pkg/errdefs"
	"spotdetect/pkg/logging"
	"spotdetect/pkg/model"
)

// Options configures a Tiler
type Options struct {
	// TileEdge is the tile size in pixels. Zero means the model's input edge.
	TileEdge int

	// Threshold is the decoder's detection probability threshold
	Threshold float64

	// Workers bounds the number of tiles processed at once. Zero or less
	// means runtime.NumCPU().
	Workers int

	Logger *slog.Logger
}

// DefaultOptions returns the options used when none are given
func DefaultOptions() Options {
	return Options{
		Threshold: decoder.DefaultThreshold,
		Workers:   runtime.NumCPU(),
	}
}

// Tiler turns a plane into plane-local coordinates
type Tiler struct {
	model    model.Model
	decoder  *decoder.Decoder
	tileEdge int
	workers  int
	log      *slog.Logger
}

// New validates the model against the requested tile edge and returns a Tiler.
// Models that are not documented as concurrency safe are serialised.
func New(m model.Model, opts Options) (*Tiler, error) {
	if err := model.Validate(m); err != nil {
		return nil, err
	}

	edge := opts.TileEdge
	if edge == 0 {
		edge = m.InputEdge()
	}
	if !model.IsPowerOfTwo(edge) {
		return nil, errdefs.Shapef("tile edge %d is not a power of two", edge)
	}
	if edge != m.InputEdge() {
		return nil, errdefs.Shapef("tile edge %d does not match model input edge %d", edge, m.InputEdge())
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Tiler{
		model:    model.Serialize(m),
		decoder:  decoder.New(opts.Threshold),
		tileEdge: edge,
		workers:  workers,
		log:      logging.Module(opts.Logger, "tiling"),
	}, nil
}

// TileEdge returns the tile size in pixels
func (t *Tiler) TileEdge() int {
	return t.tileEdge
}

// Process runs the model over every tile of the plane and returns the detected
// coordinates in the plane's pixel frame. Every returned coordinate satisfies
// 0 <= Y < height and 0 <= X < width of the unpadded plane.
func (t *Tiler) Process(ctx context.Context, plane *mat.Dense) ([]models.Coordinate, error) {
	normalized, err := Normalize(plane)
	if err != nil {
		return nil, err
	}
	h, w := normalized.Dims()
	grid := NewTileGrid(h, w, t.tileEdge)
	padded := ReflectPad(normalized, t.tileEdge)

	perTile := make([][]models.Coordinate, grid.Len())
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for i := 0; i < grid.Len(); i++ {
		i := i
		g.Go(func() error {
			coords, err := t.processTile(gctx, padded, grid, i)
			if err != nil {
				return err
			}
			perTile[i] = coords
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]models.Coordinate, 0)
	dropped := 0
	for _, coords := range perTile {
		for _, c := range coords {
			if c.Y >= float64(h) || c.X >= float64(w) {
				dropped++
				continue
			}
			out = append(out, c)
		}
	}
	t.log.Debug("plane processed",
		"height", h, "width", w,
		"tiles", grid.Len(),
		"detections", len(out),
		"dropped_in_padding", dropped)
	return out, nil
}

// processTile infers one tile and returns its detections shifted into the
// padded plane's frame.
func (t *Tiler) processTile(ctx context.Context, padded *mat.Dense, grid TileGrid, index int) ([]models.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	row, col := grid.Split(index)
	y0, x0 := grid.Origin(row, col)
	tile := padded.Slice(y0, y0+grid.Edge, x0, x0+grid.Edge)

	if r, c := tile.Dims(); r != t.model.InputEdge() || c != t.model.InputEdge() {
		return nil, errdefs.Shapef("tile is %dx%d, model expects %d", r, c, t.model.InputEdge())
	}

	pred, err := t.model.Infer(ctx, tile)
	if err != nil {
		return nil, fmt.Errorf("inference on tile (%d, %d) failed: %w", row, col, err)
	}
	if pred == nil || pred.Rows != t.model.GridSize() || pred.Cols != t.model.GridSize() {
		return nil, errdefs.ModelShapef("tile (%d, %d) prediction does not match declared grid size %d",
			row, col, t.model.GridSize())
	}

	local, err := t.decoder.Decode(pred, grid.Edge)
	if err != nil {
		return nil, fmt.Errorf("decoding tile (%d, %d): %w", row, col, err)
	}

	for i := range local {
		local[i].Y += float64(y0)
		local[i].X += float64(x0)
	}
	return local, nil
}
