// Package decoder turns a model's per-tile grid prediction into pixel coordinates.
package decoder

import (
	"spotdetect/internal/models"
	"spotdetect/pkg/errdefs"
)

// DefaultThreshold is the probability a cell must exceed to count as a detection
const DefaultThreshold = 0.5

// Decoder converts grid predictions into tile-local coordinates
type Decoder struct {
	// Threshold is compared strictly: a cell is kept when P > Threshold
	Threshold float64
}

// New returns a decoder with the given probability threshold
func New(threshold float64) *Decoder {
	return &Decoder{Threshold: threshold}
}

// Decode returns one coordinate per cell whose probability exceeds the threshold.
// Coordinates are in the tile's pixel frame: the cell origin plus the predicted
// offset scaled to the cell size. Cells are visited row-major.
func (d *Decoder) Decode(grid *models.Grid, tileEdge int) ([]models.Coordinate, error) {
	cellSize, err := CellSize(grid, tileEdge)
	if err != nil {
		return nil, err
	}

	coords := make([]models.Coordinate, 0)
	for row := 0; row < grid.Rows; row++ {
		for col := 0; col < grid.Cols; col++ {
			cell := grid.Cell(row, col)
			if cell.P <= d.Threshold {
				continue
			}
			coords = append(coords, models.Coordinate{
				Y: float64(row)*cellSize + cell.DY*cellSize,
				X: float64(col)*cellSize + cell.DX*cellSize,
			})
		}
	}
	return coords, nil
}

// CellSize validates the grid geometry against the tile edge and returns the
// pixel size of one cell.
func CellSize(grid *models.Grid, tileEdge int) (float64, error) {
	if grid == nil {
		return 0, errdefs.Shapef("nil grid prediction")
	}
	if grid.Rows != grid.Cols {
		return 0, errdefs.Shapef("grid prediction is %dx%d, want square", grid.Rows, grid.Cols)
	}
	if grid.Rows <= 0 {
		return 0, errdefs.Shapef("grid prediction has no cells")
	}
	if grid.Channels != models.GridChannels {
		return 0, errdefs.Shapef("grid prediction has %d channels, want %d", grid.Channels, models.GridChannels)
	}
	if len(grid.Data) != grid.Rows*grid.Cols*grid.Channels {
		return 0, errdefs.Shapef("grid prediction holds %d values, want %d",
			len(grid.Data), grid.Rows*grid.Cols*grid.Channels)
	}
	if tileEdge <= 0 || tileEdge%grid.Rows != 0 {
		return 0, errdefs.Shapef("tile edge %d is not a multiple of grid size %d", tileEdge, grid.Rows)
	}
	return float64(tileEdge / grid.Rows), nil
}
