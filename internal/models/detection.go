package models

import (
	"gonum.org/v1/gonum/mat"
)

// Coordinate is a (y, x) pixel position. The frame it lives in (tile, plane or
// image) depends on who produced it.
type Coordinate struct {
	Y float64
	X float64
}

// CellPrediction is the model output for one grid cell of a tile
type CellPrediction struct {
	// P is the detection probability
	P float64

	// DY and DX are the sub-cell offsets as fractions of the cell size
	DY float64
	DX float64
}

// Grid channel layout of a model prediction, per cell
const (
	ChannelProbability = 0
	ChannelOffsetY     = 1
	ChannelOffsetX     = 2

	// GridChannels is the number of values the model emits per cell
	GridChannels = 3
)

// Grid is the raw prediction for a single tile: Rows x Cols cells with
// Channels values each, stored row-major with the channel axis innermost.
type Grid struct {
	Rows     int
	Cols     int
	Channels int
	Data     []float32
}

// NewGrid allocates a zeroed grid of size x size cells with the standard channel layout
func NewGrid(size int) *Grid {
	return &Grid{
		Rows:     size,
		Cols:     size,
		Channels: GridChannels,
		Data:     make([]float32, size*size*GridChannels),
	}
}

// Cell returns the prediction for the cell at (row, col)
func (g *Grid) Cell(row, col int) CellPrediction {
	base := (row*g.Cols + col) * g.Channels
	return CellPrediction{
		P:  float64(g.Data[base+ChannelProbability]),
		DY: float64(g.Data[base+ChannelOffsetY]),
		DX: float64(g.Data[base+ChannelOffsetX]),
	}
}

// SetCell stores a prediction for the cell at (row, col)
func (g *Grid) SetCell(row, col int, c CellPrediction) {
	base := (row*g.Cols + col) * g.Channels
	g.Data[base+ChannelProbability] = float32(c.P)
	g.Data[base+ChannelOffsetY] = float32(c.DY)
	g.Data[base+ChannelOffsetX] = float32(c.DX)
}

// PlaneTag identifies a plane by its channel, time and z index
type PlaneTag struct {
	C int
	T int
	Z int
}

// TaggedPlane is a single (y, x) plane of a larger image together with its position
type TaggedPlane struct {
	Tag   PlaneTag
	Plane *mat.Dense
}

// Detection is one located spot. Intensity is only meaningful when HasIntensity is set.
type Detection struct {
	PlaneTag
	Coordinate

	Intensity    float64
	HasIntensity bool
}
