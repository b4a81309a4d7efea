package tiling

// TileGrid is the decomposition of a padded plane into non-overlapping square
// tiles, numbered row-major.
type TileGrid struct {
	Edge    int // Pixel edge of every tile
	NumRows int // Number of tiles vertically
	NumCols int // Number of tiles horizontally
	Height  int // Height of the unpadded plane
	Width   int // Width of the unpadded plane
}

// NewTileGrid covers a height x width plane with tiles of the given edge
func NewTileGrid(height, width, edge int) TileGrid {
	return TileGrid{
		Edge:    edge,
		NumRows: NextMultiple(height, edge) / edge,
		NumCols: NextMultiple(width, edge) / edge,
		Height:  height,
		Width:   width,
	}
}

// Len returns the number of tiles
func (g TileGrid) Len() int {
	return g.NumRows * g.NumCols
}

// PaddedHeight is the plane height after padding, an exact multiple of Edge
func (g TileGrid) PaddedHeight() int {
	return g.NumRows * g.Edge
}

// PaddedWidth is the plane width after padding, an exact multiple of Edge
func (g TileGrid) PaddedWidth() int {
	return g.NumCols * g.Edge
}

// Index returns a single number that uniquely identifies the tile at (row, col)
func (g TileGrid) Index(row, col int) int {
	return row*g.NumCols + col
}

// Split turns an index created by Index back into its tile row and column
func (g TileGrid) Split(index int) (row, col int) {
	return index / g.NumCols, index % g.NumCols
}

// Origin returns the pixel position of the top-left corner of the tile at (row, col)
func (g TileGrid) Origin(row, col int) (y, x int) {
	return row * g.Edge, col * g.Edge
}

// NextMultiple rounds n up to the next multiple of m
func NextMultiple(n, m int) int {
	return (n + m - 1) / m * m
}

// PadAmount returns how many pixels must be appended to n to reach a multiple of edge
func PadAmount(n, edge int) int {
	return NextMultiple(n, edge) - n
}
