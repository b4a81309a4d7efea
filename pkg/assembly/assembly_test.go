package assembly

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"spotdetect/internal/models"
	"spotdetect/pkg/axes"
	"spotdetect/pkg/model"
	"spotdetect/pkg/tiling"
)

// centreModel reports one detection per tile, at the centre of a single-cell grid
func centreModel(edge int) *model.Func {
	return &model.Func{
		Edge: edge,
		Grid: 1,
		Fn: func(ctx context.Context, tile mat.Matrix) (*models.Grid, error) {
			g := models.NewGrid(1)
			g.SetCell(0, 0, models.CellPrediction{P: 1.0, DY: 0.5, DX: 0.5})
			return g, nil
		},
	}
}

func newAssembler(t *testing.T, m model.Model, radius *int, workers int) *Assembler {
	t.Helper()
	opts := tiling.DefaultOptions()
	opts.Workers = workers
	tl, err := tiling.New(m, opts)
	require.NoError(t, err)
	return New(tl, Options{Radius: radius, Workers: workers})
}

// filled returns an array of the given shape where every value is its storage index plus one
func filled(shape ...int) *models.Array {
	a := models.NewArray(shape...)
	for i := range a.Data {
		a.Data[i] = float64(i + 1)
	}
	return a
}

func intPtr(v int) *int { return &v }

// TestEndToEndTwoByTwoTiles runs a 2x2 tile image through the whole pipeline
func TestEndToEndTwoByTwoTiles(t *testing.T) {
	const edge = 16
	planes, err := axes.Normalize(filled(2*edge, 2*edge), axes.Descriptor{"y", "x"})
	require.NoError(t, err)

	table, err := newAssembler(t, centreModel(edge), nil, 2).Assemble(context.Background(), planes)
	require.NoError(t, err)

	assert.Equal(t, []Column{ColumnY, ColumnX}, table.Columns)
	var got []models.Coordinate
	for _, row := range table.Rows {
		got = append(got, row.Coordinate)
	}
	want := []models.Coordinate{{Y: 8, X: 8}, {Y: 8, X: 24}, {Y: 24, X: 8}, {Y: 24, X: 24}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("coordinates mismatch (-want +got):\n%s", diff)
	}
}

// TestPruneKeepsSpatialColumns verifies y and x survive even when every row is identical
func TestPruneKeepsSpatialColumns(t *testing.T) {
	table := &Table{
		Columns: []Column{ColumnC, ColumnT, ColumnZ, ColumnY, ColumnX},
		Rows: []models.Detection{
			{Coordinate: models.Coordinate{Y: 3, X: 4}},
			{Coordinate: models.Coordinate{Y: 3, X: 4}},
		},
	}
	assert.Equal(t, []Column{ColumnY, ColumnX}, table.Prune().Columns)

	empty := &Table{Columns: AllColumns}
	assert.Equal(t, []Column{ColumnY, ColumnX}, empty.Prune().Columns)
}

func TestPruneSinglePlaneImage(t *testing.T) {
	planes, err := axes.Normalize(filled(16, 16), axes.Descriptor{"y", "x"})
	require.NoError(t, err)

	table, err := newAssembler(t, centreModel(16), nil, 1).Assemble(context.Background(), planes)
	require.NoError(t, err)
	assert.Equal(t, []Column{ColumnY, ColumnX}, table.Columns)
	assert.False(t, table.HasColumn(ColumnC))
	require.Len(t, table.Rows, 1)
}

// TestMultiPlaneOrderingAndColumns verifies plane tags, row order and pruning across planes
func TestMultiPlaneOrderingAndColumns(t *testing.T) {
	const edge = 16
	// c=2, z=3, y=16, x=32
	planes, err := axes.Normalize(filled(2, 3, edge, 2*edge), axes.Descriptor{"c", "z", "y", "x"})
	require.NoError(t, err)

	table, err := newAssembler(t, centreModel(edge), nil, 4).Assemble(context.Background(), planes)
	require.NoError(t, err)
	assert.Equal(t, []Column{ColumnC, ColumnZ, ColumnY, ColumnX}, table.Columns)

	type key struct {
		C, Z int
		X    float64
	}
	var got []key
	for _, row := range table.Rows {
		assert.Equal(t, 0, row.T)
		assert.Equal(t, 8.0, row.Y)
		got = append(got, key{row.C, row.Z, row.X})
	}
	want := []key{
		{0, 0, 8}, {0, 0, 24}, {0, 1, 8}, {0, 1, 24}, {0, 2, 8}, {0, 2, 24},
		{1, 0, 8}, {1, 0, 24}, {1, 1, 8}, {1, 1, 24}, {1, 2, 8}, {1, 2, 24},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("row order mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrencyDoesNotChangeTable(t *testing.T) {
	planes, err := axes.Normalize(filled(3, 2, 40, 20), axes.Descriptor{"t", "z", "y", "x"})
	require.NoError(t, err)

	serial, err := newAssembler(t, centreModel(16), intPtr(1), 1).Assemble(context.Background(), planes)
	require.NoError(t, err)
	parallel, err := newAssembler(t, centreModel(16), intPtr(1), 8).Assemble(context.Background(), planes)
	require.NoError(t, err)
	if diff := cmp.Diff(serial, parallel); diff != "" {
		t.Errorf("tables differ (-serial +parallel):\n%s", diff)
	}
}

// TestIntensityColumn verifies the intensity column is present only when it varies
func TestIntensityColumn(t *testing.T) {
	planes, err := axes.Normalize(filled(32, 32), axes.Descriptor{"y", "x"})
	require.NoError(t, err)

	table, err := newAssembler(t, centreModel(16), intPtr(0), 1).Assemble(context.Background(), planes)
	require.NoError(t, err)
	assert.Equal(t, []Column{ColumnY, ColumnX, ColumnIntensity}, table.Columns)
	require.Len(t, table.Rows, 4)
	for _, row := range table.Rows {
		assert.True(t, row.HasIntensity)
		// filled stores index+1 at (y, x)
		assert.Equal(t, row.Y*32+row.X+1, row.Intensity)
	}

	noRadius, err := newAssembler(t, centreModel(16), nil, 1).Collect(context.Background(), planes)
	require.NoError(t, err)
	assert.NotContains(t, noRadius.Columns, ColumnIntensity)

	flat := models.NewArray(16, 16)
	for i := range flat.Data {
		flat.Data[i] = 1
	}
	planes, err = axes.Normalize(flat, axes.Descriptor{"y", "x"})
	require.NoError(t, err)
	table, err = newAssembler(t, centreModel(16), intPtr(0), 1).Assemble(context.Background(), planes)
	require.NoError(t, err)
	assert.Equal(t, []Column{ColumnY, ColumnX}, table.Columns, "constant intensity is pruned")
	assert.Equal(t, 1.0, table.Rows[0].Intensity)
}

// TestPlaneFailureAbortsImage verifies that no partial table is returned
func TestPlaneFailureAbortsImage(t *testing.T) {
	planes, err := axes.Normalize(filled(3, 16, 16), axes.Descriptor{"z", "y", "x"})
	require.NoError(t, err)
	// zero out the middle plane so it is degenerate
	planes[1].Plane.Zero()

	table, err := newAssembler(t, centreModel(16), nil, 2).Assemble(context.Background(), planes)
	require.Error(t, err)
	assert.Nil(t, table)
	assert.Contains(t, err.Error(), "z=1")

	boom := errors.New("model crashed")
	failing := &model.Func{Edge: 16, Grid: 1, Fn: func(ctx context.Context, tile mat.Matrix) (*models.Grid, error) {
		return nil, boom
	}}
	_, err = newAssembler(t, failing, nil, 2).Assemble(context.Background(), planes)
	assert.ErrorIs(t, err, boom)
}

func TestWriteCSV(t *testing.T) {
	table := &Table{
		Columns: []Column{ColumnC, ColumnY, ColumnX, ColumnIntensity},
		Rows: []models.Detection{
			{PlaneTag: models.PlaneTag{C: 0}, Coordinate: models.Coordinate{Y: 1.5, X: 2}, Intensity: 10},
			{PlaneTag: models.PlaneTag{C: 1}, Coordinate: models.Coordinate{Y: 3.14159265, X: 0.00004}, Intensity: 0.5},
		},
	}
	var buf bytes.Buffer
	require.NoError(t, table.WriteCSV(&buf))

	want := []string{
		"c,y,x,i",
		"0,1.5000,2.0000,10.0000",
		"1,3.1416,0.0000,0.5000",
	}
	got := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteCSVEmptyTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Table{Columns: []Column{ColumnY, ColumnX}}).WriteCSV(&buf))
	assert.Equal(t, "y,x\n", buf.String())
}
