package pipeline

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"

	"spotdetect/internal/models"
	"spotdetect/internal/testutil"
	"spotdetect/pkg/axes"
	"spotdetect/pkg/decoder"
	"spotdetect/pkg/errdefs"
	"spotdetect/pkg/model"
)

// centreModel reports one detection per tile, at the centre of a single-cell grid
func centreModel(edge int) *model.Func {
	return &model.Func{
		Edge: edge,
		Grid: 1,
		Fn: func(ctx context.Context, tile mat.Matrix) (*models.Grid, error) {
			g := models.NewGrid(1)
			g.SetCell(0, 0, models.CellPrediction{P: 1, DY: 0.5, DX: 0.5})
			return g, nil
		},
	}
}

// createTestTIFF writes a 16-bit grayscale TIFF filled by pattern
func createTestTIFF(t *testing.T, path string, width, height int, pattern func(x, y int) uint16) {
	t.Helper()
	img := image.NewGray16(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray16(x, y, color.Gray16{Y: pattern(x, y)})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, tiff.Encode(f, img, nil))
	require.NoError(t, f.Close())
}

func ramp(x, y int) uint16 { return uint16(1 + x + 40*y) }

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func defaultParams(input, output string) *Params {
	return &Params{
		Input:     input,
		OutputDir: output,
		Threshold: decoder.DefaultThreshold,
		Workers:   2,
	}
}

// TestProcessDirectory runs a batch with one good, one degenerate and one unreadable image
func TestProcessDirectory(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "results")
	createTestTIFF(t, filepath.Join(in, "a_cells.tif"), 32, 32, ramp)
	createTestTIFF(t, filepath.Join(in, "b_blank.tif"), 32, 32, func(x, y int) uint16 { return 0 })
	require.NoError(t, os.WriteFile(filepath.Join(in, "c_broken.tif"), []byte("nope"), 0644))

	predictor, err := NewPredictor(defaultParams(in, out), centreModel(16), nil)
	require.NoError(t, err)
	summary, err := predictor.Process(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Files)
	assert.Equal(t, 2, summary.Failed)
	assert.Equal(t, 1, summary.Planes)
	assert.Equal(t, 4, summary.Detections)
	assert.Equal(t, 4.0, summary.MeanPerPlane)
	assert.ErrorIs(t, summary.Failures[filepath.Join(in, "b_blank.tif")], errdefs.ErrDegenerateInput)
	assert.Error(t, summary.Failures[filepath.Join(in, "c_broken.tif")])
	require.Equal(t, []string{filepath.Join(out, "a_cells.csv")}, summary.Outputs)

	want := []string{
		"y,x",
		"8.0000,8.0000",
		"8.0000,24.0000",
		"24.0000,8.0000",
		"24.0000,24.0000",
	}
	if diff := cmp.Diff(want, readLines(t, summary.Outputs[0])); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
	_, err = os.Stat(filepath.Join(out, "b_blank.csv"))
	assert.True(t, os.IsNotExist(err), "no table for a failed image")
}

func TestProcessSingleFileDefaultsOutputToInputDir(t *testing.T) {
	in := t.TempDir()
	file := filepath.Join(in, "spots.tif")
	createTestTIFF(t, file, 20, 20, ramp)

	radius := 1
	params := defaultParams(file, "")
	params.Radius = &radius
	params.Overlay = true

	predictor, err := NewPredictor(params, centreModel(16), nil)
	require.NoError(t, err)
	summary, err := predictor.Process(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(in, "spots.csv")}, summary.Outputs)

	lines := readLines(t, summary.Outputs[0])
	assert.Equal(t, "y,x", lines[0], "a single detection has a constant intensity column")
	assert.Len(t, lines, 2)

	_, err = os.Stat(filepath.Join(in, "spots_c0_t0_z0.png"))
	assert.NoError(t, err)
}

// TestProvidedShapeMismatchFailsFile verifies a descriptor of the wrong rank is an axis error
func TestProvidedShapeMismatchFailsFile(t *testing.T) {
	in := t.TempDir()
	createTestTIFF(t, filepath.Join(in, "flat.tif"), 16, 16, ramp)

	params := defaultParams(in, "")
	params.Shape = "(z,y,x)"
	predictor, err := NewPredictor(params, centreModel(16), nil)
	require.NoError(t, err)
	summary, err := predictor.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.ErrorIs(t, summary.Failures[filepath.Join(in, "flat.tif")], errdefs.ErrAxisAlignment)
}

// TestProcessStackedTIFF runs a three-page z-stack through a provided descriptor
func TestProcessStackedTIFF(t *testing.T) {
	in := t.TempDir()
	page := func(z int) *image.Gray {
		return testutil.GrayPage(16, 16, func(x, y int) uint8 { return uint8(1 + x + y + 10*z) })
	}
	testutil.WriteGrayStack(t, filepath.Join(in, "stack.tif"), []*image.Gray{page(0), page(1), page(2)})

	params := defaultParams(in, "")
	params.Shape = "(z,y,x)"
	predictor, err := NewPredictor(params, centreModel(16), nil)
	require.NoError(t, err)
	summary, err := predictor.Process(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.Failed, "%v", summary.Failures)
	assert.Equal(t, 3, summary.Planes)

	want := []string{
		"z,y,x",
		"0,8.0000,8.0000",
		"1,8.0000,8.0000",
		"2,8.0000,8.0000",
	}
	if diff := cmp.Diff(want, readLines(t, summary.Outputs[0])); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessRejectsBadInputs(t *testing.T) {
	_, err := NewPredictor(defaultParams(t.TempDir(), ""), &model.Func{Edge: 12, Grid: 3}, nil)
	assert.ErrorIs(t, err, errdefs.ErrModelShape)

	params := defaultParams(t.TempDir(), "")
	params.TileSize = 32
	_, err = NewPredictor(params, centreModel(16), nil)
	assert.ErrorIs(t, err, errdefs.ErrShape)

	predictor, err := NewPredictor(defaultParams(t.TempDir(), ""), centreModel(16), nil)
	require.NoError(t, err)
	_, err = predictor.Process(context.Background())
	assert.Error(t, err, "empty directory")

	params = defaultParams(filepath.Join(t.TempDir(), "missing"), "")
	predictor, err = NewPredictor(params, centreModel(16), nil)
	require.NoError(t, err)
	_, err = predictor.Process(context.Background())
	assert.Error(t, err)

	in := t.TempDir()
	createTestTIFF(t, filepath.Join(in, "a.tif"), 16, 16, ramp)
	params = defaultParams(in, "")
	params.Shape = "(y,y)"
	predictor, err = NewPredictor(params, centreModel(16), nil)
	require.NoError(t, err)
	_, err = predictor.Process(context.Background())
	assert.ErrorIs(t, err, errdefs.ErrAxisAlignment)
}

func TestPredictImageMultiPlane(t *testing.T) {
	predictor, err := NewPredictor(defaultParams(t.TempDir(), ""), centreModel(16), nil)
	require.NoError(t, err)

	raw := models.NewArray(16, 16, 2) // y, x, t
	for i := range raw.Data {
		raw.Data[i] = float64(i + 1)
	}
	table, planes, err := predictor.PredictImage(context.Background(), raw, axes.Descriptor{"y", "x", "t"})
	require.NoError(t, err)
	assert.Len(t, planes, 2)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, 0, table.Rows[0].T)
	assert.Equal(t, 1, table.Rows[1].T)
	assert.True(t, table.HasColumn("t"))
}

func TestCountPerPlane(t *testing.T) {
	planes := []models.TaggedPlane{{Tag: models.PlaneTag{Z: 0}}, {Tag: models.PlaneTag{Z: 1}}, {Tag: models.PlaneTag{Z: 2}}}
	rows := []models.Detection{{PlaneTag: models.PlaneTag{Z: 0}}, {PlaneTag: models.PlaneTag{Z: 2}}, {PlaneTag: models.PlaneTag{Z: 2}}}
	assert.Equal(t, []float64{1, 0, 2}, countPerPlane(planes, rows))
}
