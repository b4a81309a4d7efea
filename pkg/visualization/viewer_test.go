package visualization

import (
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"spotdetect/internal/models"
)

func gradient(h, w int) *mat.Dense {
	p := mat.NewDense(h, w, nil)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p.Set(y, x, float64(x))
		}
	}
	return p
}

// TestGrayscaleStretchesRange verifies the darkest pixel maps to 0 and the brightest to full scale
func TestGrayscaleStretchesRange(t *testing.T) {
	img := NewViewer(gradient(4, 5), nil).Grayscale()
	assert.Equal(t, 5, img.Bounds().Dx())
	assert.Equal(t, 4, img.Bounds().Dy())
	assert.Equal(t, uint16(0), img.Gray16At(0, 2).Y)
	assert.Equal(t, uint16(65535), img.Gray16At(4, 2).Y)

	flat := NewViewer(mat.NewDense(2, 2, []float64{3, 3, 3, 3}), nil).Grayscale()
	assert.Equal(t, uint16(0), flat.Gray16At(1, 1).Y)
}

// TestRenderMarksSpots verifies that a cross is drawn at each spot and clipped at the border
func TestRenderMarksSpots(t *testing.T) {
	spots := []models.Coordinate{{Y: 5, X: 5}, {Y: 0.2, X: 0.4}}
	img := NewViewer(gradient(10, 10), spots).Render()

	assert.Equal(t, MarkColour, img.RGBAAt(5, 5))
	assert.Equal(t, MarkColour, img.RGBAAt(7, 5))
	assert.Equal(t, MarkColour, img.RGBAAt(5, 3))
	assert.NotEqual(t, MarkColour, img.RGBAAt(7, 7))
	assert.Equal(t, MarkColour, img.RGBAAt(0, 0))
	assert.Equal(t, MarkColour, img.RGBAAt(2, 0))
}

func TestSaveOverlays(t *testing.T) {
	dir := t.TempDir()
	planes := []models.TaggedPlane{
		{Tag: models.PlaneTag{C: 0}, Plane: gradient(8, 8)},
		{Tag: models.PlaneTag{C: 1}, Plane: gradient(8, 8)},
	}
	detections := []models.Detection{
		{PlaneTag: models.PlaneTag{C: 1}, Coordinate: models.Coordinate{Y: 4, X: 4}},
	}

	files, err := SaveOverlays(filepath.Join(dir, "out"), "cells", planes, detections)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "out", "cells_c0_t0_z0.png"),
		filepath.Join(dir, "out", "cells_c1_t0_z0.png"),
	}, files)

	f, err := os.Open(files[1])
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	r, g, b, _ := img.At(4, 4).RGBA()
	assert.Equal(t, color.RGBA{R: 255, A: 255}, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255})
}
