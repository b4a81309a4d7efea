// Package visualization renders planes with their detections marked, for
// checking predictions by eye.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	"gonum.org/v1/gonum/mat"

	"spotdetect/internal/models"
)

// MarkColour is the colour used for detection markers
var MarkColour = color.RGBA{R: 255, A: 255}

// Viewer renders a single plane and the spots found in it
type Viewer struct {
	// plane holds the pixel values to display
	plane mat.Matrix

	// spots are plane-local detection coordinates
	spots []models.Coordinate

	// markSize is the half length of the cross drawn at every spot
	markSize int
}

// NewViewer creates a viewer for one plane
func NewViewer(plane mat.Matrix, spots []models.Coordinate) *Viewer {
	return &Viewer{
		plane:    plane,
		spots:    spots,
		markSize: 2,
	}
}

// Grayscale converts the plane to a 16-bit image, stretching its value range to full scale
func (v *Viewer) Grayscale() *image.Gray16 {
	rows, cols := v.plane.Dims()
	img := image.NewGray16(image.Rect(0, 0, cols, rows))
	lo, hi := mat.Min(v.plane), mat.Max(v.plane)
	span := hi - lo
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			var value float64
			if span > 0 {
				value = (v.plane.At(y, x) - lo) / span
			}
			img.SetGray16(x, y, color.Gray16{Y: uint16(math.Max(0, math.Min(65535, value*65535)))})
		}
	}
	return img
}

// Render returns the plane as a colour image with a cross drawn at every spot
func (v *Viewer) Render() *image.RGBA {
	gray := v.Grayscale()
	bounds := gray.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, gray, bounds.Min, draw.Src)

	for _, s := range v.spots {
		cy, cx := int(s.Y+0.5), int(s.X+0.5)
		for d := -v.markSize; d <= v.markSize; d++ {
			setIfInside(out, cx+d, cy)
			setIfInside(out, cx, cy+d)
		}
	}
	return out
}

func setIfInside(img *image.RGBA, x, y int) {
	if image.Pt(x, y).In(img.Bounds()) {
		img.Set(x, y, MarkColour)
	}
}

// SaveOverlay writes the rendered image as a PNG file
func (v *Viewer) SaveOverlay(filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := png.Encode(file, v.Render()); err != nil {
		return fmt.Errorf("encoding overlay %s: %w", filename, err)
	}
	return file.Close()
}

// SaveOverlays writes one overlay per plane into outputDir. Files are named
// <base>_c<c>_t<t>_z<z>.png and show the detections tagged with that plane.
func SaveOverlays(outputDir, base string, planes []models.TaggedPlane, detections []models.Detection) ([]string, error) {
	byPlane := make(map[models.PlaneTag][]models.Coordinate)
	for _, d := range detections {
		byPlane[d.PlaneTag] = append(byPlane[d.PlaneTag], d.Coordinate)
	}

	files := make([]string, 0, len(planes))
	for _, p := range planes {
		name := filepath.Join(outputDir,
			fmt.Sprintf("%s_c%d_t%d_z%d.png", base, p.Tag.C, p.Tag.T, p.Tag.Z))
		if err := NewViewer(p.Plane, byPlane[p.Tag]).SaveOverlay(name); err != nil {
			return files, err
		}
		files = append(files, name)
	}
	return files, nil
}
