// Package imageio loads microscopy images into N-dimensional arrays and finds
// the files to process.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"spotdetect/internal/models"
)

// Extensions lists the supported image file extensions, without the leading dot
var Extensions = []string{"tif", "tiff", "jpeg", "jpg", "png"}

// Files returns the images to process. A directory yields every file with a
// supported extension in sorted order; a file is returned as is.
func Files(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("input %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !supported(e.Name()) {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func supported(name string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Basename returns the file name without directory and extension
func Basename(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Load decodes an image file. Without rgb every page becomes a (y, x) array of
// luminance values; with rgb it becomes a (y, x, 3) array of red, green and
// blue. A multi-page TIFF stacks its pages along a leading axis. Samples keep
// their stored value: 8-bit images read 0-255 and 16-bit images 0-65535.
func Load(path string, rgb bool) (*models.Array, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var pages []image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		var data []byte
		if data, err = io.ReadAll(file); err == nil {
			pages, err = DecodeTIFFPages(data)
		}
	case ".png":
		var img image.Image
		if img, err = png.Decode(file); err == nil {
			pages = []image.Image{img}
		}
	case ".jpg", ".jpeg":
		var img image.Image
		if img, err = jpeg.Decode(file); err == nil {
			pages = []image.Image{img}
		}
	default:
		return nil, fmt.Errorf("unsupported image type %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}

	return FromPages(pages, rgb)
}

// FromPages converts the pages of an image into one array. A single page keeps
// its own rank; several pages are stacked along a new leading axis and must
// all have the same size.
func FromPages(pages []image.Image, rgb bool) (*models.Array, error) {
	if len(pages) == 0 {
		return nil, fmt.Errorf("image has no pages")
	}
	convert := FromImage
	if rgb {
		convert = FromImageRGB
	}
	if len(pages) == 1 {
		return convert(pages[0]), nil
	}

	size := pages[0].Bounds().Size()
	var stack *models.Array
	for i, page := range pages {
		if page.Bounds().Size() != size {
			return nil, fmt.Errorf("page %d is %v, page 0 is %v", i, page.Bounds().Size(), size)
		}
		arr := convert(page)
		if stack == nil {
			stack = models.NewArray(append([]int{len(pages)}, arr.Shape...)...)
		}
		copy(stack.Data[i*len(arr.Data):], arr.Data)
	}
	return stack, nil
}

// eightBit reports whether the image stores 8-bit samples
func eightBit(img image.Image) bool {
	switch img.(type) {
	case *image.Gray, *image.RGBA, *image.NRGBA, *image.YCbCr, *image.NYCbCrA,
		*image.Paletted, *image.CMYK, *image.Alpha:
		return true
	}
	return false
}

// FromImage converts an image to a (y, x) array of luminance values
func FromImage(img image.Image) *models.Array {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	arr := models.NewArray(height, width)

	var at func(x, y int) float64
	switch src := img.(type) {
	case *image.Gray:
		at = func(x, y int) float64 { return float64(src.GrayAt(x, y).Y) }
	case *image.Gray16:
		at = func(x, y int) float64 { return float64(src.Gray16At(x, y).Y) }
	default:
		if eightBit(img) {
			at = func(x, y int) float64 {
				return float64(color.GrayModel.Convert(img.At(x, y)).(color.Gray).Y)
			}
		} else {
			at = func(x, y int) float64 {
				return float64(color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y)
			}
		}
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			arr.Data[y*width+x] = at(bounds.Min.X+x, bounds.Min.Y+y)
		}
	}
	return arr
}

// FromImageRGB converts an image to a (y, x, 3) array of red, green and blue
func FromImageRGB(img image.Image) *models.Array {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	arr := models.NewArray(height, width, 3)

	var at func(x, y int) (r, g, b uint32)
	switch src := img.(type) {
	case *image.RGBA:
		at = func(x, y int) (uint32, uint32, uint32) {
			c := src.RGBAAt(x, y)
			return uint32(c.R), uint32(c.G), uint32(c.B)
		}
	case *image.NRGBA:
		at = func(x, y int) (uint32, uint32, uint32) {
			c := src.NRGBAAt(x, y)
			return uint32(c.R), uint32(c.G), uint32(c.B)
		}
	case *image.NRGBA64:
		at = func(x, y int) (uint32, uint32, uint32) {
			c := src.NRGBA64At(x, y)
			return uint32(c.R), uint32(c.G), uint32(c.B)
		}
	default:
		shift := 0
		if eightBit(img) {
			shift = 8
		}
		at = func(x, y int) (uint32, uint32, uint32) {
			r, g, b, _ := img.At(x, y).RGBA()
			return r >> shift, g >> shift, b >> shift
		}
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b := at(bounds.Min.X+x, bounds.Min.Y+y)
			base := (y*width + x) * 3
			arr.Data[base] = float64(r)
			arr.Data[base+1] = float64(g)
			arr.Data[base+2] = float64(b)
		}
	}
	return arr
}
