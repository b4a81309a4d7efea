// Package testutil provides shared test helpers for spotdetect packages.
package testutil

import (
	"encoding/binary"
	"image"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteGrayStack writes the pages as an uncompressed 8-bit multi-page TIFF
func WriteGrayStack(t *testing.T, path string, pages []*image.Gray) {
	t.Helper()
	require.NotEmpty(t, pages)

	le := binary.LittleEndian
	buf := []byte("II\x2A\x00\x00\x00\x00\x00")
	link := 4 // position of the pointer to the next directory
	for _, page := range pages {
		b := page.Bounds()
		w, h := uint32(b.Dx()), uint32(b.Dy())

		strip := uint32(len(buf))
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				buf = append(buf, page.GrayAt(x, y).Y)
			}
		}
		if len(buf)%2 == 1 {
			buf = append(buf, 0)
		}
		le.PutUint32(buf[link:], uint32(len(buf)))

		entries := [][2]uint32{
			{256, w},     // ImageWidth
			{257, h},     // ImageLength
			{258, 8},     // BitsPerSample
			{259, 1},     // Compression: none
			{262, 1},     // PhotometricInterpretation: black is zero
			{273, strip}, // StripOffsets
			{278, h},     // RowsPerStrip
			{279, w * h}, // StripByteCounts
		}
		buf = le.AppendUint16(buf, uint16(len(entries)))
		for _, e := range entries {
			buf = le.AppendUint16(buf, uint16(e[0]))
			buf = le.AppendUint16(buf, 4) // LONG
			buf = le.AppendUint32(buf, 1)
			buf = le.AppendUint32(buf, e[1])
		}
		link = len(buf)
		buf = le.AppendUint32(buf, 0)
	}
	require.NoError(t, os.WriteFile(path, buf, 0644))
}

// GrayPage returns a w x h 8-bit page filled by pattern
func GrayPage(w, h int, pattern func(x, y int) uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Pix[y*img.Stride+x] = pattern(x, y)
		}
	}
	return img
}
