package imageio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"

	"golang.org/x/image/tiff"
)

const ifdEntryLen = 12

// DecodeTIFFPages decodes every page of a classic TIFF file, in file order
func DecodeTIFFPages(data []byte) ([]image.Image, error) {
	order, offsets, err := pageOffsets(data)
	if err != nil {
		return nil, err
	}

	pages := make([]image.Image, 0, len(offsets))
	for i, off := range offsets {
		r := &pageReader{data: data}
		copy(r.header[:], data[:8])
		order.PutUint32(r.header[4:], off)

		img, err := tiff.Decode(r)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, img)
	}
	return pages, nil
}

// pageOffsets walks the chain of image file directories
func pageOffsets(data []byte) (binary.ByteOrder, []uint32, error) {
	if len(data) < 8 {
		return nil, nil, tiff.FormatError("malformed header")
	}
	var order binary.ByteOrder
	switch string(data[:4]) {
	case "II\x2A\x00":
		order = binary.LittleEndian
	case "MM\x00\x2A":
		order = binary.BigEndian
	default:
		return nil, nil, tiff.FormatError("malformed header")
	}

	var offsets []uint32
	seen := make(map[uint32]bool)
	size := int64(len(data))
	for off := order.Uint32(data[4:8]); off != 0; {
		if seen[off] {
			return nil, nil, tiff.FormatError("directory chain loops")
		}
		seen[off] = true
		if int64(off)+2 > size {
			return nil, nil, tiff.FormatError("directory offset out of range")
		}
		count := int64(order.Uint16(data[off:]))
		next := int64(off) + 2 + count*ifdEntryLen
		if next+4 > size {
			return nil, nil, tiff.FormatError("directory out of range")
		}
		offsets = append(offsets, off)
		off = order.Uint32(data[next:])
	}
	if len(offsets) == 0 {
		return nil, nil, tiff.FormatError("no image directory")
	}
	return order, offsets, nil
}

// pageReader serves the file with the first-directory pointer of its header
// replaced, so the decoder reads the chosen page.
type pageReader struct {
	data   []byte
	header [8]byte
	pos    int64
}

func (r *pageReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.New("negative offset")
	}
	if off >= int64(len(r.data)) {
		return 0, io.EOF
	}
	n := copy(p, r.data[off:])
	for i := off; i < int64(len(r.header)) && i < off+int64(n); i++ {
		p[i-off] = r.header[i]
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *pageReader) Read(p []byte) (int, error) {
	n, err := r.ReadAt(p, r.pos)
	r.pos += int64(n)
	return n, err
}
