package export

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bodgit/tpq/quantize"
)

const (
	bmpFileHeaderLen = 14
	bmpInfoHeaderLen = 40
	bmpColors        = 256
	bmpPaletteLen    = bmpColors * 4
	bmpPixelOffset   = bmpFileHeaderLen + bmpInfoHeaderLen + bmpPaletteLen
	bmpPelsPerMeter  = 2835 // 72 DPI
)

type bmpFileHeader struct {
	Magic     [2]byte
	Size      uint32
	Reserved1 uint16
	Reserved2 uint16
	Offset    uint32
}

type bmpInfoHeader struct {
	Size            uint32
	Width           int32
	Height          int32
	Planes          uint16
	BitCount        uint16
	Compression     uint32
	ImageSize       uint32
	XPelsPerMeter   int32
	YPelsPerMeter   int32
	ColorsUsed      uint32
	ColorsImportant uint32
}

func bmpStride(width int) int {
	return (width + 3) &^ 3
}

// encodeBMP writes an 8 bpp bottom-up bitmap. The color table always has
// 256 entries; entry i is global index i.
func encodeBMP(w io.Writer, r *quantize.Result) error {
	if n := r.NumColors(); n > bmpColors {
		return fmt.Errorf("%w: %d", ErrPaletteOverflow, n)
	}

	stride := bmpStride(r.Width)
	imageSize := stride * r.Height

	fh := bmpFileHeader{
		Magic:  [2]byte{'B', 'M'},
		Size:   uint32(bmpPixelOffset + imageSize),
		Offset: bmpPixelOffset,
	}
	ih := bmpInfoHeader{
		Size:          bmpInfoHeaderLen,
		Width:         int32(r.Width),
		Height:        int32(r.Height),
		Planes:        1,
		BitCount:      8,
		ImageSize:     uint32(imageSize),
		XPelsPerMeter: bmpPelsPerMeter,
		YPelsPerMeter: bmpPelsPerMeter,
		ColorsUsed:    bmpColors,
	}

	if err := binary.Write(w, binary.LittleEndian, fh); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, ih); err != nil {
		return err
	}

	// Color table is B, G, R, 0
	table := make([]byte, bmpPaletteLen)
	i := 0
	for _, b := range r.Blocks {
		for _, c := range b.Colors {
			table[i*4+0] = c.B
			table[i*4+1] = c.G
			table[i*4+2] = c.R
			i++
		}
	}
	if _, err := w.Write(table); err != nil {
		return err
	}

	row := make([]byte, stride)
	for y := r.Height - 1; y >= 0; y-- {
		copy(row, r.Indices[y*r.Width:(y+1)*r.Width])
		if _, err := w.Write(row); err != nil {
			return err
		}
	}

	return nil
}
