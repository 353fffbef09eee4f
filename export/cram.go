package export

import (
	"image/color"
	"io"

	"github.com/bodgit/tpq/quantize"
)

// cramColors is the number of entries in one hardware palette line.
const cramColors = 16

// level3 reduces an 8-bit channel to the nearest of the VDP's 8 levels.
func level3(v uint8) uint8 {
	return uint8((uint(v)*7 + 127) / 255)
}

// expand3 is the inverse of level3.
func expand3(l uint8) uint8 {
	return uint8((uint(l)*255 + 3) / 7)
}

// packCRAM packs a color as 0000BBB0GGG0RRR0.
func packCRAM(c quantize.RGB) [2]byte {
	return [2]byte{
		level3(c.B) << 1,
		level3(c.G)<<5 | level3(c.R)<<1,
	}
}

func unpackCRAM(b [2]byte) color.RGBA {
	return color.RGBA{
		expand3(b[1] >> 1 & 0x07),
		expand3(b[1] >> 5 & 0x07),
		expand3(b[0] >> 1 & 0x07),
		0xff,
	}
}

// writeCRAM writes every block as a 16 entry palette line, padding with
// black.
func writeCRAM(w io.Writer, blocks []quantize.PaletteBlock) error {
	line := make([]byte, cramColors*2)
	for _, b := range blocks {
		for i := range line {
			line[i] = 0
		}
		for i, c := range b.Colors {
			p := packCRAM(c)
			copy(line[i*2:], p[:])
		}
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

func encodeCRAM(w io.Writer, r *quantize.Result) error {
	return writeCRAM(w, r.Blocks)
}
