package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bodgit/tpq/quantize"
)

type resultHeader struct {
	Width            uint32
	Height           uint32
	TileSize         uint32
	ColorsPerPalette uint8
	ColorZero        uint8
	NumBlocks        uint8
	HasIndices       uint8
	TilesX           uint32
	TilesY           uint32
	Merges           uint32
	Error            float64
	NumTileLoss      uint32
}

type tileLoss struct {
	Tile   uint32
	Merges uint32
	Error  float64
}

// Result wraps a quantize.Result so it implements the
// encoding.BinaryMarshaler and encoding.BinaryUnmarshaler interfaces. A
// partial result with nil Indices survives the round trip.
type Result struct {
	*quantize.Result
}

// MarshalBinary encodes the result into binary form and returns the result
func (res Result) MarshalBinary() ([]byte, error) {
	r := res.Result
	if len(r.Blocks) > quantize.MaxPalettes {
		return nil, fmt.Errorf("more than %d blocks", quantize.MaxPalettes)
	}

	h := resultHeader{
		Width:            uint32(r.Width),
		Height:           uint32(r.Height),
		TileSize:         uint32(r.TileSize),
		ColorsPerPalette: uint8(r.ColorsPerPalette),
		ColorZero:        uint8(r.ColorZero),
		NumBlocks:        uint8(len(r.Blocks)),
		TilesX:           uint32(r.TilesX),
		TilesY:           uint32(r.TilesY),
		Merges:           uint32(r.Fidelity.Merges),
		Error:            r.Fidelity.Error,
		NumTileLoss:      uint32(len(r.Fidelity.Tiles)),
	}
	if r.Indices != nil {
		h.HasIndices = 1
	}

	b := new(bytes.Buffer)
	if err := binary.Write(b, binary.LittleEndian, &h); err != nil {
		return nil, err
	}

	// Write out each block as its used count then RGB triplets
	for _, blk := range r.Blocks {
		b.WriteByte(uint8(blk.Used))
		for _, c := range blk.Colors {
			b.Write([]byte{c.R, c.G, c.B})
		}
	}

	b.Write(r.Tiles)

	for _, l := range r.Fidelity.Tiles {
		tl := tileLoss{uint32(l.Tile), uint32(l.Merges), l.Error}
		if err := binary.Write(b, binary.LittleEndian, &tl); err != nil {
			return nil, err
		}
	}

	b.Write(r.Indices)

	return b.Bytes(), nil
}

// UnmarshalBinary decodes the result from binary form
func (res *Result) UnmarshalBinary(b []byte) error {
	r := bytes.NewReader(b)

	var h resultHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return fmt.Errorf("%w: result header: %v", ErrMalformed, err)
	}
	if h.NumBlocks > quantize.MaxPalettes || h.ColorsPerPalette > quantize.MaxColorsPerPalette {
		return fmt.Errorf("%w: %d blocks of %d colors", ErrMalformed, h.NumBlocks, h.ColorsPerPalette)
	}

	out := &quantize.Result{
		Width:            int(h.Width),
		Height:           int(h.Height),
		TileSize:         int(h.TileSize),
		ColorsPerPalette: int(h.ColorsPerPalette),
		ColorZero:        quantize.ColorZero(h.ColorZero),
		Blocks:           make([]quantize.PaletteBlock, h.NumBlocks),
		TilesX:           int(h.TilesX),
		TilesY:           int(h.TilesY),
		Fidelity: quantize.FidelityLoss{
			Merges: int(h.Merges),
			Error:  h.Error,
		},
	}

	rgb := make([]byte, 3*out.ColorsPerPalette)
	for i := range out.Blocks {
		used, err := r.ReadByte()
		if err != nil {
			return fmt.Errorf("%w: block %d", ErrMalformed, i)
		}
		if _, err := io.ReadFull(r, rgb); err != nil {
			return fmt.Errorf("%w: block %d", ErrMalformed, i)
		}
		blk := quantize.PaletteBlock{Colors: make([]quantize.RGB, out.ColorsPerPalette), Used: int(used)}
		for j := range blk.Colors {
			blk.Colors[j] = quantize.RGB{R: rgb[j*3], G: rgb[j*3+1], B: rgb[j*3+2]}
		}
		out.Blocks[i] = blk
	}

	out.Tiles = make([]uint8, out.TilesX*out.TilesY)
	if _, err := io.ReadFull(r, out.Tiles); err != nil {
		return fmt.Errorf("%w: tile map", ErrMalformed)
	}

	for i := uint32(0); i < h.NumTileLoss; i++ {
		var tl tileLoss
		if err := binary.Read(r, binary.LittleEndian, &tl); err != nil {
			return fmt.Errorf("%w: fidelity", ErrMalformed)
		}
		out.Fidelity.Tiles = append(out.Fidelity.Tiles, quantize.TileLoss{
			Tile:   int(tl.Tile),
			Merges: int(tl.Merges),
			Error:  tl.Error,
		})
	}

	if h.HasIndices != 0 {
		out.Indices = make([]uint8, out.Width*out.Height)
		if _, err := io.ReadFull(r, out.Indices); err != nil {
			return fmt.Errorf("%w: indices", ErrMalformed)
		}
	}

	if r.Len() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrMalformed, r.Len())
	}

	res.Result = out
	return nil
}
