package quantize

import (
	"bytes"
	"image"
	"image/color"
	"slices"
)

// PaletteBlock is one hardware palette. Colors always has ColorsPerPalette
// entries; only the first Used are meaningful, the rest are black padding.
type PaletteBlock struct {
	Colors []RGB
	Used   int
}

// Result is the indexed image produced by a run. It is never modified after
// being returned.
type Result struct {
	Width            int
	Height           int
	TileSize         int
	ColorsPerPalette int
	ColorZero        ColorZero

	Blocks []PaletteBlock

	TilesX int
	TilesY int
	// Tiles holds the block id of each tile in raster order.
	Tiles []uint8

	// Indices holds one global index per pixel, top-down. Nil in a
	// partial result.
	Indices []uint8

	Fidelity FidelityLoss
}

// TileAt returns the block assigned to tile (tx, ty).
func (r *Result) TileAt(tx, ty int) uint8 {
	return r.Tiles[ty*r.TilesX+tx]
}

// IndexAt returns the global index of pixel (x, y).
func (r *Result) IndexAt(x, y int) uint8 {
	return r.Indices[y*r.Width+x]
}

// Color resolves a global index to its palette color.
func (r *Result) Color(index uint8) RGB {
	i := int(index)
	return r.Blocks[i/r.ColorsPerPalette].Colors[i%r.ColorsPerPalette]
}

// ColorAt returns the final color of pixel (x, y).
func (r *Result) ColorAt(x, y int) RGB {
	return r.Color(r.IndexAt(x, y))
}

// NumColors returns the size of the flattened palette.
func (r *Result) NumColors() int {
	return len(r.Blocks) * r.ColorsPerPalette
}

// Transparent reports whether global index 0 marks transparency.
func (r *Result) Transparent() bool {
	return r.ColorZero.Transparent()
}

// DistinctColors counts the distinct colors actually referenced by pixels.
func (r *Result) DistinctColors() int {
	seen := make(map[RGB]struct{})
	used := make([]bool, r.NumColors())
	for _, i := range r.Indices {
		used[i] = true
	}
	for i, ok := range used {
		if ok {
			seen[r.Color(uint8(i))] = struct{}{}
		}
	}
	return len(seen)
}

// Palette flattens the blocks into a single palette. Index 0 is fully
// transparent under the transparent color zero behaviours.
func (r *Result) Palette() color.Palette {
	p := make(color.Palette, 0, r.NumColors())
	for _, b := range r.Blocks {
		for _, c := range b.Colors {
			p = append(p, color.RGBA{c.R, c.G, c.B, 0xff})
		}
	}
	if r.Transparent() && len(p) > 0 {
		p[0] = color.RGBA{}
	}
	return p
}

// Image returns a paletted preview of the result.
func (r *Result) Image() *image.Paletted {
	m := image.NewPaletted(image.Rect(0, 0, r.Width, r.Height), r.Palette())
	copy(m.Pix, r.Indices)
	return m
}

// Equal reports whether two results are identical.
func (r *Result) Equal(o *Result) bool {
	if r.Width != o.Width || r.Height != o.Height || r.TileSize != o.TileSize ||
		r.ColorsPerPalette != o.ColorsPerPalette || r.ColorZero != o.ColorZero ||
		r.TilesX != o.TilesX || r.TilesY != o.TilesY {
		return false
	}
	if !bytes.Equal(r.Tiles, o.Tiles) || !bytes.Equal(r.Indices, o.Indices) {
		return false
	}
	if len(r.Blocks) != len(o.Blocks) {
		return false
	}
	for i := range r.Blocks {
		if r.Blocks[i].Used != o.Blocks[i].Used || !slices.Equal(r.Blocks[i].Colors, o.Blocks[i].Colors) {
			return false
		}
	}
	return r.Fidelity.Merges == o.Fidelity.Merges && r.Fidelity.Error == o.Fidelity.Error &&
		slices.Equal(r.Fidelity.Tiles, o.Fidelity.Tiles)
}
