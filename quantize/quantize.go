/*
Package quantize implements a tile-constrained palette quantizer.

An image is split into square tiles. Up to PaletteCount palette blocks of
ColorsPerPalette colors are built and every tile uses exactly one block, the
way tile-based consoles such as the Sega Genesis restrict backgrounds and
sprites. Slot 0 of each block carries special meaning selected by the
ColorZero setting.

A run is deterministic: the same settings and image always produce the same
Result.
*/
package quantize

import (
	"image"
)

// tileGrid describes how an image is cut into tiles. Edge tiles are
// clipped rather than padded.
type tileGrid struct {
	size          int
	width, height int
	cols, rows    int
}

func newTileGrid(size, width, height int) tileGrid {
	return tileGrid{
		size:   size,
		width:  width,
		height: height,
		cols:   (width-1)/size + 1,
		rows:   (height-1)/size + 1,
	}
}

func (g tileGrid) count() int {
	return g.cols * g.rows
}

func (g tileGrid) rect(t int) image.Rectangle {
	tx, ty := t%g.cols, t/g.cols
	r := image.Rect(tx*g.size, ty*g.size, tx*g.size+g.size, ty*g.size+g.size)
	return r.Intersect(image.Rect(0, 0, g.width, g.height))
}

func (g tileGrid) tileOf(x, y int) int {
	return (y/g.size)*g.cols + x/g.size
}

// Observer receives notifications during a run. Either field may be nil.
type Observer struct {
	// Progress is called with a non-decreasing percentage in 0..100.
	Progress func(percent int)
	// Partial is called once blocks and tiles are known, before pixels
	// are mapped. The partial result has nil Indices.
	Partial func(r *Result)
}

// progressTracker folds per-phase fractions into an overall percentage and
// suppresses duplicate or decreasing values.
type progressTracker struct {
	fn   func(int)
	last int
}

func (p *progressTracker) phase(from, to int) func(float64) {
	return func(f float64) {
		p.report(from + int(f*float64(to-from)))
	}
}

func (p *progressTracker) report(percent int) {
	if p.fn == nil || percent <= p.last {
		return
	}
	if percent > 100 {
		percent = 100
	}
	p.last = percent
	p.fn(percent)
}

// Quantize converts src into an indexed image constrained by s. Settings and
// image are validated first; nothing else can fail.
func Quantize(s Settings, src SourceImage, obs Observer) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if err := src.Validate(); err != nil {
		return nil, err
	}

	progress := &progressTracker{fn: obs.Progress, last: -1}
	progress.report(0)

	policy := newColorZeroPolicy(s)
	grid := newTileGrid(s.TileSize, src.Width, src.Height)

	work := buildWorkImage(s, src, policy, progress.phase(0, 40))

	stride := sampleStride(s.FractionOfPixels)
	hists := make([]Histogram, grid.count())
	step := progress.phase(40, 50)
	for t := range hists {
		hists[t] = buildHistogram(work, grid.rect(t), stride, policy)
		step(float64(t+1) / float64(len(hists)))
	}

	a := newAssigner(s, policy, grid.count())
	blocks := a.assign(hists, policy, s.ColorsPerPalette, progress.phase(50, 70))

	r := &Result{
		Width:            src.Width,
		Height:           src.Height,
		TileSize:         s.TileSize,
		ColorsPerPalette: s.ColorsPerPalette,
		ColorZero:        s.ColorZero,
		Blocks:           blocks,
		TilesX:           grid.cols,
		TilesY:           grid.rows,
		Tiles:            a.tiles,
		Fidelity:         a.loss,
	}

	if obs.Partial != nil {
		partial := *r
		obs.Partial(&partial)
	}

	r.Indices = buildIndices(work, grid, blocks, a.tiles, policy, progress.phase(70, 100))
	progress.report(100)

	return r, nil
}
