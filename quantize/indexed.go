package quantize

import "math"

// slotFinder resolves working colors to slots within one block.
type slotFinder struct {
	block PaletteBlock
	first int
	cache map[RGB]uint8
}

func newSlotFinder(b PaletteBlock, policy colorZeroPolicy) *slotFinder {
	return &slotFinder{
		block: b,
		first: policy.firstSlot(),
		cache: make(map[RGB]uint8),
	}
}

// nearest returns the slot holding the color closest to c, ties going to
// the lowest slot. Blocks with nothing past slot 0 resolve to slot 0.
func (f *slotFinder) nearest(c RGB) uint8 {
	if s, ok := f.cache[c]; ok {
		return s
	}
	slot := 0
	best := math.MaxInt
	for i := f.first; i < f.block.Used; i++ {
		if d := sqDist(c, f.block.Colors[i]); d < best {
			best, slot = d, i
			if d == 0 {
				break
			}
		}
	}
	f.cache[c] = uint8(slot)
	return uint8(slot)
}

// buildIndices maps every pixel to a global palette index.
func buildIndices(w *workImage, grid tileGrid, blocks []PaletteBlock, tiles []uint8, policy colorZeroPolicy, progress func(float64)) []uint8 {
	size := 0
	if len(blocks) > 0 {
		size = len(blocks[0].Colors)
	}

	finders := make([]*slotFinder, len(blocks))
	for i, b := range blocks {
		finders[i] = newSlotFinder(b, policy)
	}

	indices := make([]uint8, w.width*w.height)
	for y := 0; y < w.height; y++ {
		for x := 0; x < w.width; x++ {
			c, key := w.at(x, y)
			if key {
				// Transparent pixels always use global index 0
				continue
			}
			id := tiles[grid.tileOf(x, y)]
			var slot uint8
			if !policy.excludes(c) {
				slot = finders[id].nearest(c)
			}
			indices[y*w.width+x] = id*uint8(size) + slot
		}
		progress(float64(y+1) / float64(w.height))
	}
	return indices
}
