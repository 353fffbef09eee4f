package quantize

import (
	"math"
	"sort"
)

// block is a palette block under construction.
type block struct {
	counts map[RGB]int
}

func newBlock(h Histogram) *block {
	b := &block{counts: make(map[RGB]int, len(h))}
	b.add(h)
	return b
}

// missing returns how many colors of h the block does not hold yet.
func (b *block) missing(h Histogram) int {
	n := 0
	for _, c := range h {
		if _, ok := b.counts[c.Color]; !ok {
			n++
		}
	}
	return n
}

func (b *block) add(h Histogram) {
	for _, c := range h {
		b.counts[c.Color] += c.Count
	}
}

func (b *block) histogram() Histogram {
	return histogramFromCounts(b.counts)
}

// union returns the combined histogram of the block and h.
func (b *block) union(h Histogram) Histogram {
	counts := make(map[RGB]int, len(b.counts)+len(h))
	for c, n := range b.counts {
		counts[c] = n
	}
	for _, c := range h {
		counts[c.Color] += c.Count
	}
	return histogramFromCounts(counts)
}

func (b *block) replace(h Histogram) {
	b.counts = make(map[RGB]int, len(h))
	b.add(h)
}

// tileEntry is a tile waiting to be placed.
type tileEntry struct {
	index int
	hist  Histogram
}

// byDistinctColors orders tiles by decreasing number of distinct colors,
// keeping raster order for ties when used with sort.Stable.
type byDistinctColors []tileEntry

func (t byDistinctColors) Len() int {
	return len(t)
}

func (t byDistinctColors) Swap(i, j int) {
	t[i], t[j] = t[j], t[i]
}

func (t byDistinctColors) Less(i, j int) bool {
	return len(t[i].hist) > len(t[j].hist)
}

// assigner packs tile color sets into at most maxBlocks blocks of budget
// colors each. It is a variation of bin-packing where a bin's fill is the
// size of the union of its items, placed greedily in decreasing size order.
type assigner struct {
	maxBlocks int
	budget    int
	sink      RGB

	blocks []*block
	tiles  []uint8
	loss   FidelityLoss
}

func newAssigner(s Settings, policy colorZeroPolicy, numTiles int) *assigner {
	sink, _ := policy.slotZero()
	return &assigner{
		maxBlocks: s.PaletteCount,
		budget:    s.budget(),
		sink:      sink,
		tiles:     make([]uint8, numTiles),
	}
}

// bestFit returns the block needing the fewest new colors to hold h, or -1
// if none can hold it. Ties go to the lowest block id.
func (a *assigner) bestFit(h Histogram) int {
	best, bestNew := -1, 0
	for i, b := range a.blocks {
		n := b.missing(h)
		if len(b.counts)+n > a.budget {
			continue
		}
		if best < 0 || n < bestNew {
			best, bestNew = i, n
		}
	}
	return best
}

// place assigns one tile to a block, collapsing colors when needed.
func (a *assigner) place(t tileEntry) {
	h := t.hist

	// A tile that can't fit in any block on its own gets reduced first
	if len(h) > a.budget {
		var merges int
		var e float64
		h, merges, e = collapse(h, a.budget, a.sink)
		a.loss.record(t.index, merges, e)
	}

	if i := a.bestFit(h); i >= 0 {
		a.blocks[i].add(h)
		a.tiles[t.index] = uint8(i)
		return
	}

	if len(a.blocks) < a.maxBlocks {
		a.blocks = append(a.blocks, newBlock(h))
		a.tiles[t.index] = uint8(len(a.blocks) - 1)
		return
	}

	// Out of blocks; fold the tile into whichever block loses least
	best, bestMerges := -1, 0
	bestErr := math.Inf(1)
	var bestHist Histogram
	for i, b := range a.blocks {
		u, merges, e := collapse(b.union(h), a.budget, a.sink)
		if e < bestErr {
			best, bestMerges, bestErr, bestHist = i, merges, e, u
		}
	}
	a.blocks[best].replace(bestHist)
	a.tiles[t.index] = uint8(best)
	a.loss.record(t.index, bestMerges, bestErr)
}

// assign places every tile and returns the blocks in slot order.
func (a *assigner) assign(hists []Histogram, policy colorZeroPolicy, size int, progress func(float64)) []PaletteBlock {
	entries := make(byDistinctColors, len(hists))
	for i, h := range hists {
		entries[i] = tileEntry{index: i, hist: h}
	}
	sort.Stable(entries)

	for i, t := range entries {
		a.place(t)
		progress(float64(i+1) / float64(len(entries)))
	}

	blocks := make([]PaletteBlock, len(a.blocks))
	for i, b := range a.blocks {
		blocks[i] = policy.layout(b.histogram().Colors(), size)
	}
	return blocks
}
