package quantize

import (
	"math"
	"sort"
)

// TileLoss is the fidelity lost while fitting one tile.
type TileLoss struct {
	Tile   int
	Merges int
	Error  float64
}

// FidelityLoss summarises every color collapse performed during a run. It
// is advisory; a run with loss still succeeds.
type FidelityLoss struct {
	Merges int
	// Error is the sum over merges of the dropped color's pixel count
	// times its distance to the surviving color.
	Error float64
	Tiles []TileLoss
}

// Lossy reports whether any color collapse happened.
func (f FidelityLoss) Lossy() bool {
	return f.Merges > 0
}

// Tile returns the loss recorded against tile t, if any.
func (f FidelityLoss) Tile(t int) (TileLoss, bool) {
	for _, l := range f.Tiles {
		if l.Tile == t {
			return l, true
		}
	}
	return TileLoss{}, false
}

func (f *FidelityLoss) record(t, merges int, e float64) {
	if merges == 0 {
		return
	}
	f.Merges += merges
	f.Error += e
	for i := range f.Tiles {
		if f.Tiles[i].Tile == t {
			f.Tiles[i].Merges += merges
			f.Tiles[i].Error += e
			return
		}
	}
	f.Tiles = append(f.Tiles, TileLoss{Tile: t, Merges: merges, Error: e})
}

// closestPair returns the indices i < j of the two closest colors. Ties go
// to the pair with the lowest combined index, then the lowest i.
func closestPair(h Histogram) (int, int) {
	bi, bj := -1, -1
	best := math.MaxInt
	for i := 0; i < len(h); i++ {
		for j := i + 1; j < len(h); j++ {
			d := sqDist(h[i].Color, h[j].Color)
			switch {
			case d < best:
			case d == best && i+j < bi+bj:
			case d == best && i+j == bi+bj && i < bi:
			default:
				continue
			}
			best, bi, bj = d, i, j
		}
	}
	return bi, bj
}

// collapse merges the two closest colors until at most limit remain. The
// more frequent color survives and absorbs the other's count. With a limit
// of zero every color is folded into sink.
func collapse(h Histogram, limit int, sink RGB) (Histogram, int, float64) {
	out := append(Histogram(nil), h...)
	merges := 0
	loss := 0.0

	if limit <= 0 {
		for _, c := range out {
			merges++
			loss += float64(c.Count) * math.Sqrt(float64(sqDist(c.Color, sink)))
		}
		return Histogram{}, merges, loss
	}

	for len(out) > limit {
		i, j := closestPair(out)

		// Keep whichever color appears more frequently
		keep, drop := i, j
		if out[j].Count > out[i].Count {
			keep, drop = j, i
		}

		merges++
		loss += float64(out[drop].Count) * math.Sqrt(float64(sqDist(out[keep].Color, out[drop].Color)))
		out[keep].Count += out[drop].Count
		out = append(out[:drop], out[drop+1:]...)
		sort.Sort(out)
	}
	return out, merges, loss
}
