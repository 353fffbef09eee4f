package quantize

import (
	"image"
	"sort"
)

// ColorCount is a single histogram bucket.
type ColorCount struct {
	Color RGB
	Count int
}

// Histogram lists distinct colors by descending count, ties broken by
// ascending packed RGB value.
type Histogram []ColorCount

func (h Histogram) Len() int {
	return len(h)
}

func (h Histogram) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
}

func (h Histogram) Less(i, j int) bool {
	if h[i].Count != h[j].Count {
		return h[i].Count > h[j].Count
	}
	return h[i].Color.Uint32() < h[j].Color.Uint32()
}

// Colors returns the colors in histogram order.
func (h Histogram) Colors() []RGB {
	p := make([]RGB, len(h))
	for i, c := range h {
		p[i] = c.Color
	}
	return p
}

func histogramFromCounts(counts map[RGB]int) Histogram {
	h := make(Histogram, 0, len(counts))
	for c, n := range counts {
		h = append(h, ColorCount{c, n})
	}
	sort.Sort(h)
	return h
}

// workImage holds the dithered and quantized color of every pixel along
// with which pixels are forced to index 0.
type workImage struct {
	width, height int
	pix           []RGB
	key           []bool
}

func (w *workImage) at(x, y int) (RGB, bool) {
	i := y*w.width + x
	return w.pix[i], w.key[i]
}

// buildWorkImage runs the ditherer and channel quantizer over every pixel
// in raster order.
func buildWorkImage(s Settings, src SourceImage, policy colorZeroPolicy, progress func(float64)) *workImage {
	w := &workImage{
		width:  src.Width,
		height: src.Height,
		pix:    make([]RGB, src.Width*src.Height),
		key:    make([]bool, src.Width*src.Height),
	}
	d := newDitherer(s, src.Width, src.Height)
	for y := 0; y < src.Height; y++ {
		for x := 0; x < src.Width; x++ {
			i := y*src.Width + x
			if policy.isKey(src, x, y) {
				w.key[i] = true
				continue
			}
			w.pix[i] = d.apply(src.RGB(x, y), x, y)
		}
		progress(float64(y+1) / float64(src.Height))
	}
	return w
}

// buildHistogram counts the sampled working colors of one tile. Colors
// served by a fixed slot 0 are left out.
func buildHistogram(w *workImage, r image.Rectangle, stride int, policy colorZeroPolicy) Histogram {
	counts := make(map[RGB]int)
	eachSample(r, stride, func(x, y int) {
		c, key := w.at(x, y)
		if key || policy.excludes(c) {
			return
		}
		counts[c]++
	})

	// Every sample landed on a key pixel; use the first ordinary pixel
	// instead so the tile still has evidence.
	if len(counts) == 0 && stride > 1 {
	scan:
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				c, key := w.at(x, y)
				if !key && !policy.excludes(c) {
					counts[c] = 1
					break scan
				}
			}
		}
	}

	return histogramFromCounts(counts)
}
