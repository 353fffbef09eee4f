package quantize

import (
	"image"
	"math"
)

// sampleStride returns how many pixels to advance between samples so that
// roughly fraction f of a tile's pixels are visited.
func sampleStride(f float64) int {
	if f >= 1 {
		return 1
	}
	// The epsilon absorbs float error in fractions such as 1/3.
	n := int(math.Ceil(1/f - 1e-9))
	if n < 1 {
		n = 1
	}
	return n
}

// eachSample calls fn for every sampled pixel in r, walking the tile in
// raster order. The first pixel is always sampled so a non-empty tile
// yields at least one sample.
func eachSample(r image.Rectangle, stride int, fn func(x, y int)) {
	k := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if k%stride == 0 {
				fn(x, y)
			}
			k++
		}
	}
}
