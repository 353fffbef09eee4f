package quantize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampledTotal(h Histogram) int {
	n := 0
	for _, c := range h {
		n += c.Count
	}
	return n
}

func TestBuildHistogramSmallFraction(t *testing.T) {
	s := DefaultSettings()
	s.BitsPerChannel = 8
	s.FractionOfPixels = 0.01

	policy := newColorZeroPolicy(s)
	w := buildWorkImage(s, gradientImage(11, 11), policy, func(float64) {})
	grid := newTileGrid(s.TileSize, 11, 11)
	stride := sampleStride(s.FractionOfPixels)

	// Bottom right edge tile is 3x3
	edge := grid.rect(3)
	require.Equal(t, 3, edge.Dx())
	require.Equal(t, 3, edge.Dy())

	h := buildHistogram(w, edge, stride, policy)
	require.Len(t, h, 1)
	assert.Equal(t, 1, sampledTotal(h))
	assert.Equal(t, RGB{136, 136, 136}, h[0].Color)

	for tile := 0; tile < grid.count(); tile++ {
		assert.NotEmpty(t, buildHistogram(w, grid.rect(tile), stride, policy), "tile %d", tile)
	}
}

func TestBuildHistogramSkipsKeySamples(t *testing.T) {
	s := DefaultSettings()
	s.TileSize = 4
	s.PaletteCount = 1
	s.ColorsPerPalette = 4
	s.BitsPerChannel = 8
	s.FractionOfPixels = 0.25
	s.ColorZero = ColorZeroTransparentFromTransparent

	// Samples fall on x=0 of every row, all of which are transparent
	opaque := RGB{200, 100, 50}
	m := solidImage(4, 4, RGB{}, 0)
	setPixel(m, 2, 1, opaque, 0xff)

	policy := newColorZeroPolicy(s)
	w := buildWorkImage(s, m, policy, func(float64) {})
	h := buildHistogram(w, newTileGrid(4, 4, 4).rect(0), sampleStride(s.FractionOfPixels), policy)
	require.Len(t, h, 1)
	assert.Equal(t, ColorCount{opaque, 1}, h[0])

	r, err := Quantize(s, m, Observer{})
	require.NoError(t, err)

	checkInvariants(t, s, r)
	require.Len(t, r.Blocks, 1)
	assert.NotZero(t, r.IndexAt(2, 1))
	assert.Equal(t, opaque, r.ColorAt(2, 1))
	assert.Zero(t, r.IndexAt(0, 0))
}
