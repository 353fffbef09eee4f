package quantize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int, c RGB, a uint8) SourceImage {
	m := SourceImage{Width: w, Height: h, Pix: make([]byte, w*h*4)}
	for i := 0; i < w*h; i++ {
		m.Pix[i*4+0] = c.R
		m.Pix[i*4+1] = c.G
		m.Pix[i*4+2] = c.B
		m.Pix[i*4+3] = a
	}
	return m
}

// gradientImage has a distinct color at every pixel for sizes up to 16x16.
func gradientImage(w, h int) SourceImage {
	m := SourceImage{Width: w, Height: h, Pix: make([]byte, w*h*4)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			m.Pix[i+0] = uint8(x * 17)
			m.Pix[i+1] = uint8(y * 17)
			m.Pix[i+2] = uint8(x*16 + y)
			m.Pix[i+3] = 0xff
		}
	}
	return m
}

func setPixel(m SourceImage, x, y int, c RGB, a uint8) {
	i := (y*m.Width + x) * 4
	m.Pix[i+0] = c.R
	m.Pix[i+1] = c.G
	m.Pix[i+2] = c.B
	m.Pix[i+3] = a
}

// checkInvariants asserts the structural guarantees every result must keep.
func checkInvariants(t *testing.T, s Settings, r *Result) {
	t.Helper()

	require.LessOrEqual(t, len(r.Blocks), s.PaletteCount)
	require.Len(t, r.Tiles, r.TilesX*r.TilesY)
	require.Len(t, r.Indices, r.Width*r.Height)
	assert.LessOrEqual(t, r.DistinctColors(), s.PaletteCount*s.ColorsPerPalette)

	for _, b := range r.Blocks {
		require.Len(t, b.Colors, s.ColorsPerPalette)
		require.LessOrEqual(t, b.Used, s.ColorsPerPalette)
	}

	for y := 0; y < r.Height; y++ {
		for x := 0; x < r.Width; x++ {
			idx := int(r.IndexAt(x, y))
			if idx == 0 && s.ColorZero.Transparent() {
				continue
			}
			block := r.TileAt(x/s.TileSize, y/s.TileSize)
			require.Equal(t, int(block), idx/s.ColorsPerPalette, "pixel (%d,%d) escaped its tile's block", x, y)
			slot := idx % s.ColorsPerPalette
			require.Less(t, slot, max(r.Blocks[block].Used, 1), "pixel (%d,%d) uses a padding slot", x, y)
		}
	}

	if s.ColorZero == ColorZeroShared || s.ColorZero == ColorZeroTransparentFromColor {
		for _, b := range r.Blocks {
			assert.Equal(t, QuantizeColor(s.ColorZeroValue, s.BitsPerChannel), b.Colors[0])
		}
	}
}

func TestQuantizeSolidColor(t *testing.T) {
	s := DefaultSettings()
	s.TileSize = 8
	s.PaletteCount = 2
	s.ColorsPerPalette = 4

	r, err := Quantize(s, solidImage(16, 16, RGB{0x92, 0x24, 0xdb}, 0xff), Observer{})
	require.NoError(t, err)

	checkInvariants(t, s, r)
	assert.Equal(t, 1, r.DistinctColors())
	assert.Len(t, r.Blocks, 1)
	assert.Equal(t, []uint8{0, 0, 0, 0}, r.Tiles)
	assert.False(t, r.Fidelity.Lossy())
}

func TestQuantizeFullyTransparent(t *testing.T) {
	s := DefaultSettings()
	s.ColorZero = ColorZeroTransparentFromTransparent

	r, err := Quantize(s, solidImage(20, 12, RGB{0xff, 0xff, 0xff}, 0), Observer{})
	require.NoError(t, err)

	checkInvariants(t, s, r)
	for i, idx := range r.Indices {
		require.Zero(t, idx, "pixel %d", i)
	}
}

func TestQuantizeCollapsesOversizedTile(t *testing.T) {
	s := DefaultSettings()
	s.TileSize = 8
	s.PaletteCount = 1
	s.ColorsPerPalette = 4
	s.BitsPerChannel = 8

	r, err := Quantize(s, gradientImage(8, 8), Observer{})
	require.NoError(t, err)

	checkInvariants(t, s, r)
	loss, ok := r.Fidelity.Tile(0)
	require.True(t, ok)
	assert.Equal(t, 64-4, loss.Merges)
	assert.Greater(t, loss.Error, 0.0)
	assert.Equal(t, 4, r.Blocks[0].Used)
}

func TestQuantizeTransparentFromColor(t *testing.T) {
	key := RGB{0xff, 0x00, 0xff}
	s := DefaultSettings()
	s.TileSize = 4
	s.PaletteCount = 3
	s.ColorsPerPalette = 4
	s.ColorZero = ColorZeroTransparentFromColor
	s.ColorZeroValue = key

	m := gradientImage(16, 16)
	var keyed [][2]int
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if (x*7+y*3)%5 == 0 {
				setPixel(m, x, y, key, 0xff)
				keyed = append(keyed, [2]int{x, y})
			}
		}
	}

	r, err := Quantize(s, m, Observer{})
	require.NoError(t, err)

	checkInvariants(t, s, r)
	for _, p := range keyed {
		assert.Zero(t, r.IndexAt(p[0], p[1]), "pixel (%d,%d)", p[0], p[1])
	}
}

func TestQuantizeSharedColorZero(t *testing.T) {
	s := DefaultSettings()
	s.TileSize = 4
	s.PaletteCount = 2
	s.ColorsPerPalette = 4
	s.ColorZero = ColorZeroShared
	s.ColorZeroValue = RGB{0x10, 0x20, 0x30}

	r, err := Quantize(s, gradientImage(16, 16), Observer{})
	require.NoError(t, err)

	checkInvariants(t, s, r)
	for _, b := range r.Blocks {
		assert.LessOrEqual(t, b.Used, s.ColorsPerPalette)
		// #102030 isn't a 3-bit color
		assert.Equal(t, RGB{0x00, 0x24, 0x24}, b.Colors[0])
		for _, v := range []uint8{b.Colors[0].R, b.Colors[0].G, b.Colors[0].B} {
			assert.Equal(t, v, QuantizeChannel(float64(v), s.BitsPerChannel))
		}
	}
}

func TestQuantizeUniqueSlotZeroIsMostFrequent(t *testing.T) {
	s := DefaultSettings()
	s.TileSize = 4
	s.PaletteCount = 1
	s.ColorsPerPalette = 4
	s.BitsPerChannel = 8

	m := solidImage(4, 4, RGB{200, 200, 200}, 0xff)
	setPixel(m, 0, 0, RGB{10, 10, 10}, 0xff)
	setPixel(m, 1, 0, RGB{10, 10, 10}, 0xff)
	setPixel(m, 2, 0, RGB{90, 0, 0}, 0xff)

	r, err := Quantize(s, m, Observer{})
	require.NoError(t, err)

	require.Len(t, r.Blocks, 1)
	assert.Equal(t, RGB{200, 200, 200}, r.Blocks[0].Colors[0])
	assert.Equal(t, RGB{10, 10, 10}, r.Blocks[0].Colors[1])
	assert.Equal(t, RGB{90, 0, 0}, r.Blocks[0].Colors[2])
	assert.Equal(t, 3, r.Blocks[0].Used)
}

func TestQuantizeBudget(t *testing.T) {
	m := gradientImage(16, 16)
	for _, s := range []Settings{
		{TileSize: 8, PaletteCount: 4, ColorsPerPalette: 16, BitsPerChannel: 3, FractionOfPixels: 1},
		{TileSize: 4, PaletteCount: 2, ColorsPerPalette: 3, BitsPerChannel: 5, FractionOfPixels: 0.5},
		{TileSize: 3, PaletteCount: 8, ColorsPerPalette: 16, BitsPerChannel: 8, FractionOfPixels: 0.25, DitherMode: DitherFast, DitherWeight: 1},
		{TileSize: 5, PaletteCount: 1, ColorsPerPalette: 1, BitsPerChannel: 2, FractionOfPixels: 1, DitherMode: DitherSlow, DitherWeight: 0.5},
		{TileSize: 8, PaletteCount: 2, ColorsPerPalette: 1, BitsPerChannel: 4, FractionOfPixels: 1, ColorZero: ColorZeroShared},
		{TileSize: 16, PaletteCount: 1, ColorsPerPalette: 16, BitsPerChannel: 8, FractionOfPixels: 0.1, DitherMode: DitherSlow, DitherWeight: 1, DitherPattern: Vertical2},
	} {
		r, err := Quantize(s, m, Observer{})
		require.NoError(t, err)
		checkInvariants(t, s, r)
	}
}

func TestQuantizeDeterministic(t *testing.T) {
	s := DefaultSettings()
	s.TileSize = 4
	s.PaletteCount = 3
	s.ColorsPerPalette = 5
	s.BitsPerChannel = 6
	s.FractionOfPixels = 0.3

	m := gradientImage(16, 16)
	a, err := Quantize(s, m, Observer{})
	require.NoError(t, err)
	b, err := Quantize(s, m, Observer{})
	require.NoError(t, err)

	assert.True(t, a.Equal(b))
}

func TestQuantizeProgress(t *testing.T) {
	var seen []int
	var partial *Result
	obs := Observer{
		Progress: func(p int) { seen = append(seen, p) },
		Partial:  func(r *Result) { partial = r },
	}

	r, err := Quantize(DefaultSettings(), gradientImage(16, 16), obs)
	require.NoError(t, err)

	require.NotEmpty(t, seen)
	assert.Equal(t, 0, seen[0])
	assert.Equal(t, 100, seen[len(seen)-1])
	for i := 1; i < len(seen); i++ {
		assert.Greater(t, seen[i], seen[i-1])
	}

	require.NotNil(t, partial)
	assert.Nil(t, partial.Indices)
	assert.Equal(t, r.Tiles, partial.Tiles)
	assert.Equal(t, r.Blocks, partial.Blocks)
}

func TestQuantizeEdgeTilesClipped(t *testing.T) {
	s := DefaultSettings()
	r, err := Quantize(s, gradientImage(13, 9), Observer{})
	require.NoError(t, err)

	assert.Equal(t, 2, r.TilesX)
	assert.Equal(t, 2, r.TilesY)
	checkInvariants(t, s, r)
}

func TestQuantizeRejectsBadInput(t *testing.T) {
	s := DefaultSettings()
	s.PaletteCount = 9
	_, err := Quantize(s, gradientImage(4, 4), Observer{})
	assert.ErrorIs(t, err, ErrInvalidSettings)

	_, err = Quantize(DefaultSettings(), SourceImage{Width: 0, Height: 4}, Observer{})
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = Quantize(DefaultSettings(), SourceImage{Width: 2, Height: 2, Pix: make([]byte, 3)}, Observer{})
	assert.ErrorIs(t, err, ErrInvalidImage)
}
