package quantize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettingsValid(t *testing.T) {
	assert.NoError(t, DefaultSettings().Validate())
}

func TestSettingsValidate(t *testing.T) {
	tables := []func(*Settings){
		func(s *Settings) { s.TileSize = 0 },
		func(s *Settings) { s.TileSize = MaxTileSize + 1 },
		func(s *Settings) { s.PaletteCount = 0 },
		func(s *Settings) { s.PaletteCount = MaxPalettes + 1 },
		func(s *Settings) { s.ColorsPerPalette = MaxColorsPerPalette + 1 },
		func(s *Settings) { s.BitsPerChannel = 9 },
		func(s *Settings) { s.FractionOfPixels = 0 },
		func(s *Settings) { s.FractionOfPixels = 1.5 },
		func(s *Settings) { s.DitherWeight = -0.1 },
		func(s *Settings) { s.DitherMode = 3 },
		func(s *Settings) { s.DitherPattern = 6 },
		func(s *Settings) { s.ColorZero = 4 },
	}

	for i, mutate := range tables {
		s := DefaultSettings()
		mutate(&s)
		assert.ErrorIs(t, s.Validate(), ErrInvalidSettings, "case %d", i)
	}
}

func TestSettingsMaxTileSize(t *testing.T) {
	s := DefaultSettings()
	s.TileSize = MaxTileSize
	require.NoError(t, s.Validate())

	r, err := Quantize(s, solidImage(4, 4, RGB{0x24, 0x49, 0x6d}, 0xff), Observer{})
	require.NoError(t, err)
	assert.Equal(t, 1, r.TilesX)
	assert.Equal(t, 1, r.TilesY)
	assert.Equal(t, []uint8{0}, r.Tiles)
}

func TestNewTileGrid(t *testing.T) {
	g := newTileGrid(8, 17, 8)
	assert.Equal(t, 3, g.cols)
	assert.Equal(t, 1, g.rows)

	g = newTileGrid(MaxTileSize, 1, 1)
	assert.Equal(t, 1, g.cols)
	assert.Equal(t, 1, g.rows)
}

func TestParseNames(t *testing.T) {
	m, err := ParseDitherMode("SLOW")
	require.NoError(t, err)
	assert.Equal(t, DitherSlow, m)

	p, err := ParseDitherPattern("horiz2")
	require.NoError(t, err)
	assert.Equal(t, Horizontal2, p)

	cz, err := ParseColorZero("transparentFromColor")
	require.NoError(t, err)
	assert.Equal(t, ColorZeroTransparentFromColor, cz)
	assert.True(t, cz.Transparent())
	assert.True(t, cz.Reserved())

	_, err = ParseDitherMode("sometimes")
	assert.ErrorIs(t, err, ErrInvalidSettings)
	_, err = ParseDitherPattern("diag3")
	assert.ErrorIs(t, err, ErrInvalidSettings)
	_, err = ParseColorZero("none")
	assert.ErrorIs(t, err, ErrInvalidSettings)

	assert.Equal(t, "vert4", Vertical4.String())
	assert.Equal(t, "shared", ColorZeroShared.String())
	assert.Equal(t, "DitherMode(9)", DitherMode(9).String())
}

func TestBudget(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, 16, s.budget())
	s.ColorZero = ColorZeroShared
	assert.Equal(t, 15, s.budget())
}
