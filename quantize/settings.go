package quantize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DitherMode selects how working colors are perturbed before quantization.
type DitherMode int

const (
	// DitherOff disables dithering.
	DitherOff DitherMode = iota
	// DitherFast adds a fixed ordered pattern offset.
	DitherFast
	// DitherSlow adds the ordered offset and diffuses the quantization
	// residual to neighbouring pixels.
	DitherSlow
)

var ditherModeNames = [...]string{"off", "fast", "slow"}

func (m DitherMode) String() string {
	if m < 0 || int(m) >= len(ditherModeNames) {
		return fmt.Sprintf("DitherMode(%d)", int(m))
	}
	return ditherModeNames[m]
}

// ParseDitherMode parses the textual name of a dither mode.
func ParseDitherMode(s string) (DitherMode, error) {
	for i, n := range ditherModeNames {
		if strings.EqualFold(s, n) {
			return DitherMode(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown dither mode %q", ErrInvalidSettings, s)
}

// DitherPattern names one of the ordered dither matrices.
type DitherPattern int

const (
	Diagonal4 DitherPattern = iota
	Horizontal4
	Vertical4
	Diagonal2
	Horizontal2
	Vertical2
)

var ditherPatternNames = [...]string{"diag4", "horiz4", "vert4", "diag2", "horiz2", "vert2"}

func (p DitherPattern) String() string {
	if p < 0 || int(p) >= len(ditherPatternNames) {
		return fmt.Sprintf("DitherPattern(%d)", int(p))
	}
	return ditherPatternNames[p]
}

// ParseDitherPattern parses the short name of a dither pattern, e.g. "diag4".
func ParseDitherPattern(s string) (DitherPattern, error) {
	for i, n := range ditherPatternNames {
		if strings.EqualFold(s, n) {
			return DitherPattern(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown dither pattern %q", ErrInvalidSettings, s)
}

// ColorZero selects the meaning of slot 0 in every palette block.
type ColorZero int

const (
	// ColorZeroUnique puts each block's most frequent color in slot 0.
	ColorZeroUnique ColorZero = iota
	// ColorZeroShared puts ColorZeroValue, quantized to BitsPerChannel, in
	// slot 0 of every block.
	ColorZeroShared
	// ColorZeroTransparentFromTransparent maps fully transparent source
	// pixels to index 0.
	ColorZeroTransparentFromTransparent
	// ColorZeroTransparentFromColor maps source pixels equal to
	// ColorZeroValue to index 0.
	ColorZeroTransparentFromColor
)

var colorZeroNames = [...]string{"unique", "shared", "transparentFromTransparent", "transparentFromColor"}

func (c ColorZero) String() string {
	if c < 0 || int(c) >= len(colorZeroNames) {
		return fmt.Sprintf("ColorZero(%d)", int(c))
	}
	return colorZeroNames[c]
}

// Transparent reports whether slot 0 is used as a transparency marker.
func (c ColorZero) Transparent() bool {
	return c == ColorZeroTransparentFromTransparent || c == ColorZeroTransparentFromColor
}

// Reserved reports whether slot 0 is taken away from the per-block budget.
func (c ColorZero) Reserved() bool {
	return c != ColorZeroUnique
}

// ParseColorZero parses the name of a color zero behaviour.
func ParseColorZero(s string) (ColorZero, error) {
	for i, n := range colorZeroNames {
		if strings.EqualFold(s, n) {
			return ColorZero(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown color zero behaviour %q", ErrInvalidSettings, s)
}

const (
	// MaxTileSize is the largest tile edge, in pixels.
	MaxTileSize = 65535
	// MaxPalettes is the hardware ceiling on palette blocks.
	MaxPalettes = 8
	// MaxColorsPerPalette is the hardware ceiling on colors per block.
	MaxColorsPerPalette = 16
)

// Settings controls a single quantization run. It is passed by value and
// never retained by the engine.
type Settings struct {
	TileSize         int           `validate:"min=1,max=65535"`
	PaletteCount     int           `validate:"min=1,max=8"`
	ColorsPerPalette int           `validate:"min=1,max=16"`
	BitsPerChannel   int           `validate:"min=1,max=8"`
	FractionOfPixels float64       `validate:"gt=0,lte=1"`
	DitherMode       DitherMode    `validate:"min=0,max=2"`
	DitherWeight     float64       `validate:"min=0,max=1"`
	DitherPattern    DitherPattern `validate:"min=0,max=5"`
	ColorZero        ColorZero     `validate:"min=0,max=3"`
	ColorZeroValue   RGB
}

// DefaultSettings returns settings matching the Sega Genesis: 8x8 tiles,
// four palettes of sixteen colors and 3 bits per channel.
func DefaultSettings() Settings {
	return Settings{
		TileSize:         8,
		PaletteCount:     4,
		ColorsPerPalette: 16,
		BitsPerChannel:   3,
		FractionOfPixels: 1,
		DitherMode:       DitherOff,
		DitherWeight:     1,
		DitherPattern:    Diagonal4,
		ColorZero:        ColorZeroUnique,
	}
}

var validate = validator.New()

// Validate checks every field against its legal range.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s fails %s=%s (got %v)", ErrInvalidSettings, fe.Field(), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

// budget returns the number of colors a tile may contribute to a block.
func (s Settings) budget() int {
	if s.ColorZero.Reserved() {
		return s.ColorsPerPalette - 1
	}
	return s.ColorsPerPalette
}
