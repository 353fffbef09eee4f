/*
Package export encodes quantized results into the file formats used by
retro console toolchains and palette editors.

Every encoder is a pure function of a *quantize.Result and Options so they
may be run concurrently against the same result.
*/
package export

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/bodgit/tpq/quantize"
)

var (
	// ErrPaletteOverflow is returned when the flattened palette does not
	// fit an 8-bit indexed image.
	ErrPaletteOverflow = errors.New("export: palette exceeds 256 colors")
	// ErrBlockRange is returned when a per-block format is asked for a
	// block the result doesn't have.
	ErrBlockRange = errors.New("export: palette block out of range")
	// ErrUnknownFormat is returned for unrecognised format names.
	ErrUnknownFormat = errors.New("export: unknown format")
	// ErrTileSize is returned when a format requires hardware 8x8 tiles.
	ErrTileSize = errors.New("export: format requires 8x8 tiles")
)

// Format identifies an output encoding.
type Format int

const (
	// BMP is an uncompressed 8-bit indexed Windows bitmap of the whole image.
	BMP Format = iota
	// GPL is a GIMP palette holding one block.
	GPL
	// JASC is a Paint Shop Pro palette holding one block.
	JASC
	// ACT is an Adobe color table holding one block.
	ACT
	// FirmwareC is a C source array of one block for SGDK.
	FirmwareC
	// CRAM is every block as packed Genesis VDP color words.
	CRAM
	// Tiles is the image as 4-bit Genesis tiles with a palette map.
	Tiles
)

var formats = [...]struct {
	name string
	ext  string
}{
	BMP:       {"bmp", ".bmp"},
	GPL:       {"gpl", ".gpl"},
	JASC:      {"jasc-pal", ".pal"},
	ACT:       {"act", ".act"},
	FirmwareC: {"firmware-c", ".c"},
	CRAM:      {"cram", ".cram"},
	Tiles:     {"tiles", ".tiles"},
}

// Formats returns every supported format.
func Formats() []Format {
	f := make([]Format, len(formats))
	for i := range formats {
		f[i] = Format(i)
	}
	return f
}

func (f Format) valid() bool {
	return f >= 0 && int(f) < len(formats)
}

func (f Format) String() string {
	if !f.valid() {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formats[f].name
}

// Extension returns the file extension including the leading dot.
func (f Format) Extension() string {
	if !f.valid() {
		return ""
	}
	return formats[f].ext
}

// PerBlock reports whether the format holds a single palette block.
func (f Format) PerBlock() bool {
	switch f {
	case GPL, JASC, ACT, FirmwareC:
		return true
	}
	return false
}

// ParseFormat parses a format name such as "jasc-pal".
func ParseFormat(s string) (Format, error) {
	for i, f := range formats {
		if strings.EqualFold(s, f.name) {
			return Format(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// Options tunes an export.
type Options struct {
	// Block selects the palette block for per-block formats.
	Block int
	// Name is used inside text formats. Defaults to "image".
	Name string
}

func (o Options) name() string {
	if o.Name == "" {
		return "image"
	}
	return o.Name
}

func checkBlock(r *quantize.Result, block int) error {
	if block < 0 || block >= len(r.Blocks) {
		return fmt.Errorf("%w: %d of %d", ErrBlockRange, block, len(r.Blocks))
	}
	return nil
}

// Encode writes r to w in format f.
func Encode(w io.Writer, r *quantize.Result, f Format, opts Options) error {
	if f.PerBlock() {
		if err := checkBlock(r, opts.Block); err != nil {
			return err
		}
	}

	switch f {
	case BMP:
		return encodeBMP(w, r)
	case GPL:
		return encodeGPL(w, r, opts)
	case JASC:
		return encodeJASC(w, r, opts)
	case ACT:
		return encodeACT(w, r, opts)
	case FirmwareC:
		return encodeFirmwareC(w, r, opts)
	case CRAM:
		return encodeCRAM(w, r)
	case Tiles:
		return encodeTiles(w, r)
	}
	return fmt.Errorf("%w: %v", ErrUnknownFormat, f)
}

// Export returns r encoded in format f.
func Export(r *quantize.Result, f Format, opts Options) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, r, f, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BaseName strips the directory and extension from a source path, falling
// back to "image".
func BaseName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
	if base == "" || base == "." || base == string(filepath.Separator) {
		return "image"
	}
	return base
}

func colorZeroSuffix(cz quantize.ColorZero) string {
	switch {
	case cz == quantize.ColorZeroShared:
		return "s"
	case cz.Transparent():
		return "t"
	}
	return "u"
}

// Filename builds the conventional output name for a format, e.g.
// "title-8x8-4p16c-u.bmp" for whole-image formats or "title-p2.gpl" for
// per-block ones.
func Filename(base string, s quantize.Settings, f Format, block int) string {
	if f.PerBlock() {
		return fmt.Sprintf("%s-p%d%s", base, block, f.Extension())
	}
	return fmt.Sprintf("%s-%dx%d-%dp%dc-%s%s", base, s.TileSize, s.TileSize, s.PaletteCount, s.ColorsPerPalette, colorZeroSuffix(s.ColorZero), f.Extension())
}
