package export

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"math"

	"github.com/bodgit/tpq/quantize"
)

/*
The tiles format is a header of two big-endian 16-bit values giving the
number of tile columns and rows, followed by 32 bytes per 8 by 8 tile of
4-bit pixel indices in raster tile order, one byte per tile holding its
palette, and finally each palette as 16 packed CRAM words. Partial tiles at
the right and bottom edges are padded with slot 0.
*/

const (
	tileWidth   = 8
	tileHeight  = tileWidth
	tilePixels  = tileWidth * tileHeight
	tileBytes   = tilePixels >> 1
	maxPalettes = quantize.MaxPalettes
	maxTiles    = math.MaxUint16
)

var (
	errNotEnough  = errors.New("export: not enough tile data")
	errTooMuch    = errors.New("export: too much tile data")
	errBadPalette = errors.New("export: invalid palette index")
)

type tileEncoder struct {
	w io.Writer
	r *quantize.Result
}

// slot returns the 4-bit palette slot of pixel (x, y), or 0 outside the
// image.
func (e *tileEncoder) slot(x, y int) byte {
	if x >= e.r.Width || y >= e.r.Height {
		return 0
	}
	return byte(int(e.r.IndexAt(x, y)) % e.r.ColorsPerPalette)
}

func (e *tileEncoder) encode() error {
	if e.r.TilesX > maxTiles || e.r.TilesY > maxTiles {
		return fmt.Errorf("%w: %dx%d tiles exceeds %d in either direction", ErrTileSize, e.r.TilesX, e.r.TilesY, maxTiles)
	}

	var hdr [4]byte
	binary.BigEndian.PutUint16(hdr[0:], uint16(e.r.TilesX))
	binary.BigEndian.PutUint16(hdr[2:], uint16(e.r.TilesY))
	if _, err := e.w.Write(hdr[:]); err != nil {
		return err
	}

	// Write out pixel information
	var tile [tileBytes]byte
	for ty := 0; ty < e.r.TilesY; ty++ {
		for tx := 0; tx < e.r.TilesX; tx++ {
			for y := 0; y < tileHeight; y++ {
				for x := 0; x < tileWidth>>1; x++ {
					dx := tx*tileWidth + x<<1
					dy := ty*tileHeight + y

					tile[y*tileWidth>>1+x] = e.slot(dx, dy)&0x0f<<4 | e.slot(dx+1, dy)&0x0f
				}
			}
			if _, err := e.w.Write(tile[:]); err != nil {
				return err
			}
		}
	}

	// Write out palette indices
	if _, err := e.w.Write(e.r.Tiles); err != nil {
		return err
	}

	return writeCRAM(e.w, e.r.Blocks)
}

func encodeTiles(w io.Writer, r *quantize.Result) error {
	if r.TileSize != tileWidth {
		return fmt.Errorf("%w: got %dx%d", ErrTileSize, r.TileSize, r.TileSize)
	}
	e := tileEncoder{w: w, r: r}
	return e.encode()
}

func readFull(r io.Reader, b []byte) error {
	_, err := io.ReadFull(r, b)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return err
}

func upperNibble(b byte) byte {
	return b & 0xf0
}

func lowerNibble(b byte) byte {
	return b & 0x0f
}

type tileDecoder struct {
	r io.Reader

	tilesX, tilesY int
	numPalettes    int

	pixels  []byte
	tiles   []byte
	palette color.Palette
	image   *image.Paletted
}

func (d *tileDecoder) readHeader() error {
	var hdr [4]byte
	if err := readFull(d.r, hdr[:]); err != nil {
		return err
	}
	d.tilesX = int(binary.BigEndian.Uint16(hdr[0:]))
	d.tilesY = int(binary.BigEndian.Uint16(hdr[2:]))
	return nil
}

func (d *tileDecoder) readPixelsAndPaletteIndices() error {
	n := d.tilesX * d.tilesY

	// The header alone can claim gigabytes, so only grow as data arrives
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, d.r, int64(n*tileBytes+n)); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	d.pixels, d.tiles = buf.Bytes()[:n*tileBytes], buf.Bytes()[n*tileBytes:]

	d.numPalettes = 0
	for _, b := range d.tiles {
		if b >= maxPalettes {
			return errBadPalette
		}
		if int(b)+1 > d.numPalettes {
			d.numPalettes = int(b) + 1
		}
	}
	return nil
}

func (d *tileDecoder) readPalette() error {
	d.palette = make(color.Palette, cramColors*d.numPalettes)
	for i := range d.palette {
		var tmp [2]byte
		if err := readFull(d.r, tmp[:]); err != nil {
			return err
		}
		d.palette[i] = unpackCRAM(tmp)
	}
	return nil
}

func (d *tileDecoder) decode(r io.Reader, configOnly bool) error {
	d.r = r

	for _, step := range []func() error{d.readHeader, d.readPixelsAndPaletteIndices, d.readPalette} {
		if err := step(); err != nil {
			if err != io.ErrUnexpectedEOF {
				return err
			}
			return errNotEnough
		}
	}

	var tmp [1]byte
	if n, err := r.Read(tmp[:]); n != 0 || (err != io.EOF && err != io.ErrUnexpectedEOF) {
		if err != nil {
			return err
		}
		return errTooMuch
	}

	if configOnly {
		return nil
	}

	d.image = image.NewPaletted(image.Rect(0, 0, d.tilesX*tileWidth, d.tilesY*tileHeight), d.palette)

	for ty := 0; ty < d.tilesY; ty++ {
		for tx := 0; tx < d.tilesX; tx++ {
			tile := ty*d.tilesX + tx
			p := d.tiles[tile] * cramColors
			for y := 0; y < tileHeight; y++ {
				for x := 0; x < tileWidth>>1; x++ {
					i := tile*tileBytes + y*tileWidth>>1 + x

					dx := tx*tileWidth + x<<1
					dy := ty*tileHeight + y

					d.image.SetColorIndex(dx+0, dy, p+upperNibble(d.pixels[i])>>4)
					d.image.SetColorIndex(dx+1, dy, p+lowerNibble(d.pixels[i]))
				}
			}
		}
	}

	return nil
}

// DecodeTiles reads data written in the tiles format. The image covers
// whole tiles and its palette has 16 entries per palette line, so the
// palette of a pixel is its index divided by 16.
func DecodeTiles(r io.Reader) (*image.Paletted, error) {
	var d tileDecoder
	if err := d.decode(r, false); err != nil {
		return nil, err
	}
	return d.image, nil
}

// DecodeTilesConfig returns the color model and dimensions of tile data
// without building the image.
func DecodeTilesConfig(r io.Reader) (image.Config, error) {
	var d tileDecoder
	if err := d.decode(r, true); err != nil {
		return image.Config{}, err
	}
	return image.Config{
		ColorModel: d.palette,
		Width:      d.tilesX * tileWidth,
		Height:     d.tilesY * tileHeight,
	}, nil
}
