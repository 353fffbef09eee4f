/*
Package source loads images for quantization and optionally prepares them
by resizing or reducing their colors before the tile quantizer runs.
*/
package source

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/KononK/resize"
	"github.com/bodgit/tpq/quantize"
	mediancut "github.com/ericpauley/go-quantize/quantize"
	"github.com/esimov/colorquant"
	_ "golang.org/x/image/bmp"
)

var (
	// ErrUnknownMethod is returned for unrecognised reduction methods.
	ErrUnknownMethod = errors.New("source: unknown reduction method")
	// ErrBadSize is returned when a size isn't of the form WxH.
	ErrBadSize = errors.New("source: invalid size")
)

// Decode reads any registered image format from r.
func Decode(r io.Reader) (image.Image, string, error) {
	return image.Decode(r)
}

// Open decodes the image in file.
func Open(file string) (image.Image, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", file, err)
	}
	return m, nil
}

// ParseSize parses "WxH". Either dimension may be 0 to preserve the aspect
// ratio.
func ParseSize(s string) (int, int, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadSize, s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil || w < 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadSize, s)
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 || (w == 0 && h == 0) {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadSize, s)
	}
	return w, h, nil
}

// Resize scales m with nearest neighbour sampling so no new colors are
// introduced.
func Resize(m image.Image, width, height int) image.Image {
	return resize.Resize(uint(width), uint(height), m, resize.NearestNeighbor)
}

// Method selects the algorithm used by Reduce.
type Method int

const (
	// MedianCut uses a mean-aggregated median cut.
	MedianCut Method = iota
	// ColorQuant uses the colorquant median cut without dithering.
	ColorQuant
)

var methodNames = [...]string{"mediancut", "colorquant"}

func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// ParseMethod parses a method name.
func ParseMethod(s string) (Method, error) {
	for i, n := range methodNames {
		if strings.EqualFold(s, n) {
			return Method(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMethod, s)
}

// Reduce limits m to at most n colors. Alpha is carried over from m so
// transparency survives for the quantizer.
func Reduce(m image.Image, n int, method Method) (image.Image, error) {
	b := m.Bounds()

	var reduced image.Image
	switch method {
	case MedianCut:
		q := mediancut.MedianCutQuantizer{Aggregation: mediancut.Mean}
		pm := image.NewPaletted(b, q.Quantize(make(color.Palette, 0, n), m))
		draw.Draw(pm, b, m, b.Min, draw.Src)
		reduced = pm
	case ColorQuant:
		dst := image.NewPaletted(b, palette.WebSafe)
		reduced = colorquant.NoDither.Quantize(m, dst, n, false, true)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownMethod, method)
	}

	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(reduced.At(x, y)).(color.NRGBA)
			c.A = color.NRGBAModel.Convert(m.At(x, y)).(color.NRGBA).A
			out.SetNRGBA(x, y, c)
		}
	}
	return out, nil
}

// Options prepares an image before quantization.
type Options struct {
	// Width and Height resize the image when either is non-zero.
	Width, Height int
	// Colors pre-reduces the image when non-zero.
	Colors int
	Method Method
}

// Prepare applies opts to m and converts the result for the quantizer.
func Prepare(m image.Image, opts Options) (quantize.SourceImage, error) {
	if opts.Width != 0 || opts.Height != 0 {
		m = Resize(m, opts.Width, opts.Height)
	}
	if opts.Colors != 0 {
		var err error
		if m, err = Reduce(m, opts.Colors, opts.Method); err != nil {
			return quantize.SourceImage{}, err
		}
	}
	return quantize.FromImage(m), nil
}

// Load opens file and prepares it with opts.
func Load(file string, opts Options) (quantize.SourceImage, error) {
	m, err := Open(file)
	if err != nil {
		return quantize.SourceImage{}, err
	}
	return Prepare(m, opts)
}
