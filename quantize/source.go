package quantize

import (
	"fmt"
	"image"
	"image/color"
)

// SourceImage is a top-down, row-major RGBA pixel buffer. The engine only
// reads from it.
type SourceImage struct {
	Width  int
	Height int
	Pix    []byte
}

// Validate checks the dimensions agree with the buffer.
func (m SourceImage) Validate() error {
	if m.Width <= 0 || m.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidImage, m.Width, m.Height)
	}
	if len(m.Pix) != m.Width*m.Height*4 {
		return fmt.Errorf("%w: buffer is %d bytes, want %d", ErrInvalidImage, len(m.Pix), m.Width*m.Height*4)
	}
	return nil
}

// Clone returns a deep copy of m.
func (m SourceImage) Clone() SourceImage {
	dup := m
	dup.Pix = append([]byte(nil), m.Pix...)
	return dup
}

func (m SourceImage) offset(x, y int) int {
	return (y*m.Width + x) * 4
}

// RGB returns the color of the pixel at (x, y), ignoring alpha.
func (m SourceImage) RGB(x, y int) RGB {
	i := m.offset(x, y)
	return RGB{m.Pix[i], m.Pix[i+1], m.Pix[i+2]}
}

// Alpha returns the alpha of the pixel at (x, y).
func (m SourceImage) Alpha(x, y int) uint8 {
	return m.Pix[m.offset(x, y)+3]
}

// FromImage copies any image into a SourceImage. Colors are
// un-premultiplied so fully transparent pixels keep alpha 0.
func FromImage(src image.Image) SourceImage {
	b := src.Bounds()
	m := SourceImage{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pix:    make([]byte, b.Dx()*b.Dy()*4),
	}
	if rgba, ok := src.(*image.NRGBA); ok {
		for y := 0; y < m.Height; y++ {
			o := rgba.PixOffset(b.Min.X, b.Min.Y+y)
			copy(m.Pix[y*m.Width*4:], rgba.Pix[o:o+m.Width*4])
		}
		return m
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			i := m.offset(x-b.Min.X, y-b.Min.Y)
			m.Pix[i+0] = c.R
			m.Pix[i+1] = c.G
			m.Pix[i+2] = c.B
			m.Pix[i+3] = c.A
		}
	}
	return m
}
