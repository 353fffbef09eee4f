package quantize

import (
	"github.com/makeworld-the-better-one/dither/v2"
)

// Ordered patterns as threshold matrices indexed [y][x]. A pattern with n
// levels holds each of 0..n-1.
var patterns = [...]struct {
	levels int
	m      [][]int
}{
	Diagonal4: {4, [][]int{
		{0, 2, 1, 3},
		{2, 1, 3, 0},
		{1, 3, 0, 2},
		{3, 0, 2, 1},
	}},
	Horizontal4: {4, [][]int{{0}, {2}, {1}, {3}}},
	Vertical4:   {4, [][]int{{0, 2, 1, 3}}},
	Diagonal2: {2, [][]int{
		{0, 1},
		{1, 0},
	}},
	Horizontal2: {2, [][]int{{0}, {1}}},
	Vertical2:   {2, [][]int{{0, 1}}},
}

// threshold returns the pattern value at (x, y) normalised to (-0.5, 0.5).
func threshold(p DitherPattern, x, y int) float64 {
	pat := patterns[p]
	row := pat.m[y%len(pat.m)]
	v := row[x%len(row)]
	return (float64(v)+0.5)/float64(pat.levels) - 0.5
}

// diffusion is the error diffusion kernel used by DitherSlow.
var diffusion = dither.FloydSteinberg

type kernelTap struct {
	dx, dy int
	w      float32
}

// kernelTaps flattens an error diffusion matrix into offsets relative to the
// current pixel, which sits in the first row just before the first non-zero
// weight.
func kernelTaps(m dither.ErrorDiffusionMatrix) []kernelTap {
	cur := 0
	for i, v := range m[0] {
		if v != 0 {
			cur = i - 1
			break
		}
	}
	var taps []kernelTap
	for dy, row := range m {
		for x, v := range row {
			if v != 0 {
				taps = append(taps, kernelTap{x - cur, dy, v})
			}
		}
	}
	return taps
}

// ditherer turns source pixels into working colors.
type ditherer struct {
	s     Settings
	step  float64
	taps  []kernelTap
	width int
	err   []float32 // per-channel residual carried into unvisited pixels
}

func newDitherer(s Settings, width, height int) *ditherer {
	d := &ditherer{
		s:     s,
		step:  Step(s.BitsPerChannel),
		width: width,
	}
	if s.DitherMode == DitherSlow {
		d.taps = kernelTaps(diffusion)
		d.err = make([]float32, width*height*3)
	}
	return d
}

// apply returns the working color for the pixel at (x, y). Pixels must be
// visited in raster order when diffusing.
func (d *ditherer) apply(c RGB, x, y int) RGB {
	if d.s.DitherMode == DitherOff {
		return QuantizeColor(c, d.s.BitsPerChannel)
	}

	offset := threshold(d.s.DitherPattern, x, y) * d.step * d.s.DitherWeight
	in := [3]float64{float64(c.R), float64(c.G), float64(c.B)}
	if d.err != nil {
		i := (y*d.width + x) * 3
		for ch := range in {
			in[ch] += float64(d.err[i+ch])
		}
	}

	var out [3]uint8
	for ch := range in {
		out[ch] = QuantizeChannel(in[ch]+offset, d.s.BitsPerChannel)
	}

	if d.err != nil {
		var residual [3]float32
		for ch := range in {
			residual[ch] = float32(in[ch]-float64(out[ch])) * float32(d.s.DitherWeight)
		}
		d.spread(x, y, residual)
	}

	return RGB{out[0], out[1], out[2]}
}

func (d *ditherer) spread(x, y int, residual [3]float32) {
	height := len(d.err) / 3 / d.width
	for _, t := range d.taps {
		nx, ny := x+t.dx, y+t.dy
		if nx < 0 || nx >= d.width || ny >= height {
			continue
		}
		// Only pixels after (x, y) in raster order are unvisited.
		if ny == y && nx <= x {
			continue
		}
		i := (ny*d.width + nx) * 3
		for ch := range residual {
			d.err[i+ch] += residual[ch] * t.w
		}
	}
}
